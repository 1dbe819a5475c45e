// Package omr turns photographs of filled bubble sheets into per-question
// answers and scores.
//
// # Pipeline
//
// Evaluate runs five stages, each a pure function of its inputs:
//
//  1. Normalize: find the sheet outline in the photo, correct perspective
//     and skew, and resample into a fixed-size canonical raster
//  2. Locate: find the printed anchor squares in the canonical raster, fit
//     an affine correction to the template and compute one sampling cell per
//     subject, question and choice
//  3. Classify: measure how much of each cell is inked (a FillScore in [0,1])
//  4. Resolve: turn the scores of one question into a ResolvedAnswer
//  5. Score: compare answers with an AnswerKey and produce a ScoreReport
//
// Stages communicate only through their return values. The caller's
// RawImage is never modified.
//
// # Layout
//
// Sheet geometry is described by a GridConfig value that is passed to every
// call. DefaultGridConfig returns the standard 5 subject x 20 question x 4
// choice layout and LoadGridConfig reads a JSON override. There is no global
// layout state, so sheets of different layouts can be evaluated side by side.
//
// # Errors
//
// Failures are reported with typed errors:
//   - *GeometryError: the sheet outline could not be found or is degenerate
//   - *GridAlignmentError: too few anchors, or the anchors disagree
//   - *InvalidKeyError: the answer key is incomplete or malformed
//
// Kind classifies any error returned by this package for logging and batch
// reports. Blank and ambiguous answers are outcomes, not errors.
//
// # Determinism
//
// For identical inputs Evaluate returns identical reports. Classification
// runs one goroutine per subject but every goroutine writes into its own
// slots of a preallocated slice, so scheduling never affects the output.
//
// # Concurrency
//
// Evaluate is safe to call from many goroutines. RunBatch evaluates a set of
// sheets on a bounded worker pool and aggregates statistics over the sheets
// that succeeded.
package omr

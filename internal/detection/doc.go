// Package detection finds the structural features of a bubble sheet in
// binary masks: the paper outline and the printed registration anchors.
//
// # Pipeline
//
// Callers binarize an image first (see internal/imaging) and pass the mask
// here. Mask pixels equal to 255 are foreground; everything else is
// background.
//
//  1. Components: Group foreground pixels into 8-connected blobs and record
//     their bounding box, pixel count, centroid and per-row extremes
//  2. Sheet outline: Reduce the largest bright blob to a convex hull and
//     from there to a four-corner quadrilateral
//  3. Anchors: Keep only blobs that look like solid printed squares
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// Pixel (x, y) is treated as the point (x, y) when geometry is derived from
// components, so a 30x30 blob spans 29 units between its extreme centres.
//
// # Corner Order
//
// Quadrilaterals are returned clockwise in image coordinates starting at the
// top-left corner of the upright portrait page. The upright page is inferred
// from the outline alone: the top edge is the short edge that sits higher in
// the frame. A page rotated by more than 90 degrees therefore comes back
// upside down, and callers that care must check content (see
// omr.Normalize).
//
// # Limitations
//
// The algorithms assume a sheet that is brighter than its surroundings and
// anchors that are darker than the paper. Glare that merges the sheet with a
// bright desk, or heavy shadows that split it, produce a wrong outline.
package detection

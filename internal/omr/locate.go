package omr

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-eval/internal/detection"
	"github.com/ironsheep/omr-eval/internal/geometry"
	imgops "github.com/ironsheep/omr-eval/internal/imaging"
)

const (
	// anchorCandidates is how many nearby squares are considered per anchor.
	anchorCandidates = 3

	// binarizeOffset is how much darker than its neighbourhood mean a pixel
	// must be to count as ink.
	binarizeOffset = 25
)

// BubbleCell is the sampling location of one bubble in canonical coordinates.
type BubbleCell struct {
	Subject  int            `json:"subject"`
	Question int            `json:"question"`
	Choice   int            `json:"choice"`
	Center   geometry.Point `json:"center"`
	Radius   float64        `json:"radius"`
}

// CellIndex returns the position of a bubble in the flat cell slice:
// subject major, then question, then choice.
func (g GridConfig) CellIndex(subject, question, choice int) int {
	return (subject*g.QuestionsPerSubject+question)*g.Choices + choice
}

// AnchorMatch records what happened to one template anchor.
type AnchorMatch struct {
	Expected geometry.Point `json:"expected"`
	Found    geometry.Point `json:"found"`
	Matched  bool           `json:"matched"`
	// Residual is the distance between Found and the fitted template
	// position; zero when unmatched.
	Residual float64 `json:"residual"`
}

// GridLocation is the output of Locate.
type GridLocation struct {
	Cells     []BubbleCell    `json:"cells"`
	Anchors   []AnchorMatch   `json:"anchors"`
	Matched   int             `json:"matched"`
	Transform geometry.Affine `json:"transform"`
}

// Locate finds the anchors in a rectified sheet and derives every bubble's
// sampling cell.
//
// # Algorithm
//
//  1. Around each template anchor, binarize a search window adaptively and
//     collect solid square blobs of roughly the anchor's size
//  2. Keep the nearest few candidates within AnchorTolerance
//  3. Enumerate every assignment of candidates to anchors (an anchor may stay
//     unmatched, a blob may serve only one anchor). Prefer the assignment
//     with the most matches, then the one whose displacements from the
//     template agree best
//  4. Fit a least-squares affine transform template -> image over the
//     matched anchors and reject fits with large residuals
//  5. Map every template bubble centre through the transform
//
// Returns *GridAlignmentError when fewer than MinAnchors anchors match or the
// fit is poor.
func Locate(img *image.Gray, cfg GridConfig) (*GridLocation, error) {
	expected := cfg.AnchorPoints()
	candidates := make([][]geometry.Point, len(expected))
	for i, p := range expected {
		candidates[i] = anchorCandidatesNear(img, p, cfg)
	}

	assign := bestAssignment(expected, candidates)

	var src, dst []geometry.Point
	for i, c := range assign {
		if c >= 0 {
			src = append(src, expected[i])
			dst = append(dst, candidates[i][c])
		}
	}
	if len(src) < cfg.MinAnchors {
		return nil, &GridAlignmentError{
			Reason:  fmt.Sprintf("need %d anchors", cfg.MinAnchors),
			Matched: len(src),
		}
	}

	tf, err := geometry.FitAffine(src, dst)
	if err != nil {
		return nil, &GridAlignmentError{Reason: "anchor fit failed", Matched: len(src), Err: err}
	}

	loc := &GridLocation{
		Anchors:   make([]AnchorMatch, len(expected)),
		Matched:   len(src),
		Transform: tf,
	}
	worst := 0.0
	for i, c := range assign {
		loc.Anchors[i] = AnchorMatch{Expected: expected[i]}
		if c < 0 {
			continue
		}
		found := candidates[i][c]
		res := tf.Apply(expected[i]).Distance(found)
		loc.Anchors[i].Found = found
		loc.Anchors[i].Matched = true
		loc.Anchors[i].Residual = res
		worst = math.Max(worst, res)
	}
	if worst > cfg.MaxResidual {
		return nil, &GridAlignmentError{
			Reason:  fmt.Sprintf("anchor residual %.1fpx exceeds %.1fpx", worst, cfg.MaxResidual),
			Matched: len(src),
		}
	}

	radius := cfg.BubbleRadius * tf.MeanScale()
	loc.Cells = make([]BubbleCell, 0, cfg.TotalQuestions()*cfg.Choices)
	for s := range cfg.Subjects {
		for q := 0; q < cfg.QuestionsPerSubject; q++ {
			for c := 0; c < cfg.Choices; c++ {
				loc.Cells = append(loc.Cells, BubbleCell{
					Subject:  s,
					Question: q,
					Choice:   c,
					Center:   tf.Apply(cfg.TemplateCenter(s, q, c)),
					Radius:   radius,
				})
			}
		}
	}
	return loc, nil
}

// anchorCandidatesNear returns up to anchorCandidates square blob centres
// within tolerance of p, nearest first.
func anchorCandidatesNear(img *image.Gray, p geometry.Point, cfg GridConfig) []geometry.Point {
	reach := cfg.AnchorTolerance + cfg.AnchorSize
	window := image.Rect(
		int(math.Floor(p.X-reach)), int(math.Floor(p.Y-reach)),
		int(math.Ceil(p.X+reach))+1, int(math.Ceil(p.Y+reach))+1,
	).Intersect(img.Bounds())
	if window.Empty() {
		return nil
	}

	sub := img.SubImage(window).(*image.Gray)
	mask := imgops.AdaptiveDark(sub, 0.75*cfg.AnchorSize, binarizeOffset)
	blobs := detection.FindSquareBlobs(mask, detection.BlobFilter{
		MinSide:     0.75 * cfg.AnchorSize,
		MaxSide:     1.4 * cfg.AnchorSize,
		MaxAspect:   1.5,
		MinExtent:   0.8,
		MinSolidity: 0.88,
	})

	origin := geometry.FromImagePoint(window.Min)
	var near []geometry.Point
	for _, b := range blobs {
		c := b.Center.Add(origin)
		if c.Distance(p) <= cfg.AnchorTolerance {
			near = append(near, c)
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		return near[i].Distance(p) < near[j].Distance(p)
	})
	if len(near) > anchorCandidates {
		near = near[:anchorCandidates]
	}
	return near
}

// bestAssignment picks one candidate index (or -1) per anchor.
func bestAssignment(expected []geometry.Point, candidates [][]geometry.Point) []int {
	n := len(expected)
	best := make([]int, n)
	for i := range best {
		best[i] = -1
	}
	bestMatched, bestSpread := 0, math.Inf(1)

	cur := make([]int, n)
	var walk func(i, matched int)
	walk = func(i, matched int) {
		if matched+n-i < bestMatched {
			return
		}
		if i == n {
			if matched < bestMatched {
				return
			}
			var exp, obs []geometry.Point
			for k, c := range cur {
				if c >= 0 {
					exp = append(exp, expected[k])
					obs = append(obs, candidates[k][c])
				}
			}
			spread := imgops.MeasureSpread(exp, obs).RMS
			if matched > bestMatched || spread < bestSpread {
				bestMatched, bestSpread = matched, spread
				copy(best, cur)
			}
			return
		}

		for c, p := range candidates[i] {
			if usedBefore(cur[:i], candidates[:i], p) {
				continue
			}
			cur[i] = c
			walk(i+1, matched+1)
		}
		cur[i] = -1
		walk(i+1, matched)
	}
	walk(0, 0)
	return best
}

// usedBefore reports whether p was already assigned to an earlier anchor.
func usedBefore(assigned []int, candidates [][]geometry.Point, p geometry.Point) bool {
	for k, c := range assigned {
		if c >= 0 && candidates[k][c].Distance(p) < 1 {
			return true
		}
	}
	return false
}

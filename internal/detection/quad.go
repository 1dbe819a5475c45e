package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// ErrNoQuad is returned when a hull cannot be reduced to four corners.
var ErrNoQuad = errors.New("outline does not form a quadrilateral")

// squareTolerance is the relative difference between the two pairs of
// opposite edges below which a quad is treated as square and the
// short-edge rule for finding the top no longer applies.
const squareTolerance = 0.03

// QuadFromHull reduces a convex hull to the four corners of the page.
//
// # Algorithm
//
//  1. Diameter: the two hull points farthest apart are opposite corners
//  2. Side corners: on each side of the diameter, the hull point with the
//     largest perpendicular distance is the remaining corner on that side
//  3. Ordering: corners are put into clockwise page order (see OrderCorners)
//
// The diameter of a rectangle is always a diagonal, whatever its rotation,
// so the method does not depend on the sheet being roughly axis-aligned.
func QuadFromHull(hull []geometry.Point) ([4]geometry.Point, error) {
	var quad [4]geometry.Point
	if len(hull) < 4 {
		return quad, fmt.Errorf("%w: hull has %d points", ErrNoQuad, len(hull))
	}

	ia, ib := 0, 1
	best := -1.0
	for i := 0; i < len(hull); i++ {
		for j := i + 1; j < len(hull); j++ {
			if d := hull[i].Distance(hull[j]); d > best {
				best = d
				ia, ib = i, j
			}
		}
	}
	a, b := hull[ia], hull[ib]

	var left, right geometry.Point
	maxLeft, maxRight := 0.0, 0.0
	for _, p := range hull {
		d := geometry.DistanceToLine(p, a, b)
		if d > maxLeft {
			maxLeft = d
			left = p
		}
		if -d > maxRight {
			maxRight = -d
			right = p
		}
	}
	if maxLeft < 1 || maxRight < 1 {
		return quad, fmt.Errorf("%w: all hull points lie on one side of the diagonal", ErrNoQuad)
	}

	return OrderCorners([4]geometry.Point{a, left, b, right})
}

// OrderCorners puts four corners into clockwise order (as seen in image
// coordinates, Y down) starting at the top-left of the upright portrait page.
//
// The top edge is the short edge whose midpoint has the smaller Y. When the
// two pairs of opposite edges are within squareTolerance of each other the
// corner with the smallest X+Y is taken as top-left instead.
//
// Returns an error when the corners do not form a simple convex polygon.
func OrderCorners(corners [4]geometry.Point) ([4]geometry.Point, error) {
	c := geometry.Centroid(corners[:])
	pts := corners
	sort.Slice(pts[:], func(i, j int) bool {
		ai := math.Atan2(pts[i].Y-c.Y, pts[i].X-c.X)
		aj := math.Atan2(pts[j].Y-c.Y, pts[j].X-c.X)
		return ai < aj
	})

	if !geometry.IsConvex(pts[:]) {
		return corners, fmt.Errorf("%w: corners are not convex", ErrNoQuad)
	}

	var edge [4]float64
	for i := 0; i < 4; i++ {
		edge[i] = pts[i].Distance(pts[(i+1)%4])
	}
	pairA := edge[0] + edge[2]
	pairB := edge[1] + edge[3]

	start := 0
	if math.Abs(pairA-pairB)/math.Max(pairA, pairB) < squareTolerance {
		for i := 1; i < 4; i++ {
			if pts[i].X+pts[i].Y < pts[start].X+pts[start].Y {
				start = i
			}
		}
	} else {
		short := 0
		if pairB < pairA {
			short = 1
		}
		other := short + 2
		if midY(pts, other) < midY(pts, short) {
			short = other
		}
		start = short
	}

	var out [4]geometry.Point
	for i := 0; i < 4; i++ {
		out[i] = pts[(start+i)%4]
	}
	return out, nil
}

func midY(pts [4]geometry.Point, edge int) float64 {
	return (pts[edge].Y + pts[(edge+1)%4].Y) / 2
}

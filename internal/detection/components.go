package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (exclusive)
	Y2 int `json:"y2"` // Bottom edge (exclusive)
}

// Width returns X2 - X1.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Component is one 8-connected blob of foreground pixels.
type Component struct {
	// Bounds is the bounding box enclosing every pixel of the blob.
	Bounds Bounds `json:"bounds"`

	// Area is the number of pixels in the blob.
	Area int `json:"area"`

	// Centroid is the mean pixel position.
	Centroid geometry.Point `json:"centroid"`

	// Extremes holds the leftmost and rightmost pixel of every row the blob
	// touches. Every blob pixel lies between two of these points, so their
	// convex hull is the convex hull of the whole blob.
	Extremes []geometry.Point `json:"-"`
}

// Hull returns the convex hull of the component.
func (c Component) Hull() []geometry.Point {
	return geometry.ConvexHull(c.Extremes)
}

// Solidity compares the pixel count with the area of the convex hull,
// widened by half a pixel on every side so that a filled axis-aligned
// rectangle scores exactly 1. Hollow or ragged blobs score lower.
func (c Component) Solidity() float64 {
	hull := c.Hull()
	if len(hull) < 3 {
		if c.Area > 0 {
			return 1
		}
		return 0
	}
	perimeter := 0.0
	for i := range hull {
		perimeter += hull[i].Distance(hull[(i+1)%len(hull)])
	}
	covered := geometry.PolygonArea(hull) + perimeter/2 + 1
	return math.Min(1, float64(c.Area)/covered)
}

// Aspect is the bounding-box aspect ratio, always >= 1.
func (c Component) Aspect() float64 {
	w := float64(c.Bounds.Width())
	h := float64(c.Bounds.Height())
	if w == 0 || h == 0 {
		return math.Inf(1)
	}
	if w > h {
		return w / h
	}
	return h / w
}

// FindComponents labels the 8-connected foreground blobs of mask.
//
// Foreground is any pixel equal to 255. Blobs smaller than minArea pixels are
// discarded as noise. The result is sorted by area, largest first; ties keep
// raster-scan order so the output is deterministic.
//
// Coordinates in the result are relative to mask.Bounds().Min.
func FindComponents(mask *image.Gray, minArea int) []Component {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	fg := func(x, y int) bool {
		return mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y+y)] == 255
	}

	visited := make([]bool, width*height)
	components := make([]Component, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if visited[y*width+x] || !fg(x, y) {
				continue
			}
			comp := floodFill(fg, visited, x, y, width, height)
			if comp.Area >= minArea {
				components = append(components, comp)
			}
		}
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Area > components[j].Area
	})
	return components
}

// floodFill performs iterative flood-fill from a starting point.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow on
// page-sized blobs. Uses 8-connectivity (includes diagonal neighbors).
func floodFill(fg func(x, y int) bool, visited []bool, startX, startY, width, height int) Component {
	type rowSpan struct{ min, max int }
	rows := make(map[int]rowSpan)

	minX, minY := startX, startY
	maxX, maxY := startX, startY
	var sumX, sumY float64
	area := 0

	stack := []int{startY*width + startX}
	visited[startY*width+startX] = true

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := idx%width, idx/width

		area++
		sumX += float64(x)
		sumY += float64(y)
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
		if s, ok := rows[y]; ok {
			if x < s.min {
				s.min = x
			}
			if x > s.max {
				s.max = x
			}
			rows[y] = s
		} else {
			rows[y] = rowSpan{x, x}
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				n := ny*width + nx
				if visited[n] || !fg(nx, ny) {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}

	extremes := make([]geometry.Point, 0, 2*len(rows))
	for y := minY; y <= maxY; y++ {
		s, ok := rows[y]
		if !ok {
			continue
		}
		extremes = append(extremes, geometry.Pt(float64(s.min), float64(y)))
		if s.max != s.min {
			extremes = append(extremes, geometry.Pt(float64(s.max), float64(y)))
		}
	}

	return Component{
		Bounds:   Bounds{X1: minX, Y1: minY, X2: maxX + 1, Y2: maxY + 1},
		Area:     area,
		Centroid: geometry.Pt(sumX/float64(area), sumY/float64(area)),
		Extremes: extremes,
	}
}

package imaging

import (
	"image"
	"math"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// Percentile returns the p-quantile (p in [0,1]) of the gray levels inside r.
//
// r is clipped to the image bounds. An empty intersection returns 0.
func Percentile(g *image.Gray, r image.Rectangle, p float64) uint8 {
	r = r.Intersect(g.Bounds())
	if r.Empty() {
		return 0
	}

	var hist [256]int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := g.Pix[g.PixOffset(r.Min.X, y):]
		for x := 0; x < r.Dx(); x++ {
			hist[row[x]]++
		}
	}

	total := r.Dx() * r.Dy()
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	rank := int(math.Ceil(p * float64(total)))
	if rank < 1 {
		rank = 1
	}
	seen := 0
	for v, n := range hist {
		seen += n
		if seen >= rank {
			return uint8(v)
		}
	}
	return 255
}

// WindowAround returns the square of half-size half centred on c.
func WindowAround(c geometry.Point, half float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(c.X-half)), int(math.Floor(c.Y-half)),
		int(math.Ceil(c.X+half))+1, int(math.Ceil(c.Y+half))+1,
	)
}

// Spread returns the difference between the hi and lo quantiles of g, a
// cheap global contrast measure.
func Spread(g *image.Gray, lo, hi float64) int {
	b := g.Bounds()
	return int(Percentile(g, b, hi)) - int(Percentile(g, b, lo))
}

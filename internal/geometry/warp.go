package geometry

import (
	"image"
	"math"
)

// WarpPerspective resamples src into a width x height grayscale image.
//
// dstToSrc maps every output pixel centre back into src coordinates (the
// inverse-mapping formulation, which leaves no holes). Samples are bilinearly
// interpolated; positions outside src read as black.
func WarpPerspective(src *image.Gray, dstToSrc Homography, width, height int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+width]
		for x := 0; x < width; x++ {
			p := dstToSrc.Apply(Point{X: float64(x), Y: float64(y)})
			row[x] = SampleBilinear(src, p.X, p.Y)
		}
	}
	return out
}

// SampleBilinear reads a bilinearly interpolated value at (x, y) relative to
// the image's bounds origin. Out-of-range positions return 0.
func SampleBilinear(img *image.Gray, x, y float64) uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) {
		return 0
	}

	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= w {
		x1 = w - 1
	}
	if y1 >= h {
		y1 = h - 1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	at := func(px, py int) float64 {
		return float64(img.Pix[py*img.Stride+px])
	}
	top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
	bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx
	v := top*(1-fy) + bottom*fy
	return uint8(math.Round(v))
}

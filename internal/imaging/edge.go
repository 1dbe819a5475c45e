package imaging

import (
	"image"
	"math"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// GradientMagnitude returns the Sobel gradient magnitude of g after a light
// Gaussian blur. Strong boundaries (paper against background, printed rules)
// come back bright.
//
// The magnitude is scaled so a clean step of N gray levels reads roughly N,
// then clamped to 255.
func GradientMagnitude(g *image.Gray) *image.Gray {
	blurred := Smooth(g, 1.0)
	b := blurred.Bounds()
	width, height := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					v := float64(blurred.Pix[py*blurred.Stride+px])
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			mag := math.Sqrt(gx*gx+gy*gy) / 4
			out.Pix[y*out.Stride+x] = uint8(clamp(int(mag+0.5), 0, 255))
		}
	}
	return out
}

// EdgeSupport measures how much of the segment a-b lies on a real boundary.
//
// The segment is sampled once per pixel of length. At each sample the
// magnitude raster is read along the segment normal within ±band pixels;
// the sample counts as supported when any reading reaches level. The result is
// the supported fraction in [0,1].
//
// A sheet outline recovered from a blob should score near 1 on all four
// sides; a side that cuts through the paper's interior (because the sheet
// ran off the edge of the photo, say) scores low.
func EdgeSupport(mag *image.Gray, a, b geometry.Point, band int, level uint8) float64 {
	length := a.Distance(b)
	if length < 1 {
		return 0
	}
	dir := b.Sub(a).Scale(1 / length)
	normal := geometry.Pt(-dir.Y, dir.X)

	bounds := mag.Bounds()
	n := int(math.Ceil(length))
	supported := 0
	for i := 0; i <= n; i++ {
		p := a.Add(dir.Scale(float64(i) * length / float64(n)))
		for d := -band; d <= band; d++ {
			q := p.Add(normal.Scale(float64(d))).Round()
			if !q.In(bounds) {
				continue
			}
			if mag.GrayAt(q.X, q.Y).Y >= level {
				supported++
				break
			}
		}
	}
	return float64(supported) / float64(n+1)
}

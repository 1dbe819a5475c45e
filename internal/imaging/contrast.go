package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/anthonynsimon/bild/segment"
)

// ToGray converts any image to an 8-bit luminance raster with its origin at
// (0,0). The input is never modified.
func ToGray(img image.Image) *image.Gray {
	return fromRGBA(effect.Grayscale(img))
}

// rebase copies g into a zero-origin raster when its bounds start elsewhere.
func rebase(g *image.Gray) *image.Gray {
	b := g.Bounds()
	if b.Min == (image.Point{}) {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}

// fromRGBA collapses a bild RGBA result whose channels are equal back to gray.
func fromRGBA(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = row[x*4]
		}
	}
	return out
}

// Histogram returns the 256-bin luminance histogram of g.
func Histogram(g *image.Gray) [256]int {
	var bins [256]int
	h := histogram.NewRGBAHistogram(g)
	copy(bins[:], h.R.Bins)
	return bins
}

// OtsuLevel returns the global threshold that maximizes between-class
// variance of g's histogram. Pixels >= the level belong to the bright class.
func OtsuLevel(g *image.Gray) uint8 {
	bins := Histogram(g)

	total := 0
	var sum float64
	for v, n := range bins {
		total += n
		sum += float64(v * n)
	}
	if total == 0 {
		return 128
	}

	var sumB float64
	wB := 0
	best := 0.0
	level := 0
	for t := 0; t < 256; t++ {
		wB += bins[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * bins[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level + 1)
}

// Threshold binarizes g: pixels >= level become 255, the rest 0.
func Threshold(g *image.Gray, level uint8) *image.Gray {
	return rebase(segment.Threshold(g, level))
}

// AdaptiveDark marks pixels that are darker than their local mean by more
// than offset. The local mean is a box blur of the given radius. Marked
// pixels are 255 in the result.
func AdaptiveDark(g *image.Gray, radius float64, offset int) *image.Gray {
	mean := fromRGBA(blur.Box(g, radius))
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := int(g.Pix[g.PixOffset(b.Min.X+x, b.Min.Y+y)])
			m := int(mean.Pix[y*mean.Stride+x])
			if v < m-offset {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Smooth applies a Gaussian blur with the given radius.
func Smooth(g *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return rebase(g)
	}
	return fromRGBA(blur.Gaussian(g, radius))
}

// EqualizeAdaptive performs contrast-limited adaptive histogram equalization.
//
// The image is divided into tiles x tiles regions. Each region's histogram is
// clipped at clipLimit times the mean bin height, the excess is spread evenly
// across all bins, and the resulting cumulative distribution becomes that
// region's lookup table. Each pixel is mapped by bilinear interpolation
// between the four nearest region tables, which avoids visible tile seams.
//
// Lighting gradients across a photographed sheet are flattened this way
// while the clip limit keeps uniform paper from being stretched into noise.
func EqualizeAdaptive(g *image.Gray, tiles int, clipLimit float64) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	tx := tiles
	if tx > w {
		tx = w
	}
	ty := tiles
	if ty > h {
		ty = h
	}
	if tx < 1 {
		tx = 1
	}
	if ty < 1 {
		ty = 1
	}
	tileW := (w + tx - 1) / tx
	tileH := (h + ty - 1) / ty

	luts := make([][256]uint8, tx*ty)
	for j := 0; j < ty; j++ {
		for i := 0; i < tx; i++ {
			r := image.Rect(i*tileW, j*tileH, (i+1)*tileW, (j+1)*tileH).Intersect(image.Rect(0, 0, w, h))
			luts[j*tx+i] = tileLUT(g, r.Add(b.Min), clipLimit)
		}
	}

	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		j0 := int(math.Floor(fy))
		wy := fy - float64(j0)
		j1 := j0 + 1
		j0 = clamp(j0, 0, ty-1)
		j1 = clamp(j1, 0, ty-1)

		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			i0 := int(math.Floor(fx))
			wx := fx - float64(i0)
			i1 := i0 + 1
			i0 = clamp(i0, 0, tx-1)
			i1 = clamp(i1, 0, tx-1)

			v := g.Pix[g.PixOffset(b.Min.X+x, b.Min.Y+y)]
			top := (1-wx)*float64(luts[j0*tx+i0][v]) + wx*float64(luts[j0*tx+i1][v])
			bot := (1-wx)*float64(luts[j1*tx+i0][v]) + wx*float64(luts[j1*tx+i1][v])
			out.Pix[y*out.Stride+x] = uint8(clamp(int(math.Round((1-wy)*top+wy*bot)), 0, 255))
		}
	}
	return out
}

func tileLUT(g *image.Gray, r image.Rectangle, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	var hist [256]int
	area := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := g.Pix[g.PixOffset(r.Min.X, y):]
		for x := 0; x < r.Dx(); x++ {
			hist[row[x]]++
			area++
		}
	}
	if area == 0 {
		for v := range lut {
			lut[v] = uint8(v)
		}
		return lut
	}

	limit := int(clipLimit * float64(area) / 256)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for v, n := range hist {
		if n > limit {
			excess += n - limit
			hist[v] = limit
		}
	}
	each := excess / 256
	rest := excess % 256
	for v := range hist {
		hist[v] += each
	}
	if rest > 0 {
		step := 256 / rest
		for v := 0; v < 256 && rest > 0; v += step {
			hist[v]++
			rest--
		}
	}

	cdf := 0
	for v, n := range hist {
		cdf += n
		lut[v] = uint8(clamp(int(math.Round(float64(cdf)*255/float64(area))), 0, 255))
	}
	return lut
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

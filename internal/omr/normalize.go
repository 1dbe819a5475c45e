package omr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/omr-eval/internal/detection"
	"github.com/ironsheep/omr-eval/internal/geometry"
	imgops "github.com/ironsheep/omr-eval/internal/imaging"
)

const (
	// workingSize bounds the long side of the raster used to find the sheet.
	workingSize = 1000

	// minContrastSpread is the smallest 2nd-to-98th percentile gray spread
	// of a photo that can contain a sheet.
	minContrastSpread = 40

	// minSheetFraction is the smallest share of the frame the sheet may cover.
	minSheetFraction = 0.12

	// minEdgeFraction is the shortest allowed quad edge relative to the
	// longest one.
	minEdgeFraction = 0.2

	claheTiles     = 8
	claheClipLimit = 2.0

	edgeSupportBand  = 3
	edgeSupportLevel = 48
)

// Normalized is a sheet in canonical coordinates.
type Normalized struct {
	// Image is the rectified grayscale sheet, cfg.Width x cfg.Height.
	Image *image.Gray

	// Corners are the sheet corners in source pixel coordinates, clockwise
	// from the top-left of the upright page.
	Corners [4]geometry.Point

	// EdgeSupport is the fraction of each side (top, right, bottom, left)
	// that lies on a visible boundary in the photo.
	EdgeSupport [4]float64

	// Flipped is set when the sheet was found upside down and turned.
	Flipped bool
}

// Normalize finds the sheet in a photo and resamples it into the canonical
// raster described by cfg.
//
// # Algorithm
//
//  1. Grayscale conversion, then a downscaled working copy
//  2. Contrast check: a nearly flat photo has no sheet to find
//  3. Contrast-limited adaptive equalization to flatten uneven lighting
//  4. Otsu threshold; the largest bright component is the paper
//  5. Convex hull of the paper, reduced to four corners
//  6. Degeneracy checks on the quadrilateral
//  7. Homography from canonical to source corners; every canonical pixel is
//     sampled bilinearly from the full-resolution grayscale
//  8. Upside-down check on the header region (when configured)
//
// Returns *GeometryError when no usable outline is found. raw is not
// modified.
func Normalize(raw image.Image, cfg GridConfig) (*Normalized, error) {
	full := imgops.ToGray(raw)
	fb := full.Bounds()
	if fb.Dx() < 8 || fb.Dy() < 8 {
		return nil, &GeometryError{Reason: "image too small"}
	}

	work := full
	if fb.Dx() > workingSize || fb.Dy() > workingSize {
		work = imgops.ToGray(imaging.Fit(full, workingSize, workingSize, imaging.Linear))
	}
	wb := work.Bounds()
	sx := float64(fb.Dx()) / float64(wb.Dx())
	sy := float64(fb.Dy()) / float64(wb.Dy())

	if spread := imgops.Spread(work, 0.02, 0.98); spread < minContrastSpread {
		return nil, &GeometryError{Reason: "insufficient contrast"}
	}

	eq := imgops.EqualizeAdaptive(work, claheTiles, claheClipLimit)
	mask := imgops.Threshold(imgops.Smooth(eq, 1.0), imgops.OtsuLevel(eq))

	frameArea := float64(wb.Dx() * wb.Dy())
	comps := detection.FindComponents(mask, int(minSheetFraction*frameArea))
	if len(comps) == 0 {
		return nil, &GeometryError{Reason: "no sheet-sized bright region"}
	}

	quad, err := detection.QuadFromHull(comps[0].Hull())
	if err != nil {
		return nil, &GeometryError{Reason: "sheet outline is not a quadrilateral", Err: err}
	}
	if err := checkQuad(quad, frameArea); err != nil {
		return nil, err
	}

	var support [4]float64
	mag := imgops.GradientMagnitude(work)
	for i := 0; i < 4; i++ {
		support[i] = imgops.EdgeSupport(mag, quad[i], quad[(i+1)%4], edgeSupportBand, edgeSupportLevel)
	}

	var corners [4]geometry.Point
	for i, p := range quad {
		corners[i] = geometry.Pt((p.X+0.5)*sx-0.5, (p.Y+0.5)*sy-0.5)
	}

	rect, err := warpToCanonical(full, corners, cfg)
	if err != nil {
		return nil, err
	}

	n := &Normalized{Image: rect, Corners: corners, EdgeSupport: support}
	if upsideDown(rect, cfg) {
		n.Image = rotate180(rect)
		n.Corners = [4]geometry.Point{corners[2], corners[3], corners[0], corners[1]}
		n.EdgeSupport = [4]float64{support[2], support[3], support[0], support[1]}
		n.Flipped = true
	}
	return n, nil
}

// checkQuad rejects outlines that cannot be a photographed page.
func checkQuad(q [4]geometry.Point, frameArea float64) error {
	area := geometry.PolygonArea(q[:])
	if area <= 0 {
		return &GeometryError{Reason: "sheet corners are not in clockwise order"}
	}
	if area < minSheetFraction*frameArea {
		return &GeometryError{Reason: "sheet outline too small"}
	}
	if !geometry.IsConvex(q[:]) {
		return &GeometryError{Reason: "sheet outline is not convex"}
	}

	shortest, longest := math.Inf(1), 0.0
	for i := 0; i < 4; i++ {
		l := q[i].Distance(q[(i+1)%4])
		shortest = math.Min(shortest, l)
		longest = math.Max(longest, l)
	}
	if shortest < minEdgeFraction*longest {
		return &GeometryError{Reason: "sheet outline has a collapsed edge"}
	}
	return nil
}

// warpToCanonical maps the canonical page rectangle onto the source corners
// and samples the full-resolution raster through that mapping.
func warpToCanonical(full *image.Gray, corners [4]geometry.Point, cfg GridConfig) (*image.Gray, error) {
	w, h := float64(cfg.Width-1), float64(cfg.Height-1)
	canonical := [4]geometry.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}

	hm, err := geometry.SolveHomography(canonical, corners)
	if err != nil {
		return nil, &GeometryError{Reason: "perspective transform is degenerate", Err: err}
	}
	return geometry.WarpPerspective(full, hm, cfg.Width, cfg.Height), nil
}

// upsideDown compares ink in the header region with ink in its point mirror
// near the bottom edge. An upright sheet prints its header; the mirror area
// is blank.
func upsideDown(img *image.Gray, cfg GridConfig) bool {
	if cfg.HeaderRegion.Empty() {
		return false
	}
	header := cfg.HeaderRegion.Image()
	mirror := image.Rect(
		cfg.Width-header.Max.X, cfg.Height-header.Max.Y,
		cfg.Width-header.Min.X, cfg.Height-header.Min.Y,
	)

	b := img.Bounds()
	lo := imgops.Percentile(img, b, 0.02)
	hi := imgops.Percentile(img, b, 0.98)
	dark := uint8((int(lo) + int(hi)) / 2)

	top := inkFraction(img, header, dark)
	bottom := inkFraction(img, mirror, dark)
	return bottom > 2*top+0.002
}

func inkFraction(img *image.Gray, r image.Rectangle, dark uint8) float64 {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, y):]
		for x := 0; x < r.Dx(); x++ {
			if row[x] < dark {
				n++
			}
		}
	}
	return float64(n) / float64(r.Dx()*r.Dy())
}

func rotate180(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[(h-1-y)*out.Stride+(w-1-x)] = img.Pix[y*img.Stride+x]
		}
	}
	return out
}

package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay palette. Bubble rings blend from Empty to Filled in Lab space by
// fill score; resolved answers are ringed in Selected, ties in Ambiguous.
const (
	ColorEmpty     = "#3B82F6"
	ColorFilled    = "#EF4444"
	ColorSelected  = "#22C55E"
	ColorAmbiguous = "#F59E0B"
	ColorAnchor    = "#A855F7"
)

// OverlayMark is one bubble to draw.
type OverlayMark struct {
	Center image.Point
	Radius int
	// Score in [0,1] picks the ring colour.
	Score float64
	// Highlight is "", "selected" or "ambiguous".
	Highlight string
}

// OverlayLabel is a short text drawn with its top-left at Pos.
type OverlayLabel struct {
	Pos  image.Point
	Text string
}

// OverlaySpec collects everything DrawOverlay renders.
type OverlaySpec struct {
	Marks   []OverlayMark
	Anchors []image.Point
	Labels  []OverlayLabel
}

// DrawOverlay renders spec on top of a copy of base.
func DrawOverlay(base image.Image, spec OverlaySpec) *image.RGBA {
	bounds := base.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), base, bounds.Min, draw.Src)

	empty := mustHex(ColorEmpty)
	filled := mustHex(ColorFilled)
	selected := mustHex(ColorSelected)
	ambiguous := mustHex(ColorAmbiguous)
	anchor := mustHex(ColorAnchor)

	for _, m := range spec.Marks {
		t := math.Max(0, math.Min(1, m.Score))
		ring := empty.BlendLab(filled, t).Clamped()
		drawRing(result, m.Center, m.Radius, 1, ring)

		switch m.Highlight {
		case "selected":
			drawRing(result, m.Center, m.Radius+3, 2, selected)
		case "ambiguous":
			drawRing(result, m.Center, m.Radius+3, 2, ambiguous)
		}
	}

	for _, a := range spec.Anchors {
		drawCross(result, a, 12, anchor)
	}

	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}
	for _, l := range spec.Labels {
		drawLabel(result, l.Pos.X, l.Pos.Y, l.Text, fg, bg)
	}

	return result
}

func mustHex(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(err)
	}
	return c
}

func drawRing(img *image.RGBA, c image.Point, radius, thickness int, col color.Color) {
	if radius <= 0 {
		return
	}
	rOut := float64(radius) + float64(thickness)/2
	rIn := float64(radius) - float64(thickness)/2
	bounds := img.Bounds()
	ext := radius + thickness + 1
	for dy := -ext; dy <= ext; dy++ {
		for dx := -ext; dx <= ext; dx++ {
			d := math.Hypot(float64(dx), float64(dy))
			if d < rIn || d > rOut {
				continue
			}
			p := image.Pt(c.X+dx, c.Y+dy)
			if p.In(bounds) {
				img.Set(p.X, p.Y, col)
			}
		}
	}
}

func drawCross(img *image.RGBA, c image.Point, arm int, col color.Color) {
	bounds := img.Bounds()
	for d := -arm; d <= arm; d++ {
		for w := -1; w <= 1; w++ {
			if p := image.Pt(c.X+d, c.Y+w); p.In(bounds) {
				img.Set(p.X, p.Y, col)
			}
			if p := image.Pt(c.X+w, c.Y+d); p.In(bounds) {
				img.Set(p.X, p.Y, col)
			}
		}
	}
}

// drawLabel draws text in the 7x13 bitmap face on a filled background box.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	box := image.Rect(x-1, y-1, x+width+1, y+face.Height+1).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}

package sheetgen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/transform"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// Frame is the photo a sheet is placed into.
type Frame struct {
	Width, Height int
	// Background is the gray level around the sheet.
	Background uint8
}

// Place projects sheet into a frame so that its corners land on corners
// (top-left, top-right, bottom-right, bottom-left of the sheet). Pixels
// outside the sheet take the frame background.
func Place(sheet *image.Gray, frame Frame, corners [4]geometry.Point) (*image.Gray, error) {
	if frame.Width < 1 || frame.Height < 1 {
		return nil, fmt.Errorf("invalid frame size %dx%d", frame.Width, frame.Height)
	}
	sb := sheet.Bounds()
	w, h := float64(sb.Dx()-1), float64(sb.Dy()-1)
	src := [4]geometry.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}

	frameToSheet, err := geometry.SolveHomography(corners, src)
	if err != nil {
		return nil, fmt.Errorf("failed to place sheet: %w", err)
	}

	out := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+frame.Width]
		for x := 0; x < frame.Width; x++ {
			p := frameToSheet.Apply(geometry.Pt(float64(x), float64(y)))
			if p.X < 0 || p.Y < 0 || p.X > w || p.Y > h {
				row[x] = frame.Background
				continue
			}
			row[x] = geometry.SampleBilinear(sheet, p.X, p.Y)
		}
	}
	return out, nil
}

// Centered places sheet upright in the middle of the frame at its own size.
func Centered(sheet *image.Gray, frame Frame) (*image.Gray, error) {
	sb := sheet.Bounds()
	x0 := float64(frame.Width-sb.Dx()) / 2
	y0 := float64(frame.Height-sb.Dy()) / 2
	x1 := x0 + float64(sb.Dx()-1)
	y1 := y0 + float64(sb.Dy()-1)
	return Place(sheet, frame, [4]geometry.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
}

// Rotate turns sheet clockwise by angle degrees, grows the canvas to hold
// it and composites the result onto a background of the given gray level,
// padded by margin pixels on every side.
func Rotate(sheet *image.Gray, angle float64, background uint8, margin int) *image.Gray {
	rotated := transform.Rotate(sheet, angle, &transform.RotationOptions{ResizeBounds: true})
	rb := rotated.Bounds()

	out := image.NewGray(image.Rect(0, 0, rb.Dx()+2*margin, rb.Dy()+2*margin))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Gray{Y: background}), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(margin, margin, margin+rb.Dx(), margin+rb.Dy()), rotated, rb.Min, draw.Over)
	return out
}

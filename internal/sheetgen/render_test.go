package sheetgen

import (
	"image"
	"testing"

	"github.com/ironsheep/omr-eval/internal/geometry"
	"github.com/ironsheep/omr-eval/internal/omr"
)

func darkFraction(img *image.Gray, r image.Rectangle) float64 {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.GrayAt(x, y).Y < 128 {
				n++
			}
		}
	}
	return float64(n) / float64(r.Dx()*r.Dy())
}

func TestRenderBlankTemplate(t *testing.T) {
	cfg := omr.DefaultGridConfig()
	img, err := Render(cfg, Options{SetLabel: "A"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if img.Bounds().Dx() != cfg.Width || img.Bounds().Dy() != cfg.Height {
		t.Fatalf("size = %v, want %dx%d", img.Bounds(), cfg.Width, cfg.Height)
	}

	for i, a := range cfg.Anchors {
		if v := img.GrayAt(int(a.X), int(a.Y)).Y; v != 0 {
			t.Errorf("anchor %d centre = %d, want solid ink", i, v)
		}
	}

	c := cfg.TemplateCenter(2, 7, 1)
	if v := img.GrayAt(int(c.X), int(c.Y)).Y; v != 255 {
		t.Errorf("empty bubble centre = %d, want paper", v)
	}
	if v := img.GrayAt(int(c.X+cfg.BubbleRadius), int(c.Y)).Y; v != 0 {
		t.Errorf("bubble outline = %d, want ink", v)
	}

	header := cfg.HeaderRegion.Image()
	mirror := image.Rect(cfg.Width-header.Max.X, cfg.Height-header.Max.Y, cfg.Width-header.Min.X, cfg.Height-header.Min.Y)
	if f := darkFraction(img, header); f < 0.02 {
		t.Errorf("header ink fraction = %.4f, want >= 0.02", f)
	}
	if f := darkFraction(img, mirror); f != 0 {
		t.Errorf("header mirror ink fraction = %.4f, want 0", f)
	}
	if f := darkFraction(img, cfg.SetLabelRegion.Image()); f == 0 {
		t.Error("expected SET label ink")
	}
}

func TestRenderMarks(t *testing.T) {
	cfg := omr.DefaultGridConfig()
	img, err := Render(cfg, Options{Marks: []Mark{
		{Subject: 0, Question: 0, Choice: 2, Fill: 1},
		{Subject: 4, Question: 19, Choice: 3, Fill: 0.5},
	}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	c := cfg.TemplateCenter(0, 0, 2)
	disc := image.Rect(int(c.X)-5, int(c.Y)-5, int(c.X)+5, int(c.Y)+5)
	if f := darkFraction(img, disc); f != 1 {
		t.Errorf("filled bubble dark fraction = %.2f, want 1", f)
	}

	c = cfg.TemplateCenter(4, 19, 3)
	if v := img.GrayAt(int(c.X), int(c.Y)).Y; v != 0 {
		t.Errorf("half-filled bubble centre = %d, want ink", v)
	}
	if v := img.GrayAt(int(c.X)+7, int(c.Y)).Y; v != 255 {
		t.Errorf("half-filled bubble rim = %d, want paper", v)
	}
}

func TestRenderRejectsMarkOutsideGrid(t *testing.T) {
	cfg := omr.DefaultGridConfig()
	_, err := Render(cfg, Options{Marks: []Mark{{Subject: 0, Question: 0, Choice: 4, Fill: 1}}})
	if err == nil {
		t.Fatal("expected error for choice outside the grid")
	}
}

func TestRenderRejectsInvalidConfig(t *testing.T) {
	cfg := omr.DefaultGridConfig()
	cfg.Subjects = nil
	if _, err := Render(cfg, Options{}); err == nil {
		t.Fatal("expected error for config without subjects")
	}
}

func TestMarksForSkipsBlank(t *testing.T) {
	marks := MarksFor([][]int{{0, omr.NoAnswer, 3}, {1}})
	if len(marks) != 3 {
		t.Fatalf("got %d marks, want 3", len(marks))
	}
	if marks[1].Question != 2 || marks[1].Choice != 3 {
		t.Errorf("second mark = %+v", marks[1])
	}
	if marks[2].Subject != 1 {
		t.Errorf("third mark subject = %d, want 1", marks[2].Subject)
	}
}

func TestPlaceMapsCorners(t *testing.T) {
	cfg := omr.DefaultGridConfig()
	sheet, err := Render(cfg, Options{})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	corners := [4]geometry.Point{{X: 150, Y: 120}, {X: 1080, Y: 180}, {X: 1120, Y: 1500}, {X: 90, Y: 1450}}
	photo, err := Place(sheet, Frame{Width: 1200, Height: 1600, Background: 40}, corners)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	if v := photo.GrayAt(10, 10).Y; v != 40 {
		t.Errorf("background = %d, want 40", v)
	}
	// Paper just inside the top-left corner.
	if v := photo.GrayAt(155, 126).Y; v < 200 {
		t.Errorf("paper near top-left corner = %d, want bright", v)
	}
}

func TestCenteredKeepsSheetUpright(t *testing.T) {
	sheet := image.NewGray(image.Rect(0, 0, 10, 20))
	for i := range sheet.Pix {
		sheet.Pix[i] = 255
	}
	photo, err := Centered(sheet, Frame{Width: 30, Height: 40, Background: 0})
	if err != nil {
		t.Fatalf("Centered failed: %v", err)
	}
	if v := photo.GrayAt(15, 20).Y; v != 255 {
		t.Errorf("centre = %d, want 255", v)
	}
	if v := photo.GrayAt(5, 5).Y; v != 0 {
		t.Errorf("outside = %d, want 0", v)
	}
}

func TestRotateGrowsCanvas(t *testing.T) {
	sheet := image.NewGray(image.Rect(0, 0, 100, 140))
	for i := range sheet.Pix {
		sheet.Pix[i] = 255
	}
	out := Rotate(sheet, 90, 30, 10)
	b := out.Bounds()
	if b.Dx() < 158 || b.Dx() > 162 || b.Dy() < 118 || b.Dy() > 122 {
		t.Fatalf("rotated size = %dx%d, want about 160x120", b.Dx(), b.Dy())
	}
	if v := out.GrayAt(2, 2).Y; v != 30 {
		t.Errorf("margin = %d, want 30", v)
	}
	if v := out.GrayAt(80, 60).Y; v != 255 {
		t.Errorf("sheet centre = %d, want 255", v)
	}
}

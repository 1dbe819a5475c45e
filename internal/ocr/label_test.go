package ocr

import (
	"context"
	"image"
	"testing"

	"github.com/ironsheep/omr-eval/internal/omr"
	"github.com/ironsheep/omr-eval/internal/sheetgen"
)

func TestParseSetLabel(t *testing.T) {
	cases := map[string]string{
		"SET A":        "A",
		"set b":        "B",
		"SET-C":        "C",
		"SET: D\n":     "D",
		"  SETB  ":     "B",
		"ANSWER SHEET": "",
		"SETTLE":       "",
		"":             "",
	}
	for in, want := range cases {
		if got := ParseSetLabel(in); got != want {
			t.Errorf("ParseSetLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadTextRejectsRegionOutsideImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 50, 50))
	r := NewLabelReader("", "")
	if _, err := r.ReadText(img, image.Rect(100, 100, 200, 150)); err == nil {
		t.Error("expected error for region outside image")
	}
}

func TestPrepareLabelUpscales(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 60))
	data, err := prepareLabel(img, image.Rect(10, 10, 50, 30))
	if err != nil {
		t.Fatalf("prepareLabel failed: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("expected PNG data")
	}
}

func TestDetectVariantOnRenderedSheet(t *testing.T) {
	if !GetInfo().Available {
		t.Skip("Tesseract not available")
	}
	cfg := omr.DefaultGridConfig()
	sheet, err := sheetgen.Render(cfg, sheetgen.Options{SetLabel: "B"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	r := NewLabelReader("", "")
	got, err := r.DetectVariant(context.Background(), sheet, cfg.SetLabelRegion.Image())
	if err != nil {
		t.Skipf("Tesseract not usable: %v", err)
	}
	if got != "B" {
		t.Errorf("DetectVariant = %q, want B", got)
	}
}

func TestDetectVariantCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := image.NewGray(image.Rect(0, 0, 50, 50))
	if _, err := NewLabelReader("", "").DetectVariant(ctx, img, img.Bounds()); err == nil {
		t.Error("expected context error")
	}
}

package omr

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"
)

// templateCells places every bubble at its template position.
func templateCells(cfg GridConfig) []BubbleCell {
	var cells []BubbleCell
	for s := range cfg.Subjects {
		for q := 0; q < cfg.QuestionsPerSubject; q++ {
			for c := 0; c < cfg.Choices; c++ {
				cells = append(cells, BubbleCell{
					Subject: s, Question: q, Choice: c,
					Center: cfg.TemplateCenter(s, q, c),
					Radius: cfg.BubbleRadius,
				})
			}
		}
	}
	return cells
}

// paintDisc sets pixels within [inner, outer] of the cell centre to v,
// limited to those accepted by keep.
func paintDisc(img *image.Gray, cell BubbleCell, inner, outer float64, v uint8, keep func(dx, dy float64) bool) {
	cx, cy := cell.Center.X, cell.Center.Y
	for y := int(cy - outer - 1); y <= int(cy+outer+1); y++ {
		for x := int(cx - outer - 1); x <= int(cx+outer+1); x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			d := math.Hypot(dx, dy)
			if d < inner || d > outer || (keep != nil && !keep(dx, dy)) {
				continue
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

// printedSheet draws every bubble outline on a white page.
func printedSheet(cfg GridConfig, cells []BubbleCell) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	for _, c := range cells {
		paintDisc(img, c, c.Radius-1.5, c.Radius, 0, nil)
	}
	return img
}

func TestClassifyKnownFills(t *testing.T) {
	cfg := DefaultGridConfig()
	cells := templateCells(cfg)
	img := printedSheet(cfg, cells)

	full := cfg.CellIndex(0, 0, 1)
	pencil := cfg.CellIndex(1, 4, 0)
	half := cfg.CellIndex(2, 9, 2)
	speck := cfg.CellIndex(3, 15, 3)
	empty := cfg.CellIndex(4, 19, 0)

	paintDisc(img, cells[full], 0, cells[full].Radius, 0, nil)
	paintDisc(img, cells[pencil], 0, cells[pencil].Radius, 90, nil)
	paintDisc(img, cells[half], 0, cells[half].Radius, 0, func(dx, _ float64) bool { return dx < 0 })
	paintDisc(img, cells[speck], 0, 2, 0, nil)

	scores := Classify(img, cells, cfg, ClassifierParams{})
	if len(scores) != len(cells) {
		t.Fatalf("got %d scores, want %d", len(scores), len(cells))
	}

	check := func(name string, idx int, lo, hi float64) {
		t.Helper()
		if s := scores[idx]; s < lo || s > hi {
			t.Errorf("%s bubble scored %.3f, want [%.2f, %.2f]", name, s, lo, hi)
		}
	}
	check("full", full, 0.99, 1)
	check("pencil", pencil, 0.99, 1)
	check("half", half, 0.35, 0.6)
	check("speck", speck, 0.05, 0.25)
	check("empty", empty, 0, 0)

	marked := map[int]bool{full: true, pencil: true, half: true, speck: true}
	for i, s := range scores {
		if !marked[i] && s != 0 {
			t.Fatalf("untouched bubble %d scored %.3f", i, s)
		}
	}
}

func TestClassifyFlatNeighbourhoodScoresZero(t *testing.T) {
	cfg := DefaultGridConfig()
	cells := templateCells(cfg)
	img := printedSheet(cfg, cells)

	// A dark blot covering a bubble and its surroundings has no paper to
	// compare against.
	idx := cfg.CellIndex(2, 10, 1)
	c := cells[idx].Center
	blot := image.Rect(int(c.X)-40, int(c.Y)-40, int(c.X)+41, int(c.Y)+41)
	draw.Draw(img, blot, image.NewUniform(color.Gray{Y: 5}), image.Point{}, draw.Src)

	scores := Classify(img, cells, cfg, DefaultClassifierParams())
	if scores[idx] != 0 {
		t.Errorf("blotted bubble scored %.3f, want 0", scores[idx])
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	cfg := DefaultGridConfig()
	cells := templateCells(cfg)
	img := printedSheet(cfg, cells)
	for i := 0; i < len(cells); i += 7 {
		paintDisc(img, cells[i], 0, cells[i].Radius*float64(i%3)/2, 0, nil)
	}

	first := Classify(img, cells, cfg, ClassifierParams{})
	for run := 0; run < 3; run++ {
		again := Classify(img, cells, cfg, ClassifierParams{})
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run %d: cell %d scored %v then %v", run, i, first[i], again[i])
			}
		}
	}
}

func TestClassifyEmptyCells(t *testing.T) {
	cfg := DefaultGridConfig()
	if got := Classify(image.NewGray(image.Rect(0, 0, 10, 10)), nil, cfg, ClassifierParams{}); len(got) != 0 {
		t.Errorf("got %d scores for no cells", len(got))
	}
}

package omr

import (
	"image"
	"math"
	"sync"

	imgops "github.com/ironsheep/omr-eval/internal/imaging"
)

// ClassifierParams tunes how fill scores are computed. The zero value is
// replaced by DefaultClassifierParams.
type ClassifierParams struct {
	// PaperPercentile picks the local paper level from the window around a
	// cell.
	PaperPercentile float64 `json:"paper_percentile"`

	// InkPercentile picks the sheet-wide ink level from the grid region.
	InkPercentile float64 `json:"ink_percentile"`

	// InkBias places the dark/light threshold between ink (0) and paper (1).
	InkBias float64 `json:"ink_bias"`

	// MinContrast is the smallest paper-ink difference that can hold a mark.
	MinContrast float64 `json:"min_contrast"`

	// InnerRadius is the sampling disc radius as a fraction of the bubble
	// radius. Keeping it well inside the printed outline means an empty
	// bubble reads as paper.
	InnerRadius float64 `json:"inner_radius"`

	// Window is the half-size of the paper window, in bubble radii.
	Window float64 `json:"window"`
}

// DefaultClassifierParams returns the standard tuning.
func DefaultClassifierParams() ClassifierParams {
	return ClassifierParams{
		PaperPercentile: 0.90,
		InkPercentile:   0.02,
		InkBias:         0.5,
		MinContrast:     24,
		InnerRadius:     0.6,
		Window:          2.2,
	}
}

func (p ClassifierParams) orDefault() ClassifierParams {
	if p == (ClassifierParams{}) {
		return DefaultClassifierParams()
	}
	return p
}

// Classify computes one fill score per cell: the fraction of pixels inside
// the cell's inner disc that are darker than the local threshold.
//
// The threshold adapts to both the sheet and the neighbourhood. Ink is the
// darkest few percent of the grid region (pen or pencil on this sheet);
// paper is the bright end of a window around the cell, which follows
// shadows and lighting gradients. A neighbourhood with almost no contrast
// between the two scores 0.
//
// Work is split across one goroutine per subject; each writes only its own
// indices of the result, so the output does not depend on scheduling.
func Classify(img *image.Gray, cells []BubbleCell, cfg GridConfig, params ClassifierParams) []float64 {
	p := params.orDefault()
	scores := make([]float64, len(cells))
	if len(cells) == 0 {
		return scores
	}

	ink := float64(imgops.Percentile(img, cfg.GridRegion(), p.InkPercentile))

	perSubject := cfg.QuestionsPerSubject * cfg.Choices
	var wg sync.WaitGroup
	for start := 0; start < len(cells); start += perSubject {
		end := start + perSubject
		if end > len(cells) {
			end = len(cells)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				scores[i] = fillScore(img, cells[i], ink, p)
			}
		}(start, end)
	}
	wg.Wait()
	return scores
}

func fillScore(img *image.Gray, cell BubbleCell, ink float64, p ClassifierParams) float64 {
	window := imgops.WindowAround(cell.Center, p.Window*cell.Radius)
	paper := float64(imgops.Percentile(img, window, p.PaperPercentile))
	if paper-ink < p.MinContrast {
		return 0
	}
	threshold := ink + p.InkBias*(paper-ink)

	r := p.InnerRadius * cell.Radius
	r2 := r * r
	b := img.Bounds()
	x0 := int(math.Floor(cell.Center.X - r))
	x1 := int(math.Ceil(cell.Center.X + r))
	y0 := int(math.Floor(cell.Center.Y - r))
	y1 := int(math.Ceil(cell.Center.Y + r))

	dark, total := 0, 0
	for y := y0; y <= y1; y++ {
		dy := float64(y) - cell.Center.Y
		for x := x0; x <= x1; x++ {
			dx := float64(x) - cell.Center.X
			if dx*dx+dy*dy > r2 {
				continue
			}
			total++
			if !image.Pt(x, y).In(b) {
				continue
			}
			if float64(img.Pix[img.PixOffset(x, y)]) < threshold {
				dark++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(dark) / float64(total)
}

package omr

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/omr-eval/internal/geometry"
	imgops "github.com/ironsheep/omr-eval/internal/imaging"
)

// RawImage is a photographed or scanned sheet as captured.
type RawImage struct {
	img image.Image
}

// NewRawImage wraps a decoded image. The pipeline never writes to it.
func NewRawImage(img image.Image) RawImage {
	return RawImage{img: img}
}

// Image returns the wrapped image.
func (r RawImage) Image() image.Image { return r.img }

// Width and Height return the pixel dimensions.
func (r RawImage) Width() int  { return r.img.Bounds().Dx() }
func (r RawImage) Height() int { return r.img.Bounds().Dy() }

// Channels returns 1 for grayscale, 3 for colour, 4 with alpha.
func (r RawImage) Channels() int { return imgops.Channels(r.img) }

// VariantDetector reads the printed key-variant label of a rectified sheet.
// It returns "" when no label can be read.
type VariantDetector interface {
	DetectVariant(ctx context.Context, sheet *image.Gray, region image.Rectangle) (string, error)
}

// SheetIDReader decodes the printed sheet identifier of a rectified sheet.
// It returns "" when the sheet carries none.
type SheetIDReader interface {
	ReadSheetID(ctx context.Context, sheet *image.Gray, region image.Rectangle) (string, error)
}

// Options controls one evaluation.
type Options struct {
	// FillThreshold: a choice is marked when its score is above this.
	// Zero means DefaultFillThreshold.
	FillThreshold float64
	// AmbiguityMargin: two marks closer than this make a question ambiguous.
	// Zero means DefaultAmbiguityMargin.
	AmbiguityMargin float64

	Classifier ClassifierParams
	Scoring    ScoringRule

	// Variant selects the key variant explicitly. Empty lets the
	// VariantDetector decide, falling back to the set's first variant.
	Variant string

	VariantDetector VariantDetector
	SheetIDReader   SheetIDReader

	// Debug requests intermediate artifacts. It never changes the report.
	Debug bool

	// Logger receives stage timings; nil discards.
	Logger logrus.FieldLogger
}

// DefaultOptions returns the standard decision parameters.
func DefaultOptions() Options {
	return Options{
		FillThreshold:   DefaultFillThreshold,
		AmbiguityMargin: DefaultAmbiguityMargin,
		Classifier:      DefaultClassifierParams(),
	}
}

// Decision returns the fill threshold and ambiguity margin, with zero
// values replaced by their defaults.
func (o Options) Decision() (threshold, margin float64) {
	threshold, margin = o.FillThreshold, o.AmbiguityMargin
	if threshold == 0 {
		threshold = DefaultFillThreshold
	}
	if margin == 0 {
		margin = DefaultAmbiguityMargin
	}
	return threshold, margin
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DebugArtifacts exposes the intermediate results of one evaluation.
type DebugArtifacts struct {
	Rectified   *image.Gray       `json:"-"`
	Overlay     *image.RGBA       `json:"-"`
	Corners     [4]geometry.Point `json:"corners"`
	EdgeSupport [4]float64        `json:"edge_support"`
	Flipped     bool              `json:"flipped"`
	Anchors     []AnchorMatch     `json:"anchors"`
	Cells       []BubbleCell      `json:"-"`
	FillScores  []float64         `json:"fill_scores"`
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Report *ScoreReport
	Debug  *DebugArtifacts
}

// Evaluate runs the full pipeline on one sheet.
//
// The key set is validated before any image work, so an incomplete key fails
// fast with *InvalidKeyError. ctx is checked between stages.
func Evaluate(ctx context.Context, raw RawImage, cfg GridConfig, keys *KeySet, opts Options) (*Evaluation, error) {
	log := opts.logger()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	if err := keys.Validate(cfg); err != nil {
		return nil, err
	}
	if raw.img == nil {
		return nil, &GeometryError{Reason: "no image"}
	}

	stage := func(name string, started time.Time) {
		log.WithFields(logrus.Fields{"stage": name, "elapsed": time.Since(started)}).Debug("stage done")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()
	norm, err := Normalize(raw.img, cfg)
	if err != nil {
		return nil, err
	}
	stage("normalize", started)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started = time.Now()
	loc, err := Locate(norm.Image, cfg)
	if err != nil {
		return nil, err
	}
	stage("locate", started)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started = time.Now()
	scores := Classify(norm.Image, loc.Cells, cfg, opts.Classifier)
	threshold, margin := opts.Decision()
	answers := ResolveAll(cfg, scores, threshold, margin)
	stage("classify", started)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := selectKey(ctx, keys, norm.Image, cfg, opts, log)
	if err != nil {
		return nil, err
	}

	report, err := Score(cfg, answers, key, opts.Scoring)
	if err != nil {
		return nil, err
	}
	for i := range report.Questions {
		start := i * cfg.Choices
		report.Questions[i].FillScores = roundScores(scores[start : start+cfg.Choices])
	}

	if opts.SheetIDReader != nil && !cfg.SheetIDRegion.Empty() {
		id, err := opts.SheetIDReader.ReadSheetID(ctx, norm.Image, cfg.SheetIDRegion.Image())
		if err != nil {
			log.WithError(err).Debug("sheet id not read")
		}
		report.SheetID = id
	}

	eval := &Evaluation{Report: report}
	if opts.Debug {
		eval.Debug = &DebugArtifacts{
			Rectified:   norm.Image,
			Overlay:     DrawGridOverlay(norm.Image, loc, scores, answers, cfg),
			Corners:     norm.Corners,
			EdgeSupport: norm.EdgeSupport,
			Flipped:     norm.Flipped,
			Anchors:     loc.Anchors,
			Cells:       loc.Cells,
			FillScores:  scores,
		}
	}

	log.WithFields(logrus.Fields{
		"total":     report.Total,
		"variant":   report.Variant,
		"blank":     report.BlankCount(),
		"ambiguous": report.AmbiguousCount(),
	}).Debug("sheet scored")
	return eval, nil
}

// selectKey applies the variant precedence: explicit option, then a
// detected label that names a known variant, then the set's default.
func selectKey(ctx context.Context, keys *KeySet, sheet *image.Gray, cfg GridConfig, opts Options, log logrus.FieldLogger) (*AnswerKey, error) {
	if opts.Variant != "" {
		k, ok := keys.Get(opts.Variant)
		if !ok {
			return nil, &InvalidKeyError{Reason: "unknown variant", Variant: opts.Variant}
		}
		return k, nil
	}

	if opts.VariantDetector != nil && !cfg.SetLabelRegion.Empty() && len(keys.Variants()) > 1 {
		v, err := opts.VariantDetector.DetectVariant(ctx, sheet, cfg.SetLabelRegion.Image())
		switch {
		case err != nil:
			log.WithError(err).Warn("variant label not read, using default key")
		case v != "":
			if k, ok := keys.Get(v); ok {
				return k, nil
			}
			log.WithField("variant", v).Warn("label names an unknown variant, using default key")
		}
	}

	return keys.Default(), nil
}

// roundScores keeps three decimals for the audit trail.
func roundScores(s []float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(int(v*1000+0.5)) / 1000
	}
	return out
}

// DrawGridOverlay renders located bubbles coloured by fill score, resolved
// answers and matched anchors on top of a rectified sheet.
func DrawGridOverlay(img *image.Gray, loc *GridLocation, scores []float64, answers []ResolvedAnswer, cfg GridConfig) *image.RGBA {
	spec := imgops.OverlaySpec{Marks: make([]imgops.OverlayMark, len(loc.Cells))}
	for i, cell := range loc.Cells {
		ans := answers[i/cfg.Choices]
		highlight := ""
		switch {
		case ans.IsAmbiguous():
			highlight = "ambiguous"
		case ans.Status == StatusChoice && ans.Choice == cell.Choice:
			highlight = "selected"
		}
		spec.Marks[i] = imgops.OverlayMark{
			Center:    cell.Center.Round(),
			Radius:    int(cell.Radius + 0.5),
			Score:     scores[i],
			Highlight: highlight,
		}
	}
	for _, a := range loc.Anchors {
		if a.Matched {
			spec.Anchors = append(spec.Anchors, a.Found.Round())
		}
	}
	for s, name := range cfg.Subjects {
		top := cfg.TemplateCenter(s, 0, 0)
		p := loc.Transform.Apply(geometry.Pt(top.X-cfg.BubbleRadius, top.Y-2.5*cfg.BubbleRadius-13))
		spec.Labels = append(spec.Labels, imgops.OverlayLabel{Pos: p.Round(), Text: name})
	}
	return imgops.DrawOverlay(img, spec)
}

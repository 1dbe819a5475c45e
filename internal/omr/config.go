package omr

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// maxAnchors bounds the anchor count; Locate searches every assignment of
// candidates to anchors.
const maxAnchors = 8

// Rect is an axis-aligned region in canonical sheet coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the region has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Image converts r to integer pixel bounds.
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.W), int(r.Y+r.H))
}

// Anchor is a printed registration square, given by its centre.
type Anchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the anchor centre as a geometry point.
func (a Anchor) Point() geometry.Point { return geometry.Pt(a.X, a.Y) }

// GridConfig describes the fixed geometry of a bubble sheet in canonical
// (rectified) pixel coordinates.
//
// The centre of the bubble for subject s, question q and choice c (all
// zero-based) is
//
//	x = OriginX + s*SubjectPitch + c*ChoicePitch
//	y = OriginY + q*RowPitch
type GridConfig struct {
	// Subjects names the subject columns left to right.
	Subjects []string `json:"subjects"`

	// QuestionsPerSubject is the number of rows in each subject column.
	QuestionsPerSubject int `json:"questions_per_subject"`

	// Choices is the number of bubbles per question (A, B, C, ...).
	Choices int `json:"choices"`

	// Width and Height are the canonical raster dimensions. The sheet is
	// always portrait: Height > Width.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Anchors lists the registration squares.
	Anchors []Anchor `json:"anchors"`

	// AnchorSize is the printed side length of every anchor square.
	AnchorSize float64 `json:"anchor_size"`

	// MinAnchors is the fewest matched anchors that still define the grid.
	MinAnchors int `json:"min_anchors"`

	// AnchorTolerance is how far (pixels) a detected square may sit from its
	// template position and still be considered a match.
	AnchorTolerance float64 `json:"anchor_tolerance"`

	// MaxResidual is the largest allowed distance between a matched anchor
	// and the fitted template position.
	MaxResidual float64 `json:"max_residual"`

	OriginX      float64 `json:"origin_x"`
	OriginY      float64 `json:"origin_y"`
	SubjectPitch float64 `json:"subject_pitch"`
	ChoicePitch  float64 `json:"choice_pitch"`
	RowPitch     float64 `json:"row_pitch"`

	// BubbleRadius is the printed outer radius of a bubble.
	BubbleRadius float64 `json:"bubble_radius"`

	// SetLabelRegion holds the printed "SET X" key-variant label.
	SetLabelRegion Rect `json:"set_label_region"`

	// SheetIDRegion holds the optional QR sheet identifier.
	SheetIDRegion Rect `json:"sheet_id_region"`

	// HeaderRegion always carries printed header ink on an upright sheet;
	// its point mirror near the bottom edge is blank. Used to detect sheets
	// photographed upside down. Empty disables the check.
	HeaderRegion Rect `json:"header_region"`
}

// DefaultGridConfig returns the standard 100-question layout: five subjects
// of twenty questions with choices A to D on a 1000x1400 canonical page.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Subjects:            []string{"Python", "Data Analysis", "MySQL", "Power BI", "Statistics"},
		QuestionsPerSubject: 20,
		Choices:             4,
		Width:               1000,
		Height:              1400,
		Anchors: []Anchor{
			{X: 60, Y: 140},
			{X: 940, Y: 140},
			{X: 940, Y: 1320},
			{X: 60, Y: 1320},
		},
		AnchorSize:      30,
		MinAnchors:      3,
		AnchorTolerance: 60,
		MaxResidual:     8,
		OriginX:         130,
		OriginY:         220,
		SubjectPitch:    170,
		ChoicePitch:     30,
		RowPitch:        55,
		BubbleRadius:    10,
		SetLabelRegion:  Rect{X: 40, Y: 20, W: 260, H: 70},
		SheetIDRegion:   Rect{X: 820, Y: 10, W: 110, H: 110},
		HeaderRegion:    Rect{X: 100, Y: 10, W: 700, H: 100},
	}
}

// LoadGridConfig reads a JSON layout. Fields absent from the file keep their
// DefaultGridConfig values. The result is validated.
func LoadGridConfig(path string) (GridConfig, error) {
	cfg := DefaultGridConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read grid config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse grid config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("grid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the layout is internally consistent: every bubble and
// anchor fits on the page and neighbouring bubbles do not overlap.
func (g GridConfig) Validate() error {
	if len(g.Subjects) == 0 {
		return fmt.Errorf("no subjects configured")
	}
	seen := make(map[string]bool, len(g.Subjects))
	for _, s := range g.Subjects {
		if s == "" {
			return fmt.Errorf("empty subject name")
		}
		if seen[s] {
			return fmt.Errorf("duplicate subject %q", s)
		}
		seen[s] = true
	}
	if g.QuestionsPerSubject < 1 {
		return fmt.Errorf("questions_per_subject must be positive, got %d", g.QuestionsPerSubject)
	}
	if g.Choices < 2 || g.Choices > len(choiceLetters) {
		return fmt.Errorf("choices must be between 2 and %d, got %d", len(choiceLetters), g.Choices)
	}
	if g.Width < 1 || g.Height <= g.Width {
		return fmt.Errorf("canonical size must be portrait, got %dx%d", g.Width, g.Height)
	}
	if g.BubbleRadius <= 0 {
		return fmt.Errorf("bubble_radius must be positive")
	}
	if g.ChoicePitch < 2*g.BubbleRadius || g.RowPitch < 2*g.BubbleRadius {
		return fmt.Errorf("bubble pitch smaller than bubble diameter")
	}
	if len(g.Subjects) > 1 && g.SubjectPitch < float64(g.Choices)*g.ChoicePitch {
		return fmt.Errorf("subject_pitch %.1f overlaps %d choices", g.SubjectPitch, g.Choices)
	}
	if g.MinAnchors < 3 {
		return fmt.Errorf("min_anchors must be at least 3, got %d", g.MinAnchors)
	}
	if len(g.Anchors) < g.MinAnchors {
		return fmt.Errorf("%d anchors configured, need at least %d", len(g.Anchors), g.MinAnchors)
	}
	if len(g.Anchors) > maxAnchors {
		return fmt.Errorf("%d anchors configured, at most %d supported", len(g.Anchors), maxAnchors)
	}
	if g.AnchorSize <= 0 || g.AnchorTolerance <= 0 || g.MaxResidual <= 0 {
		return fmt.Errorf("anchor_size, anchor_tolerance and max_residual must be positive")
	}

	page := geometry.Pt(float64(g.Width), float64(g.Height))
	inside := func(p geometry.Point, margin float64) bool {
		return p.X-margin >= 0 && p.Y-margin >= 0 && p.X+margin <= page.X && p.Y+margin <= page.Y
	}
	for i, a := range g.Anchors {
		if !inside(a.Point(), g.AnchorSize/2) {
			return fmt.Errorf("anchor %d at (%.0f,%.0f) lies outside the page", i, a.X, a.Y)
		}
	}
	last := g.TemplateCenter(len(g.Subjects)-1, g.QuestionsPerSubject-1, g.Choices-1)
	if !inside(g.TemplateCenter(0, 0, 0), g.BubbleRadius) || !inside(last, g.BubbleRadius) {
		return fmt.Errorf("bubble grid extends past the page")
	}
	return nil
}

// TotalQuestions returns subjects x questions per subject.
func (g GridConfig) TotalQuestions() int {
	return len(g.Subjects) * g.QuestionsPerSubject
}

// TemplateCenter returns the canonical centre of one bubble (zero-based
// indices).
func (g GridConfig) TemplateCenter(subject, question, choice int) geometry.Point {
	return geometry.Pt(
		g.OriginX+float64(subject)*g.SubjectPitch+float64(choice)*g.ChoicePitch,
		g.OriginY+float64(question)*g.RowPitch,
	)
}

// AnchorPoints returns the template anchor centres.
func (g GridConfig) AnchorPoints() []geometry.Point {
	pts := make([]geometry.Point, len(g.Anchors))
	for i, a := range g.Anchors {
		pts[i] = a.Point()
	}
	return pts
}

// GridRegion returns the bounding box of all bubbles, padded by one pitch.
func (g GridConfig) GridRegion() image.Rectangle {
	first := g.TemplateCenter(0, 0, 0)
	last := g.TemplateCenter(len(g.Subjects)-1, g.QuestionsPerSubject-1, g.Choices-1)
	pad := g.BubbleRadius + g.ChoicePitch
	r := image.Rect(int(first.X-pad), int(first.Y-pad), int(last.X+pad)+1, int(last.Y+pad)+1)
	return r.Intersect(image.Rect(0, 0, g.Width, g.Height))
}

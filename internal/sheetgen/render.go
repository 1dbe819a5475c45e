package sheetgen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/omr-eval/internal/omr"
)

// DefaultTitle is printed in the header when Options.Title is empty.
const DefaultTitle = "OMR ANSWER SHEET"

const (
	paper = 255
	ink   = 0

	outlineWidth = 1.5
	headerRuleY  = 100
	headerRuleH  = 5
)

// Mark fills one bubble. Fill is the radius of the pencil disc as a
// fraction of the bubble radius; 1 fills the bubble completely.
type Mark struct {
	Subject  int
	Question int
	Choice   int
	Fill     float64
}

// Options controls Render.
type Options struct {
	Title string
	// SetLabel is the key variant printed as "SET <label>"; empty omits it.
	SetLabel string
	// SheetID is encoded as a QR code in the sheet id region; empty omits it.
	SheetID string
	Marks   []Mark
}

// Render draws a sheet at the canonical size of cfg.
func Render(cfg omr.GridConfig, opts Options) (*image.Gray, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: paper}), image.Point{}, draw.Src)

	for _, a := range cfg.Anchors {
		half := cfg.AnchorSize / 2
		fillRect(img, image.Rect(
			int(math.Round(a.X-half)), int(math.Round(a.Y-half)),
			int(math.Round(a.X+half)), int(math.Round(a.Y+half)),
		))
	}

	drawHeader(img, cfg, opts)

	if opts.SetLabel != "" && !cfg.SetLabelRegion.Empty() {
		r := cfg.SetLabelRegion.Image()
		drawTextFit(img, r, "SET "+opts.SetLabel)
	}

	if opts.SheetID != "" && !cfg.SheetIDRegion.Empty() {
		if err := drawQR(img, cfg.SheetIDRegion.Image(), opts.SheetID); err != nil {
			return nil, err
		}
	}

	drawGrid(img, cfg)

	for _, m := range opts.Marks {
		if err := checkMark(cfg, m); err != nil {
			return nil, err
		}
		c := cfg.TemplateCenter(m.Subject, m.Question, m.Choice)
		fillDisc(img, c.X, c.Y, cfg.BubbleRadius*math.Min(1, m.Fill))
	}
	return img, nil
}

// MarksFor fills one bubble per question. answers is indexed
// [subject][question] with zero-based choices; omr.NoAnswer leaves the
// question blank.
func MarksFor(answers [][]int) []Mark {
	var marks []Mark
	for s, qs := range answers {
		for q, c := range qs {
			if c == omr.NoAnswer {
				continue
			}
			marks = append(marks, Mark{Subject: s, Question: q, Choice: c, Fill: 1})
		}
	}
	return marks
}

func checkMark(cfg omr.GridConfig, m Mark) error {
	if m.Subject < 0 || m.Subject >= len(cfg.Subjects) ||
		m.Question < 0 || m.Question >= cfg.QuestionsPerSubject ||
		m.Choice < 0 || m.Choice >= cfg.Choices {
		return fmt.Errorf("mark (%d,%d,%d) is outside the grid", m.Subject, m.Question, m.Choice)
	}
	return nil
}

// drawHeader puts a title and a heavy rule inside the header region. The
// upside-down check relies on this ink.
func drawHeader(img *image.Gray, cfg omr.GridConfig, opts Options) {
	if cfg.HeaderRegion.Empty() {
		return
	}
	hr := cfg.HeaderRegion.Image()
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}

	left := hr.Min.X
	if !cfg.SetLabelRegion.Empty() {
		if sl := cfg.SetLabelRegion.Image(); sl.Max.X+10 > left && sl.Max.X+10 < hr.Max.X {
			left = sl.Max.X + 10
		}
	}
	ruleY := hr.Max.Y - headerRuleH - 5
	if ruleY > headerRuleY {
		ruleY = headerRuleY
	}
	drawTextFit(img, image.Rect(left, hr.Min.Y+10, hr.Max.X, ruleY-8), title)
	fillRect(img, image.Rect(hr.Min.X, ruleY, hr.Max.X, ruleY+headerRuleH))
}

func drawGrid(img *image.Gray, cfg omr.GridConfig) {
	face := basicfont.Face7x13
	r := cfg.BubbleRadius

	for s, name := range cfg.Subjects {
		x := cfg.OriginX + float64(s)*cfg.SubjectPitch - r
		y := cfg.OriginY - 2*r - float64(face.Height) - 6
		drawText(img, int(x), int(y), name, 1)

		for q := 0; q < cfg.QuestionsPerSubject; q++ {
			c := cfg.TemplateCenter(s, q, 0)
			label := fmt.Sprintf("%d", s*cfg.QuestionsPerSubject+q+1)
			w := font.MeasureString(face, label).Ceil()
			drawText(img, int(c.X-r)-w-6, int(c.Y)-face.Ascent/2-1, label, 1)

			for ch := 0; ch < cfg.Choices; ch++ {
				bc := cfg.TemplateCenter(s, q, ch)
				drawCircle(img, bc.X, bc.Y, r, outlineWidth)
			}
		}
	}
}

// drawTextFit writes text at the largest integer scale that fits r.
func drawTextFit(img *image.Gray, r image.Rectangle, text string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	if w == 0 || r.Empty() {
		return
	}
	scale := r.Dx() / w
	if s := r.Dy() / face.Height; s < scale {
		scale = s
	}
	if scale < 1 {
		scale = 1
	}
	y := r.Min.Y + (r.Dy()-scale*face.Height)/2
	drawText(img, r.Min.X, y, text, scale)
}

// drawText renders text in the 7x13 bitmap face, enlarged by an integer
// factor, with its top-left corner at (x, y). Only ink is copied.
func drawText(img *image.Gray, x, y int, text string, scale int) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	if w == 0 {
		return
	}
	glyphs := image.NewGray(image.Rect(0, 0, w, face.Height))
	draw.Draw(glyphs, glyphs.Bounds(), image.NewUniform(color.Gray{Y: paper}), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(color.Gray{Y: ink}),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	var src image.Image = glyphs
	if scale > 1 {
		src = imaging.Resize(glyphs, w*scale, face.Height*scale, imaging.NearestNeighbor)
	}
	sb := src.Bounds()
	for dy := 0; dy < sb.Dy(); dy++ {
		for dx := 0; dx < sb.Dx(); dx++ {
			v := color.GrayModel.Convert(src.At(sb.Min.X+dx, sb.Min.Y+dy)).(color.Gray).Y
			p := image.Pt(x+dx, y+dy)
			if v < 128 && p.In(img.Bounds()) {
				img.SetGray(p.X, p.Y, color.Gray{Y: ink})
			}
		}
	}
}

// drawQR encodes content as a QR code filling r.
func drawQR(img *image.Gray, r image.Rectangle, content string) error {
	side := r.Dx()
	if r.Dy() < side {
		side = r.Dy()
	}
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN: 1,
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, side, side, hints)
	if err != nil {
		return fmt.Errorf("failed to encode sheet id: %w", err)
	}
	for y := 0; y < matrix.GetHeight() && y < side; y++ {
		for x := 0; x < matrix.GetWidth() && x < side; x++ {
			v := uint8(paper)
			if matrix.Get(x, y) {
				v = ink
			}
			img.SetGray(r.Min.X+x, r.Min.Y+y, color.Gray{Y: v})
		}
	}
	return nil
}

func fillRect(img *image.Gray, r image.Rectangle) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(color.Gray{Y: ink}), image.Point{}, draw.Src)
}

func fillDisc(img *image.Gray, cx, cy, radius float64) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	for y := int(cy - radius - 1); y <= int(cy+radius+1); y++ {
		for x := int(cx - radius - 1); x <= int(cx+radius+1); x++ {
			if math.Hypot(float64(x)-cx, float64(y)-cy) <= radius && image.Pt(x, y).In(b) {
				img.SetGray(x, y, color.Gray{Y: ink})
			}
		}
	}
}

func drawCircle(img *image.Gray, cx, cy, radius, width float64) {
	b := img.Bounds()
	ext := radius + width + 1
	for y := int(cy - ext); y <= int(cy+ext); y++ {
		for x := int(cx - ext); x <= int(cx+ext); x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if math.Abs(d-radius) <= width/2 && image.Pt(x, y).In(b) {
				img.SetGray(x, y, color.Gray{Y: ink})
			}
		}
	}
}

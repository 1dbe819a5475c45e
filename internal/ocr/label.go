package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	imgops "github.com/ironsheep/omr-eval/internal/imaging"
)

// DefaultLanguage is the Tesseract language used for labels.
const DefaultLanguage = "eng"

const (
	labelUpscale   = 3
	labelWhitelist = "SETABCDEFGHIJKLMNOPQRSTUVWXYZ -:"
)

var setLabel = regexp.MustCompile(`SET\s*[-:]?\s*([A-Z])\b`)

// LabelReader recognizes set labels. The zero value uses the system
// tessdata and English. It implements omr.VariantDetector.
type LabelReader struct {
	Language       string
	TessdataPrefix string
}

// NewLabelReader returns a reader for the given language and tessdata
// directory; empty strings select the defaults.
func NewLabelReader(language, tessdataPrefix string) *LabelReader {
	return &LabelReader{Language: language, TessdataPrefix: tessdataPrefix}
}

// DetectVariant reads the label inside region and returns its letter, or ""
// when the region holds no recognizable label.
func (r *LabelReader) DetectVariant(ctx context.Context, sheet *image.Gray, region image.Rectangle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := r.ReadText(sheet, region)
	if err != nil {
		return "", err
	}
	return ParseSetLabel(text), nil
}

// ReadText runs single-line recognition on one region of img.
func (r *LabelReader) ReadText(img image.Image, region image.Rectangle) (string, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return "", fmt.Errorf("label region %v is outside the image", region)
	}

	data, err := prepareLabel(img, region)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	lang := r.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetWhitelist(labelWhitelist); err != nil {
		return "", fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// prepareLabel crops, enlarges and binarizes the label and encodes it as PNG.
func prepareLabel(img image.Image, region image.Rectangle) ([]byte, error) {
	crop := imaging.Crop(img, region)
	big := imaging.Resize(crop, region.Dx()*labelUpscale, 0, imaging.Lanczos)

	gray := imgops.ToGray(big)
	bw := imgops.Threshold(gray, imgops.OtsuLevel(gray))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, bw, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode label: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseSetLabel extracts the variant letter from recognized text such as
// "SET B" or "set-c". It returns "" when no label is present.
func ParseSetLabel(text string) string {
	m := setLabel.FindStringSubmatch(strings.ToUpper(text))
	if m == nil {
		return ""
	}
	return m[1]
}

// Info describes the OCR backend.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
}

// GetInfo reports the linked Tesseract version.
func GetInfo() Info {
	client := gosseract.NewClient()
	defer client.Close()
	v := client.Version()
	return Info{Available: v != "", Version: v, Backend: "gosseract"}
}

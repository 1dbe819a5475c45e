// Package sheetid decodes the QR code that identifies a printed sheet.
package sheetid

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// quietZone is added around the cropped region so the finder patterns are
// never flush with the crop edge.
const quietZone = 12

// Reader decodes QR sheet ids. It implements omr.SheetIDReader.
type Reader struct {
	// TryHarder trades speed for more thorough searching.
	TryHarder bool
}

// NewReader returns a Reader with thorough searching enabled.
func NewReader() *Reader {
	return &Reader{TryHarder: true}
}

// ReadSheetID decodes the QR code inside region. A region without a code
// yields "" and no error.
func (r *Reader) ReadSheetID(ctx context.Context, sheet *image.Gray, region image.Rectangle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	region = region.Intersect(sheet.Bounds())
	if region.Empty() {
		return "", nil
	}
	return r.Decode(pad(imaging.Crop(sheet, region)))
}

// Decode reads a QR code anywhere in img.
func (r *Reader) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to create bitmap: %w", err)
	}

	var hints map[gozxing.DecodeHintType]interface{}
	if r.TryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to decode sheet id: %w", err)
	}
	return result.GetText(), nil
}

// pad surrounds img with white.
func pad(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx()+2*quietZone, b.Dy()+2*quietZone, image.White)
	return imaging.Paste(bg, img, image.Pt(quietZone, quietZone))
}

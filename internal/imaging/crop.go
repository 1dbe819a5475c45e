package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// EncodedImage is a PNG rendition of a raster, ready to embed in a JSON response.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as base64 PNG.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &EncodedImage{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Crop extracts r from img and optionally rescales it. The returned image has
// its origin at (0,0).
func Crop(img image.Image, r image.Rectangle, scale float64) (image.Image, error) {
	bounds := img.Bounds()

	if !r.In(bounds) {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	var cropped image.Image = imaging.Crop(img, r)

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %.3f collapses %dx%d crop", scale, r.Dx(), r.Dy())
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	return cropped, nil
}

// RegionRect resolves a named sheet region against bounds.
//
// Supported names: "header" (top 12%), "top-left", "top-right", "body"
// (everything below the header) and "full".
func RegionRect(bounds image.Rectangle, region string) (image.Rectangle, error) {
	w := bounds.Dx()
	h := bounds.Dy()
	head := h * 12 / 100
	if head < 1 {
		head = 1
	}
	o := bounds.Min

	switch region {
	case "header":
		return image.Rect(0, 0, w, head).Add(o), nil
	case "top-left":
		return image.Rect(0, 0, w/2, head).Add(o), nil
	case "top-right":
		return image.Rect(w/2, 0, w, head).Add(o), nil
	case "body":
		return image.Rect(0, head, w, h).Add(o), nil
	case "full":
		return bounds, nil
	}
	return image.Rectangle{}, fmt.Errorf("unknown region: %s", region)
}

// CropRegion crops a named region (see RegionRect).
func CropRegion(img image.Image, region string, scale float64) (image.Image, error) {
	r, err := RegionRect(img.Bounds(), region)
	if err != nil {
		return nil, err
	}
	return Crop(img, r, scale)
}

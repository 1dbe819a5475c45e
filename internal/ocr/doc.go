// Package ocr reads the printed key-variant label ("SET A", "SET B", ...) of
// a rectified bubble sheet with Tesseract.
//
// # Prerequisites
//
// Tesseract and its English language data must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// A custom tessdata directory can be given through LabelReader.TessdataPrefix
// (OMR_TESSDATA_PREFIX for the binary).
//
// # Preprocessing
//
// The label region is cropped, enlarged three times and binarized at its Otsu
// level before recognition. Tesseract runs in single-line mode with a
// character whitelist, which is enough for a short fixed-format label and
// avoids most confusions between letters and digits.
package ocr

// Package imaging provides the raster operations the sheet evaluator is built on.
//
// This package implements image loading, grayscale conversion, adaptive
// contrast normalization, global thresholding, gradient measurement, region
// statistics and debug overlays. All operations work with standard Go
// image.Image types and use a coordinate system where (0,0) is at the
// top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive (top-left), Max is exclusive (bottom-right)
//
// Grayscale images returned by this package always have their bounds origin
// at (0,0), so Pix offsets can be computed as y*Stride+x.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless, never modify their inputs, and can be called concurrently on
// the same or different images.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Regions outside image bounds or with x1 >= x2 or y1 >= y2
//   - File I/O errors during image loading
//   - Encoding errors during image output
//
// # Performance Considerations
//
// For repeated operations on the same file, use ImageCache to avoid redundant
// disk reads. Large photographs may consume significant memory when cached;
// use Evict() in long-running processes. ListImages enumerates the decodable
// files of a scan directory.
package imaging

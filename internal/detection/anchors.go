package detection

import (
	"image"
	"math"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// Blob is an anchor candidate: a solid, roughly square dark mark.
type Blob struct {
	Center   geometry.Point `json:"center"`
	Side     float64        `json:"side"`
	Area     int            `json:"area"`
	Solidity float64        `json:"solidity"`
	Bounds   Bounds         `json:"bounds"`
}

// BlobFilter bounds the shape of acceptable anchor candidates.
type BlobFilter struct {
	// MinSide, MaxSide bound sqrt(area) in pixels.
	MinSide float64
	MaxSide float64

	// MaxAspect bounds the bounding-box aspect ratio (>= 1).
	MaxAspect float64

	// MinExtent is the minimum fraction of the bounding box the blob fills.
	// Filled squares score near 1, filled discs near 0.785.
	MinExtent float64

	// MinSolidity is the minimum Component.Solidity.
	MinSolidity float64
}

// FindSquareBlobs returns the components of mask that pass f, largest first.
//
// mask foreground (255) must be the dark ink, e.g. the output of
// imaging.AdaptiveDark. Coordinates are relative to mask.Bounds().Min.
func FindSquareBlobs(mask *image.Gray, f BlobFilter) []Blob {
	minArea := int(math.Floor(f.MinSide * f.MinSide))
	if minArea < 1 {
		minArea = 1
	}

	var blobs []Blob
	for _, c := range FindComponents(mask, minArea) {
		side := math.Sqrt(float64(c.Area))
		if side < f.MinSide || side > f.MaxSide {
			continue
		}
		if f.MaxAspect > 0 && c.Aspect() > f.MaxAspect {
			continue
		}
		extent := float64(c.Area) / float64(c.Bounds.Width()*c.Bounds.Height())
		if extent < f.MinExtent {
			continue
		}
		solidity := c.Solidity()
		if solidity < f.MinSolidity {
			continue
		}
		blobs = append(blobs, Blob{
			Center:   c.Centroid,
			Side:     side,
			Area:     c.Area,
			Solidity: solidity,
			Bounds:   c.Bounds,
		})
	}
	return blobs
}

package imaging

import (
	"math"

	"github.com/ironsheep/omr-eval/internal/geometry"
)

// SpreadResult describes how consistently a set of observed points is
// displaced from where they were expected.
type SpreadResult struct {
	// MeanDX, MeanDY is the average displacement.
	MeanDX float64 `json:"mean_dx"`
	MeanDY float64 `json:"mean_dy"`

	// RMS is the root-mean-square deviation of individual displacements from
	// the mean. Zero means every point moved by the same vector.
	RMS float64 `json:"rms"`

	// MaxDistance is the largest raw displacement length.
	MaxDistance float64 `json:"max_distance"`
}

// MeasureSpread compares paired expected and observed positions. Only the
// first min(len(expected), len(observed)) pairs are used.
func MeasureSpread(expected, observed []geometry.Point) SpreadResult {
	n := len(expected)
	if len(observed) < n {
		n = len(observed)
	}
	if n == 0 {
		return SpreadResult{}
	}

	var sumX, sumY, maxD float64
	for i := 0; i < n; i++ {
		d := observed[i].Sub(expected[i])
		sumX += d.X
		sumY += d.Y
		if l := observed[i].Distance(expected[i]); l > maxD {
			maxD = l
		}
	}
	mx := sumX / float64(n)
	my := sumY / float64(n)

	var ss float64
	for i := 0; i < n; i++ {
		d := observed[i].Sub(expected[i])
		ss += (d.X-mx)*(d.X-mx) + (d.Y-my)*(d.Y-my)
	}

	return SpreadResult{
		MeanDX:      mx,
		MeanDY:      my,
		RMS:         math.Sqrt(ss / float64(n)),
		MaxDistance: maxD,
	}
}

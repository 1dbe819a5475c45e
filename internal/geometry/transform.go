package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when point correspondences do not determine a
// transform (collinear or coincident points).
var ErrDegenerate = errors.New("degenerate point configuration")

// Homography is a 3x3 perspective transform in row-major order with the
// bottom-right element normalized to 1.
type Homography [9]float64

// Apply maps a point through the homography.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// SolveHomography computes the homography that maps each src[i] onto dst[i].
//
// The eight unknowns are solved from the standard direct linear system
// (two equations per correspondence):
//
//	x' = (h0 x + h1 y + h2) / (h6 x + h7 y + 1)
//	y' = (h3 x + h4 y + h5) / (h6 x + h7 y + 1)
//
// Returns ErrDegenerate if three or more points are collinear or the system
// is singular.
func SolveHomography(src, dst [4]Point) (Homography, error) {
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*xp)
		A.Set(i*2, 7, -y*xp)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*yp)
		A.Set(i*2+1, 7, -y*yp)
		B.SetVec(i*2+1, yp)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = params.AtVec(i)
		if math.IsNaN(h[i]) || math.IsInf(h[i], 0) {
			return Homography{}, ErrDegenerate
		}
	}
	h[8] = 1
	return h, nil
}

// Affine is a 2x3 affine transform.
//
//	[A B TX]
//	[C D TY]
type Affine struct {
	A, B, TX float64
	C, D, TY float64
}

// IdentityAffine returns the identity transform.
func IdentityAffine() Affine {
	return Affine{A: 1, D: 1}
}

// Apply maps a point through the transform.
func (t Affine) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// MeanScale returns the geometric mean scale factor, sqrt(|det|).
func (t Affine) MeanScale() float64 {
	return math.Sqrt(math.Abs(t.A*t.D - t.B*t.C))
}

// FitAffine fits the affine transform mapping src onto dst in the least
// squares sense. At least three non-collinear correspondences are required.
func FitAffine(src, dst []Point) (Affine, error) {
	n := len(src)
	if n != len(dst) {
		return Affine{}, fmt.Errorf("point count mismatch: %d vs %d", n, len(dst))
	}
	if n < 3 {
		return Affine{}, fmt.Errorf("need at least 3 points, got %d", n)
	}

	// Collinear sets leave the system rank-deficient; QR would still return
	// a (meaningless) solution, so reject them up front.
	hull := ConvexHull(src)
	if len(hull) < 3 || math.Abs(PolygonArea(hull)) < 1e-6 {
		return Affine{}, ErrDegenerate
	}

	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	return Affine{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}, nil
}

// Residuals returns the distance between t(src[i]) and dst[i] for each pair.
func (t Affine) Residuals(src, dst []Point) []float64 {
	out := make([]float64, len(src))
	for i := range src {
		out[i] = t.Apply(src[i]).Distance(dst[i])
	}
	return out
}

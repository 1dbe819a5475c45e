package geometry

import (
	"errors"
	"image"
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSolveHomography_Identity(t *testing.T) {
	pts := [4]Point{{0, 0}, {100, 0}, {100, 200}, {0, 200}}

	h, err := SolveHomography(pts, pts)
	if err != nil {
		t.Fatalf("SolveHomography failed: %v", err)
	}

	p := h.Apply(Pt(37, 81))
	if !approxEqual(p.X, 37, 1e-6) || !approxEqual(p.Y, 81, 1e-6) {
		t.Errorf("identity mapping: got (%.4f,%.4f), want (37,81)", p.X, p.Y)
	}
}

func TestSolveHomography_MapsCorners(t *testing.T) {
	src := [4]Point{{0, 0}, {1000, 0}, {1000, 1400}, {0, 1400}}
	dst := [4]Point{{120, 80}, {830, 140}, {870, 1100}, {60, 1020}}

	h, err := SolveHomography(src, dst)
	if err != nil {
		t.Fatalf("SolveHomography failed: %v", err)
	}

	for i := range src {
		got := h.Apply(src[i])
		if got.Distance(dst[i]) > 1e-6 {
			t.Errorf("corner %d: got (%.3f,%.3f), want (%.3f,%.3f)", i, got.X, got.Y, dst[i].X, dst[i].Y)
		}
	}
}

func TestSolveHomography_Degenerate(t *testing.T) {
	src := [4]Point{{0, 0}, {10, 0}, {20, 0}, {30, 0}}
	dst := [4]Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	if _, err := SolveHomography(src, dst); !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestFitAffine_Exact(t *testing.T) {
	want := Affine{A: 1.02, B: -0.03, TX: 5, C: 0.02, D: 0.99, TY: -7}
	src := []Point{{60, 140}, {940, 140}, {60, 1300}, {940, 1300}}
	dst := make([]Point, len(src))
	for i, p := range src {
		dst[i] = want.Apply(p)
	}

	got, err := FitAffine(src, dst)
	if err != nil {
		t.Fatalf("FitAffine failed: %v", err)
	}

	for _, r := range got.Residuals(src, dst) {
		if r > 1e-6 {
			t.Errorf("residual too large: %g", r)
		}
	}
	if !approxEqual(got.MeanScale(), want.MeanScale(), 1e-9) {
		t.Errorf("MeanScale: got %f, want %f", got.MeanScale(), want.MeanScale())
	}
}

func TestFitAffine_TooFewPoints(t *testing.T) {
	_, err := FitAffine([]Point{{0, 0}, {1, 1}}, []Point{{0, 0}, {1, 1}})
	if err == nil {
		t.Error("expected error for 2 points")
	}
}

func TestFitAffine_Collinear(t *testing.T) {
	src := []Point{{0, 0}, {10, 10}, {20, 20}}
	_, err := FitAffine(src, src)
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestConvexHull_Square(t *testing.T) {
	pts := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}, {5, 0}}
	hull := ConvexHull(pts)

	if len(hull) != 4 {
		t.Fatalf("hull size: got %d, want 4 (%v)", len(hull), hull)
	}
	if area := PolygonArea(hull); !approxEqual(area, 100, 1e-9) {
		t.Errorf("hull area: got %f, want 100", area)
	}
	if !IsConvex(hull) {
		t.Error("hull should be convex")
	}
}

func TestIsConvex_Bowtie(t *testing.T) {
	bowtie := []Point{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	if IsConvex(bowtie) {
		t.Error("self-intersecting quad reported convex")
	}
}

func TestDistanceToLine_Sides(t *testing.T) {
	a, b := Pt(0, 0), Pt(10, 0)
	above := DistanceToLine(Pt(5, -3), a, b)
	below := DistanceToLine(Pt(5, 4), a, b)

	if above*below >= 0 {
		t.Errorf("points on opposite sides should have opposite signs: %f, %f", above, below)
	}
	if !approxEqual(math.Abs(below), 4, 1e-9) {
		t.Errorf("distance: got %f, want 4", math.Abs(below))
	}
}

func TestWarpPerspective_Translation(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 20, 20))
	src.Pix[5*src.Stride+7] = 200

	// Output pixel (x,y) reads source (x+5, y+3).
	h := Homography{1, 0, 5, 0, 1, 3, 0, 0, 1}
	out := WarpPerspective(src, h, 10, 10)

	if got := out.GrayAt(2, 2).Y; got != 200 {
		t.Errorf("warped pixel: got %d, want 200", got)
	}
	if got := out.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("background pixel: got %d, want 0", got)
	}
}

func TestSampleBilinear_OutOfRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	if v := SampleBilinear(img, -1, 2); v != 0 {
		t.Errorf("out of range sample: got %d, want 0", v)
	}
	if v := SampleBilinear(img, 1.5, 2.5); v != 255 {
		t.Errorf("in range sample: got %d, want 255", v)
	}
}

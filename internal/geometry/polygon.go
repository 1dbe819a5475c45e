package geometry

import (
	"math"
	"sort"
)

// ConvexHull computes the convex hull of a point set with Andrew's monotone
// chain. The hull is returned clockwise in image coordinates (Y down), without
// repeating the first point. Collinear points are dropped.
func ConvexHull(points []Point) []Point {
	if len(points) < 3 {
		out := make([]Point, len(points))
		copy(out, points)
		return out
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	var lower []Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// PolygonArea returns the signed shoelace area. Clockwise polygons in image
// coordinates have a positive area.
func PolygonArea(polygon []Point) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return sum / 2
}

// IsConvex reports whether the vertices form a strictly convex polygon with
// a consistent turning direction.
func IsConvex(polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	var sign int
	for i := 0; i < n; i++ {
		c := cross(polygon[i], polygon[(i+1)%n], polygon[(i+2)%n])
		if math.Abs(c) < 1e-9 {
			return false
		}
		s := 1
		if c < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// DistanceToLine returns the signed perpendicular distance from p to the
// infinite line through a and b. The sign tells which side p lies on.
func DistanceToLine(p, a, b Point) float64 {
	length := a.Distance(b)
	if length == 0 {
		return p.Distance(a)
	}
	return cross(a, b, p) / length
}

// cross returns the z component of (a-o) x (b-o).
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

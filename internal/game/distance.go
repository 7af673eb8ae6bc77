package game

import "math"

// CalculateChebyshevDistance is the grid-square (king move) distance.
func CalculateChebyshevDistance(x1, y1, x2, y2 int) int {
	return max(absInt(x1-x2), absInt(y1-y2))
}

// CalculateEuclideanDistance is the straight-line distance.
func CalculateEuclideanDistance(x1, y1, x2, y2 int) float64 {
	return math.Hypot(float64(x1-x2), float64(y1-y2))
}

// gaps returns the empty cells between two rects along each axis.
func gaps(a, b Rect) (int, int) {
	return axisGap(a.X, a.X+a.W-1, b.X, b.X+b.W-1), axisGap(a.Y, a.Y+a.H-1, b.Y, b.Y+b.H-1)
}

func axisGap(a0, a1, b0, b1 int) int {
	switch {
	case b0 > a1:
		return b0 - a1
	case a0 > b1:
		return a0 - b1
	default:
		return 0
	}
}

// ChebyshevTo measures between the nearest cells of two footprints.
func (r Rect) ChebyshevTo(o Rect) int {
	dx, dy := gaps(r, o)
	return max(dx, dy)
}

// EuclideanTo measures between the nearest cells of two footprints.
func (r Rect) EuclideanTo(o Rect) float64 {
	dx, dy := gaps(r, o)
	return math.Hypot(float64(dx), float64(dy))
}

// Contains reports whether (x, y) lies inside the rect.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

func pointRect(x, y int) Rect {
	return Rect{X: x, Y: y, W: 1, H: 1}
}

// InRange reports whether target is within attacker's attack range.
func InRange(attacker, target *Unit) bool {
	return attacker.Footprint().ChebyshevTo(target.Footprint()) <= attacker.AttackRange
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package gps

import (
	"math"

	"backend-fieldops/internal/shared/geo"
)

// DefaultSimplifyEpsilon is the Douglas-Peucker tolerance in degrees,
// roughly 5 meters of deviation for dense traces.
const DefaultSimplifyEpsilon = 0.00005

// Simplify reduces a dense coordinate sequence with the Douglas-Peucker
// algorithm, preserving shape within epsilon. The first and last point are
// always kept; sequences of two or fewer points are returned unchanged.
func Simplify(points []geo.Point, epsilon float64) []geo.Point {
	if len(points) <= 2 {
		return points
	}

	maxDist := 0.0
	maxIdx := 0
	for i := 1; i < len(points)-1; i++ {
		d := perpendicularDistance(points[i], points[0], points[len(points)-1])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist <= epsilon {
		return []geo.Point{points[0], points[len(points)-1]}
	}

	left := Simplify(points[:maxIdx+1], epsilon)
	right := Simplify(points[maxIdx:], epsilon)

	// left and right may alias the input slice; merge into a fresh slice.
	merged := make([]geo.Point, 0, len(left)+len(right)-1)
	merged = append(merged, left[:len(left)-1]...)
	merged = append(merged, right...)
	return merged
}

// perpendicularDistance is the planar distance from p to the chord
// (start, end) in degree space. Adequate for the short chords GPS traces
// produce.
func perpendicularDistance(p, start, end geo.Point) float64 {
	dx := end.Lng - start.Lng
	dy := end.Lat - start.Lat

	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(p.Lng-start.Lng, p.Lat-start.Lat)
	}

	return math.Abs(dy*p.Lng-dx*p.Lat+end.Lng*start.Lat-end.Lat*start.Lng) / length
}

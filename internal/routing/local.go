package routing

import (
	"context"

	"backend-fieldops/internal/shared/geo"

	"github.com/twpayne/go-polyline"
)

// Speed model for duration estimates when no road data is available.
const (
	citySpeedKmh    = 15.0
	defaultSpeedKmh = 30.0
	highwaySpeedKmh = 60.0

	shortSegmentKm = 0.5
	longSegmentKm  = 5.0

	// Floor: never estimate faster than 2 minutes per kilometer.
	minMinutesPerKm = 2.0
)

// localStrategy accumulates ellipsoidal segment distances and estimates
// duration from segment length. It is the final tier and never fails.
type localStrategy struct{}

func (localStrategy) Name() string { return MethodLocalGeometry }

func (localStrategy) Route(_ context.Context, points []geo.Point, _ TravelMode) (RouteResult, error) {
	res := RouteResult{Method: MethodLocalGeometry, Waypoints: points}
	if len(points) < 2 {
		return res, nil
	}

	var distanceKm, minutes float64
	for i := 1; i < len(points); i++ {
		seg := geo.VincentyKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng).DistanceKm
		distanceKm += seg
		minutes += seg / segmentSpeedKmh(seg) * 60
	}

	if floor := distanceKm * minMinutesPerKm; minutes < floor {
		minutes = floor
	}

	res.DistanceKm = distanceKm
	res.DurationMinutes = minutes
	res.StaticDurationMinutes = minutes
	res.Polyline = EncodePolyline(points)
	return res, nil
}

func segmentSpeedKmh(segKm float64) float64 {
	switch {
	case segKm < shortSegmentKm:
		return citySpeedKmh
	case segKm > longSegmentKm:
		return highwaySpeedKmh
	default:
		return defaultSpeedKmh
	}
}

// EncodePolyline encodes points with the Google polyline algorithm.
func EncodePolyline(points []geo.Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline is the inverse of EncodePolyline; malformed input yields
// an empty slice.
func DecodePolyline(encoded string) []geo.Point {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil
	}
	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		points[i] = geo.Point{Lat: c[0], Lng: c[1]}
	}
	return points
}

package gps

import (
	"fmt"
	"math"
	"sort"

	"backend-fieldops/internal/shared/geo"
)

const (
	maxPlausibleSpeedKmh = 200.0
	minPlausibleAltitude = -500.0
	maxPlausibleAltitude = 10000.0

	// DefaultMinPointDistanceKm is the near-duplicate threshold: two fixes
	// closer than this are treated as GPS jitter, not movement.
	DefaultMinPointDistanceKm = 0.001

	// DefaultMaxAccuracyM drops fixes whose reported accuracy radius is
	// worse than this. Independent of the near-duplicate threshold.
	DefaultMaxAccuracyM = 50.0
)

// Sanitize normalizes a raw client sample into a Sample. The latitude and
// longitude aliases are resolved (long-form names win), and samples with
// missing or non-finite coordinates are dropped.
func Sanitize(raw RawSample) (Sample, bool) {
	lat := pick(raw.Latitude, raw.Lat)
	lng := pick(raw.Longitude, raw.Lng)
	if lat == nil || lng == nil {
		return Sample{}, false
	}
	if !isFinite(*lat) || !isFinite(*lng) {
		return Sample{}, false
	}

	s := Sample{Lat: *lat, Lng: *lng}
	if raw.Accuracy != nil && isFinite(float64(*raw.Accuracy)) {
		v := float64(*raw.Accuracy)
		s.AccuracyM = &v
	}
	if raw.Speed != nil && isFinite(float64(*raw.Speed)) {
		v := float64(*raw.Speed)
		s.SpeedKmh = &v
	}
	if raw.Altitude != nil && isFinite(float64(*raw.Altitude)) {
		v := float64(*raw.Altitude)
		s.AltitudeM = &v
	}
	if raw.Timestamp != nil {
		s.Timestamp = *raw.Timestamp
	}
	return s, true
}

// Validate checks coordinate ranges and plausibility. Out-of-range
// lat/lng invalidates the sample; accuracy, speed and altitude issues are
// only flagged.
func Validate(s Sample, maxAccuracyM float64) ValidationResult {
	res := ValidationResult{Valid: true}

	if s.Lat < -90 || s.Lat > 90 {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("latitude %v out of range [-90, 90]", s.Lat))
	}
	if s.Lng < -180 || s.Lng > 180 {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("longitude %v out of range [-180, 180]", s.Lng))
	}

	if s.AccuracyM != nil && *s.AccuracyM > maxAccuracyM {
		res.Errors = append(res.Errors, fmt.Sprintf("accuracy %.0fm exceeds %.0fm threshold", *s.AccuracyM, maxAccuracyM))
	}
	if s.SpeedKmh != nil && *s.SpeedKmh > maxPlausibleSpeedKmh {
		res.Errors = append(res.Errors, fmt.Sprintf("speed %.0fkm/h implausible", *s.SpeedKmh))
	}
	if s.AltitudeM != nil && (*s.AltitudeM < minPlausibleAltitude || *s.AltitudeM > maxPlausibleAltitude) {
		res.Errors = append(res.Errors, fmt.Sprintf("altitude %.0fm implausible", *s.AltitudeM))
	}
	return res
}

// FilterByAccuracy drops samples whose reported accuracy exceeds the
// threshold. Samples without a reported accuracy are kept.
func FilterByAccuracy(samples []Sample, maxAccuracyM float64) []Sample {
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.AccuracyM != nil && *s.AccuracyM > maxAccuracyM {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// RemoveNearDuplicates walks the sequence once, keeping a sample only if
// it is at least minDistanceKm from the last kept sample. This is the
// primary defense against jitter inflating distance totals.
func RemoveNearDuplicates(samples []Sample, minDistanceKm float64) []Sample {
	if len(samples) == 0 {
		return samples
	}
	kept := []Sample{samples[0]}
	last := samples[0]
	for _, s := range samples[1:] {
		if geo.HaversineKm(last.Lat, last.Lng, s.Lat, s.Lng) >= minDistanceKm {
			kept = append(kept, s)
			last = s
		}
	}
	return kept
}

// SortByTimestamp orders samples by timestamp, oldest first. Samples
// without a timestamp keep their relative position.
func SortByTimestamp(samples []Sample) []Sample {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.IsZero() || sorted[j].Timestamp.IsZero() {
			return false
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// Points projects samples onto bare coordinates.
func Points(samples []Sample) []geo.Point {
	points := make([]geo.Point, len(samples))
	for i, s := range samples {
		points[i] = geo.Point{Lat: s.Lat, Lng: s.Lng}
	}
	return points
}

func pick(primary, alias *Float) *float64 {
	if primary != nil {
		v := float64(*primary)
		return &v
	}
	if alias != nil {
		v := float64(*alias)
		return &v
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

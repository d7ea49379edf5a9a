package gps

import (
	"fmt"
	"math"

	"backend-fieldops/internal/shared/geo"
)

const (
	// Below these a trace is considered stationary noise.
	staticDistanceKm = 0.05
	staticRadiusKm   = 0.03
	staticVariance   = 1e-6

	// Minimum trace length worth asking an external router about.
	minRoutingDistanceKm = 0.1

	// Bearing change treated as a real turn.
	significantTurnDeg = 30.0

	// Complexity score at or above which external routing pays off.
	minRoutingScore = 2

	complexScore  = 6
	moderateScore = 3
)

// Route complexity classes.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// MovementPattern summarizes a coordinate sequence.
type MovementPattern struct {
	PointCount       int     `json:"point_count"`
	TotalDistanceKm  float64 `json:"total_distance_km"`
	AvgSegmentKm     float64 `json:"avg_segment_km"`
	SegmentVariance  float64 `json:"segment_variance"`
	TimeSpanMinutes  float64 `json:"time_span_minutes"`
	RadiusKm         float64 `json:"radius_km"`
	AvgSpeedKmh      float64 `json:"avg_speed_kmh"`
	SignificantTurns int     `json:"significant_turns"`
	IsReturnJourney  bool    `json:"is_return_journey"`
}

// RouteAnalysis is the strategy decision derived from a MovementPattern.
// It exists to keep short, jittery, or stationary traces from ever
// reaching a paid external service.
type RouteAnalysis struct {
	ShouldUseExternalRouting bool     `json:"should_use_external_routing"`
	IsStaticLocation         bool     `json:"is_static_location"`
	Complexity               string   `json:"complexity"`
	Confidence               int      `json:"confidence"`
	Reasoning                []string `json:"reasoning"`
}

// AnalyzeMovement computes summary statistics for a sample sequence.
func AnalyzeMovement(samples []Sample) MovementPattern {
	p := MovementPattern{PointCount: len(samples)}
	if len(samples) < 2 {
		return p
	}

	segments := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := geo.HaversineKm(samples[i-1].Lat, samples[i-1].Lng, samples[i].Lat, samples[i].Lng)
		segments = append(segments, d)
		p.TotalDistanceKm += d
	}

	p.AvgSegmentKm = p.TotalDistanceKm / float64(len(segments))
	for _, d := range segments {
		diff := d - p.AvgSegmentKm
		p.SegmentVariance += diff * diff
	}
	p.SegmentVariance /= float64(len(segments))

	first, last := samples[0], samples[len(samples)-1]
	if !first.Timestamp.IsZero() && !last.Timestamp.IsZero() {
		p.TimeSpanMinutes = last.Timestamp.Sub(first.Timestamp).Minutes()
		if p.TimeSpanMinutes > 0 {
			p.AvgSpeedKmh = p.TotalDistanceKm / (p.TimeSpanMinutes / 60)
		}
	}

	p.RadiusKm = movementRadiusKm(samples)
	p.SignificantTurns = countSignificantTurns(samples)

	// A trip that ends near where it started, having actually gone
	// somewhere, is a there-and-back journey.
	closing := geo.HaversineKm(first.Lat, first.Lng, last.Lat, last.Lng)
	p.IsReturnJourney = p.TotalDistanceKm > 4*minRoutingDistanceKm && closing < 0.2*p.TotalDistanceKm

	return p
}

// DecideRoute applies the ordered decision policy: static short-circuits
// first, then a five-factor complexity score gates external routing.
func DecideRoute(p MovementPattern) RouteAnalysis {
	if p.PointCount < 3 {
		return RouteAnalysis{
			IsStaticLocation: true,
			Complexity:       ComplexitySimple,
			Confidence:       95,
			Reasoning:        []string{fmt.Sprintf("%d points is too few to route", p.PointCount)},
		}
	}

	if p.TotalDistanceKm < staticDistanceKm || p.RadiusKm < staticRadiusKm || p.SegmentVariance < staticVariance {
		return RouteAnalysis{
			IsStaticLocation: true,
			Complexity:       ComplexitySimple,
			Confidence:       90,
			Reasoning: []string{fmt.Sprintf(
				"static location: %.0fm travelled within a %.0fm radius",
				p.TotalDistanceKm*1000, p.RadiusKm*1000)},
		}
	}

	if p.TotalDistanceKm < minRoutingDistanceKm {
		return RouteAnalysis{
			Complexity: ComplexitySimple,
			Confidence: 85,
			Reasoning: []string{fmt.Sprintf(
				"%.0fm is below the %.0fm routing minimum, local geometry only",
				p.TotalDistanceKm*1000, minRoutingDistanceKm*1000)},
		}
	}

	score, reasons := complexityScore(p)

	complexity := ComplexitySimple
	switch {
	case score >= complexScore:
		complexity = ComplexityComplex
	case score >= moderateScore:
		complexity = ComplexityModerate
	}

	useExternal := score >= minRoutingScore
	if p.IsReturnJourney {
		if complexity == ComplexityComplex {
			useExternal = true
			reasons = append(reasons, "complex return journey, routing both legs externally")
		} else {
			useExternal = false
			reasons = append(reasons, "simple return journey, symmetry makes external routing unnecessary")
		}
	}

	confidence := 60 + score*5
	if confidence > 95 {
		confidence = 95
	}

	return RouteAnalysis{
		ShouldUseExternalRouting: useExternal,
		Complexity:               complexity,
		Confidence:               confidence,
		Reasoning:                reasons,
	}
}

// complexityScore grades five factors 0-2 each.
func complexityScore(p MovementPattern) (int, []string) {
	score := 0
	var reasons []string

	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, fmt.Sprintf("%s (+%d)", reason, points))
	}

	switch {
	case p.TotalDistanceKm >= 5:
		add(2, fmt.Sprintf("long trace %.1fkm", p.TotalDistanceKm))
	case p.TotalDistanceKm >= 1:
		add(1, fmt.Sprintf("moderate trace %.1fkm", p.TotalDistanceKm))
	default:
		add(0, fmt.Sprintf("short trace %.2fkm", p.TotalDistanceKm))
	}

	turnRatio := float64(p.SignificantTurns) / float64(p.PointCount)
	switch {
	case turnRatio >= 0.3:
		add(2, fmt.Sprintf("winding route, turn ratio %.2f", turnRatio))
	case turnRatio >= 0.15:
		add(1, fmt.Sprintf("some turns, ratio %.2f", turnRatio))
	default:
		add(0, fmt.Sprintf("mostly straight, turn ratio %.2f", turnRatio))
	}

	switch {
	case p.AvgSpeedKmh >= 30:
		add(2, fmt.Sprintf("vehicle speed %.0fkm/h", p.AvgSpeedKmh))
	case p.AvgSpeedKmh >= 10:
		add(1, fmt.Sprintf("moving speed %.0fkm/h", p.AvgSpeedKmh))
	default:
		add(0, fmt.Sprintf("walking speed %.0fkm/h", p.AvgSpeedKmh))
	}

	switch {
	case p.TimeSpanMinutes >= 60:
		add(2, fmt.Sprintf("long span %.0fmin", p.TimeSpanMinutes))
	case p.TimeSpanMinutes >= 20:
		add(1, fmt.Sprintf("medium span %.0fmin", p.TimeSpanMinutes))
	default:
		add(0, fmt.Sprintf("short span %.0fmin", p.TimeSpanMinutes))
	}

	switch {
	case p.RadiusKm >= 5:
		add(2, fmt.Sprintf("wide radius %.1fkm", p.RadiusKm))
	case p.RadiusKm >= 1:
		add(1, fmt.Sprintf("medium radius %.1fkm", p.RadiusKm))
	default:
		add(0, fmt.Sprintf("tight radius %.2fkm", p.RadiusKm))
	}

	return score, reasons
}

func movementRadiusKm(samples []Sample) float64 {
	var latSum, lngSum float64
	for _, s := range samples {
		latSum += s.Lat
		lngSum += s.Lng
	}
	centLat := latSum / float64(len(samples))
	centLng := lngSum / float64(len(samples))

	maxKm := 0.0
	for _, s := range samples {
		d := geo.HaversineKm(centLat, centLng, s.Lat, s.Lng)
		if d > maxKm {
			maxKm = d
		}
	}
	return maxKm
}

func countSignificantTurns(samples []Sample) int {
	if len(samples) < 3 {
		return 0
	}
	turns := 0
	prev := geo.BearingDeg(samples[0].Lat, samples[0].Lng, samples[1].Lat, samples[1].Lng)
	for i := 2; i < len(samples); i++ {
		b := geo.BearingDeg(samples[i-1].Lat, samples[i-1].Lng, samples[i].Lat, samples[i].Lng)
		diff := math.Abs(b - prev)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > significantTurnDeg {
			turns++
		}
		prev = b
	}
	return turns
}

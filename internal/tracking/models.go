package tracking

import (
	"time"

	"backend-fieldops/internal/gps"
	"backend-fieldops/internal/routing"
)

// Session is one field agent shift of GPS tracking. A session is open
// from check-in until check-out; closed sessions are immutable except
// for reads.
type Session struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	CheckIn         time.Time  `json:"check_in"`
	CheckOut        *time.Time `json:"check_out,omitempty"`
	StartLat        *float64   `json:"start_lat,omitempty"`
	StartLng        *float64   `json:"start_lng,omitempty"`
	LastLat         *float64   `json:"last_lat,omitempty"`
	LastLng         *float64   `json:"last_lng,omitempty"`
	TotalDistanceKm float64    `json:"total_distance_km"`
	CoordinateCount int        `json:"coordinate_count"`
	DurationMinutes float64    `json:"duration_minutes,omitempty"`
	AvgSpeedKmh     float64    `json:"avg_speed_kmh,omitempty"`
	Method          string     `json:"method,omitempty"`
	CloseReason     string     `json:"close_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s Session) Closed() bool { return s.CheckOut != nil }

// LogPoint is one accepted GPS reading persisted against a session.
// Logs are append-only and never reordered after write.
type LogPoint struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type OpenRequest struct {
	CheckIn *time.Time     `json:"check_in"`
	Start   *gps.RawSample `json:"start"`
}

type OpenResult struct {
	Session  Session  `json:"session"`
	Warnings []string `json:"warnings,omitempty"`
}

type IngestRequest struct {
	Coordinates []gps.RawSample `json:"coordinates"`
}

type IngestResult struct {
	Accepted        int      `json:"accepted"`
	Skipped         int      `json:"skipped"`
	DistanceAddedKm float64  `json:"distance_added_km"`
	Warnings        []string `json:"warnings,omitempty"`
}

type CloseRequest struct {
	CheckOut *time.Time         `json:"check_out"`
	End      *gps.RawSample     `json:"end"`
	Mode     routing.TravelMode `json:"mode"`
}

type CloseResult struct {
	DistanceKm      float64  `json:"distance_km"`
	DurationMinutes float64  `json:"duration_minutes"`
	AvgSpeedKmh     float64  `json:"avg_speed_kmh"`
	Method          string   `json:"method"`
	Warnings        []string `json:"warnings,omitempty"`
}

type ForceCloseRequest struct {
	Reason string `json:"reason"`
}

type ForceCloseResult struct {
	DistanceKm float64 `json:"distance_km"`
	Method     string  `json:"method"`
}

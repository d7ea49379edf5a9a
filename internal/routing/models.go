package routing

import (
	"context"
	"time"

	"backend-fieldops/internal/shared/geo"
)

// TravelMode selects the routing profile.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeWalking TravelMode = "walking"
	ModeBicycle TravelMode = "bicycling"
)

// Method tags identify which accuracy tier produced a result.
const (
	MethodGoogleRoutes   = "google_routes"
	MethodDistanceMatrix = "distance_matrix"
	MethodOSRM           = "osrm"
	MethodLocalGeometry  = "local_geometry"
)

// RouteResult is the uniform outcome of any calculation tier.
type RouteResult struct {
	DistanceKm            float64     `json:"distance_km"`
	DurationMinutes       float64     `json:"duration_minutes"`
	StaticDurationMinutes float64     `json:"static_duration_minutes,omitempty"`
	Polyline              string      `json:"polyline,omitempty"`
	Waypoints             []geo.Point `json:"waypoints,omitempty"`
	Method                string      `json:"method"`
	Warnings              []string    `json:"warnings,omitempty"`
	CacheHit              bool        `json:"cache_hit"`
}

// Strategy is one tier of the fallback chain. An error means this tier is
// degraded and the next one should be tried; errors never reach callers.
type Strategy interface {
	Name() string
	Route(ctx context.Context, points []geo.Point, mode TravelMode) (RouteResult, error)
}

// Options configures the calculator and its external clients.
type Options struct {
	GoogleAPIKey   string
	OSRMBaseURL    string
	TierTimeout    time.Duration
	MaxWaypoints   int
	InterCallDelay time.Duration
}

const (
	defaultTierTimeout    = 10 * time.Second
	defaultMaxWaypoints   = 25
	defaultInterCallDelay = 100 * time.Millisecond
	defaultOSRMBaseURL    = "https://router.project-osrm.org"
)

func (o Options) withDefaults() Options {
	if o.TierTimeout <= 0 {
		o.TierTimeout = defaultTierTimeout
	}
	if o.MaxWaypoints <= 0 {
		o.MaxWaypoints = defaultMaxWaypoints
	}
	if o.InterCallDelay <= 0 {
		o.InterCallDelay = defaultInterCallDelay
	}
	if o.OSRMBaseURL == "" {
		o.OSRMBaseURL = defaultOSRMBaseURL
	}
	return o
}

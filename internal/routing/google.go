package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend-fieldops/internal/shared/geo"
)

// googleClient calls the Google Routes API v2. It is the primary tier:
// traffic-aware durations, multi-waypoint routes, encoded polylines.
type googleClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	maxWaypoints int
}

func newGoogleClient(apiKey string, timeout time.Duration, maxWaypoints int) *googleClient {
	return &googleClient{
		apiKey:       apiKey,
		baseURL:      "https://routes.googleapis.com",
		httpClient:   &http.Client{Timeout: timeout},
		maxWaypoints: maxWaypoints,
	}
}

func (c *googleClient) Name() string { return MethodGoogleRoutes }

type googleLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type googleWaypoint struct {
	Location struct {
		LatLng googleLatLng `json:"latLng"`
	} `json:"location"`
}

type googleRoutesRequest struct {
	Origin            googleWaypoint   `json:"origin"`
	Destination       googleWaypoint   `json:"destination"`
	Intermediates     []googleWaypoint `json:"intermediates,omitempty"`
	TravelMode        string           `json:"travelMode"`
	RoutingPreference string           `json:"routingPreference,omitempty"`
}

type googleRoutesResponse struct {
	Routes []struct {
		Duration       string `json:"duration"`
		StaticDuration string `json:"staticDuration"`
		DistanceMeters int64  `json:"distanceMeters"`
		Polyline       struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
	} `json:"routes"`
}

func (c *googleClient) Route(ctx context.Context, points []geo.Point, mode TravelMode) (RouteResult, error) {
	if c.apiKey == "" {
		return RouteResult{}, errors.New("google routes api key not configured")
	}
	if len(points) < 2 {
		return RouteResult{}, errors.New("need at least 2 points")
	}
	if len(points) > c.maxWaypoints {
		return RouteResult{}, fmt.Errorf("waypoint count %d exceeds cap %d", len(points), c.maxWaypoints)
	}

	reqBody := googleRoutesRequest{
		Origin:      wrapWaypoint(points[0]),
		Destination: wrapWaypoint(points[len(points)-1]),
		TravelMode:  googleTravelMode(mode),
	}
	for _, p := range points[1 : len(points)-1] {
		reqBody.Intermediates = append(reqBody.Intermediates, wrapWaypoint(p))
	}
	if mode == ModeDriving {
		reqBody.RoutingPreference = "TRAFFIC_AWARE"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return RouteResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/directions/v2:computeRoutes", bytes.NewReader(jsonBody))
	if err != nil {
		return RouteResult{}, fmt.Errorf("create request: %w", err)
	}
	// The field mask is mandatory or the API rejects the call.
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask",
		"routes.duration,routes.staticDuration,routes.distanceMeters,routes.polyline.encodedPolyline")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RouteResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return RouteResult{}, errors.New("google routes rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return RouteResult{}, fmt.Errorf("google routes error %d: %s", resp.StatusCode, string(body))
	}

	var parsed googleRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RouteResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Routes) == 0 {
		return RouteResult{}, errors.New("no routes in response")
	}

	route := parsed.Routes[0]
	duration, err := parseGoogleDuration(route.Duration)
	if err != nil {
		return RouteResult{}, fmt.Errorf("parse duration: %w", err)
	}
	static := duration
	if route.StaticDuration != "" {
		if s, err := parseGoogleDuration(route.StaticDuration); err == nil {
			static = s
		}
	}

	return RouteResult{
		DistanceKm:            float64(route.DistanceMeters) / 1000,
		DurationMinutes:       duration.Minutes(),
		StaticDurationMinutes: static.Minutes(),
		Polyline:              route.Polyline.EncodedPolyline,
		Waypoints:             points,
		Method:                MethodGoogleRoutes,
	}, nil
}

func wrapWaypoint(p geo.Point) googleWaypoint {
	var w googleWaypoint
	w.Location.LatLng = googleLatLng{Latitude: p.Lat, Longitude: p.Lng}
	return w
}

func googleTravelMode(mode TravelMode) string {
	switch mode {
	case ModeWalking:
		return "WALK"
	case ModeBicycle:
		return "BICYCLE"
	default:
		return "DRIVE"
	}
}

// parseGoogleDuration parses Google's "450s" duration strings.
func parseGoogleDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSuffix(s, "s")
	if trimmed == s || trimmed == "" {
		return 0, fmt.Errorf("unexpected duration format %q", s)
	}
	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

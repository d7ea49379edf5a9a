package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backend-fieldops/internal/gps"
	"backend-fieldops/internal/shared/geo"
)

// osrmMaxCoordinates caps the coordinate count submitted to the public
// OSRM server; longer traces are simplified first.
const osrmMaxCoordinates = 100

// osrmClient calls a community OSRM server. It is the free tertiary tier
// and also serves path requests that need a visualizable geometry.
type osrmClient struct {
	baseURL    string
	httpClient *http.Client
}

func newOSRMClient(baseURL string, timeout time.Duration) *osrmClient {
	return &osrmClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *osrmClient) Name() string { return MethodOSRM }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry string  `json:"geometry"` // encoded polyline
	} `json:"routes"`
}

func (c *osrmClient) Route(ctx context.Context, points []geo.Point, mode TravelMode) (RouteResult, error) {
	if len(points) < 2 {
		return RouteResult{}, errors.New("need at least 2 points")
	}
	if len(points) > osrmMaxCoordinates {
		points = gps.Simplify(points, gps.DefaultSimplifyEpsilon)
		if len(points) > osrmMaxCoordinates {
			points = sampleDown(points, osrmMaxCoordinates)
		}
	}

	var coords strings.Builder
	for i, p := range points {
		if i > 0 {
			coords.WriteByte(';')
		}
		// OSRM wants lng,lat order.
		fmt.Fprintf(&coords, "%f,%f", p.Lng, p.Lat)
	}

	profile := osrmProfile(mode)
	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&alternatives=false",
		c.baseURL, profile, coords.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RouteResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RouteResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RouteResult{}, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RouteResult{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return RouteResult{}, fmt.Errorf("osrm code %q with %d routes", parsed.Code, len(parsed.Routes))
	}

	route := parsed.Routes[0]
	minutes := route.Duration / 60
	return RouteResult{
		DistanceKm:            route.Distance / 1000,
		DurationMinutes:       minutes,
		StaticDurationMinutes: minutes,
		Polyline:              route.Geometry,
		Waypoints:             points,
		Method:                MethodOSRM,
	}, nil
}

func osrmProfile(mode TravelMode) string {
	switch mode {
	case ModeWalking:
		return "foot"
	case ModeBicycle:
		return "bike"
	default:
		return "driving"
	}
}

// sampleDown keeps every nth point plus the endpoints when simplification
// alone cannot reach the cap.
func sampleDown(points []geo.Point, max int) []geo.Point {
	if len(points) <= max {
		return points
	}
	step := float64(len(points)-1) / float64(max-1)
	out := make([]geo.Point, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, points[int(float64(i)*step)])
	}
	out[len(out)-1] = points[len(points)-1]
	return out
}

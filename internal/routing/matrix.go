package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"backend-fieldops/internal/shared/geo"
)

// matrixClient queries the Distance Matrix API one consecutive pair at a
// time. It is the secondary tier: no polylines, but simple and reliable
// when the Routes API has no route. A failed pair degrades to local
// geometry for that segment only.
type matrixClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	callDelay  time.Duration
	sleep      func(time.Duration)
}

func newMatrixClient(apiKey string, timeout, callDelay time.Duration) *matrixClient {
	return &matrixClient{
		apiKey:     apiKey,
		baseURL:    "https://maps.googleapis.com",
		httpClient: &http.Client{Timeout: timeout},
		callDelay:  callDelay,
		sleep:      time.Sleep,
	}
}

func (c *matrixClient) Name() string { return MethodDistanceMatrix }

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int64 `json:"value"` // meters
			} `json:"distance"`
			Duration struct {
				Value int64 `json:"value"` // seconds
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (c *matrixClient) Route(ctx context.Context, points []geo.Point, mode TravelMode) (RouteResult, error) {
	if c.apiKey == "" {
		return RouteResult{}, errors.New("distance matrix api key not configured")
	}
	if len(points) < 2 {
		return RouteResult{}, errors.New("need at least 2 points")
	}

	res := RouteResult{Method: MethodDistanceMatrix, Waypoints: points}
	externalPairs := 0

	for i := 1; i < len(points); i++ {
		if i > 1 && c.callDelay > 0 {
			// Small delay between calls to stay under the per-second quota.
			c.sleep(c.callDelay)
		}

		distKm, durMin, err := c.pairDistance(ctx, points[i-1], points[i], mode)
		if err != nil {
			// Degrade this segment only.
			seg := geo.VincentyKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
			distKm = seg.DistanceKm
			durMin = seg.DistanceKm / segmentSpeedKmh(seg.DistanceKm) * 60
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("segment %d fell back to local geometry: %v", i, err))
		} else {
			externalPairs++
		}
		res.DistanceKm += distKm
		res.DurationMinutes += durMin
	}

	if externalPairs == 0 {
		return RouteResult{}, errors.New("distance matrix returned no usable segments")
	}

	res.StaticDurationMinutes = res.DurationMinutes
	return res, nil
}

func (c *matrixClient) pairDistance(ctx context.Context, from, to geo.Point, mode TravelMode) (float64, float64, error) {
	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", from.Lat, from.Lng))
	q.Set("destinations", fmt.Sprintf("%f,%f", to.Lat, to.Lng))
	q.Set("mode", string(mode))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/maps/api/distancematrix/json?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("distance matrix status %d", resp.StatusCode)
	}

	var parsed matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, err
	}
	if parsed.Status != "OK" || len(parsed.Rows) == 0 || len(parsed.Rows[0].Elements) == 0 {
		return 0, 0, fmt.Errorf("distance matrix response status %q", parsed.Status)
	}
	element := parsed.Rows[0].Elements[0]
	if element.Status != "OK" {
		return 0, 0, fmt.Errorf("distance matrix element status %q", element.Status)
	}

	return float64(element.Distance.Value) / 1000, float64(element.Duration.Value) / 60, nil
}

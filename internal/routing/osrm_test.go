package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-fieldops/internal/shared/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSRMClientRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/"))
		// lng,lat ordering
		require.Contains(t, r.URL.Path, "106.816000,-6.200000")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{
			"distance":14000,
			"duration":1200,
			"geometry":"xyz789"
		}]}`))
	}))
	defer srv.Close()

	c := newOSRMClient(srv.URL, time.Second)
	res, err := c.Route(context.Background(), testLeg, ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 14.0, res.DistanceKm)
	assert.InDelta(t, 20.0, res.DurationMinutes, 0.001)
	assert.Equal(t, "xyz789", res.Polyline)
	assert.Equal(t, MethodOSRM, res.Method)
}

func TestOSRMClientProfiles(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1,"duration":1,"geometry":"g"}]}`))
	}))
	defer srv.Close()

	c := newOSRMClient(srv.URL, time.Second)
	_, err := c.Route(context.Background(), testLeg, ModeWalking)
	require.NoError(t, err)
	assert.Contains(t, gotPath, "/route/v1/foot/")
}

func TestOSRMClientErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	c := newOSRMClient(srv.URL, time.Second)
	_, err := c.Route(context.Background(), testLeg, ModeDriving)
	assert.Error(t, err)
}

func TestOSRMClientCapsCoordinates(t *testing.T) {
	var coordCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		coordCount = len(strings.Split(parts[len(parts)-1], ";"))
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1,"duration":1,"geometry":"g"}]}`))
	}))
	defer srv.Close()

	// A long zig-zag that simplification cannot fully collapse.
	points := make([]geo.Point, 500)
	for i := range points {
		lat := float64(i) * 0.01
		lng := 0.0
		if i%2 == 1 {
			lng = 0.05
		}
		points[i] = geo.Point{Lat: lat, Lng: lng}
	}

	c := newOSRMClient(srv.URL, time.Second)
	_, err := c.Route(context.Background(), points, ModeDriving)
	require.NoError(t, err)
	assert.LessOrEqual(t, coordCount, osrmMaxCoordinates)
}

func TestSampleDown(t *testing.T) {
	points := make([]geo.Point, 10)
	for i := range points {
		points[i] = geo.Point{Lat: float64(i)}
	}
	out := sampleDown(points, 4)
	require.Len(t, out, 4)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[9], out[3])

	assert.Len(t, sampleDown(points, 20), 10)
}

package server

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"backend-fieldops/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:             "secret",
		ServerPort:            ":0",
		RouteCacheTTL:         time.Hour,
		RouteCacheSweepPeriod: time.Minute,
	}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)

	for _, path := range []string{"/tracking/sessions", "/routes/estimate"} {
		req := httptest.NewRequest("POST", path, bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("test request: %v", err)
		}
		if resp.StatusCode != 401 {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestStartCacheSweeper(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.StartCacheSweeper(ctx)
	cancel()
}

package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	payload := []byte("hello")
	hub.Broadcast("session-1", payload)

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestBroadcastUpdatePayload(t *testing.T) {
	hub := NewHub(nil, nil)
	client := hub.Register("session-u")
	defer hub.Unregister(client)

	hub.BroadcastUpdate(Update{
		SessionID:  "session-u",
		Lat:        1.5,
		Lng:        103.8,
		DistanceKm: 0.42,
		RecordedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	})

	select {
	case msg := <-client.Send:
		var got Update
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.SessionID != "session-u" || got.DistanceKm != 0.42 {
			t.Fatalf("unexpected update: %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for update")
	}
}

func TestHubHelpers(t *testing.T) {
	ch := sessionChannel("abc")
	if ch == "" {
		t.Fatalf("expected channel")
	}
	if sessionIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected session id")
	}
	if sessionIDFromChannel("bad") != "" {
		t.Fatalf("expected empty session id")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil, nil)
	client := hub.Register("session-2")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
}

func TestHubRedisBroadcastAndSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client, nil)
	ws := hub.Register("session-redis")
	defer hub.Unregister(ws)

	// Let the pubsub subscription establish before publishing.
	time.Sleep(20 * time.Millisecond)
	hub.Broadcast("session-redis", []byte("ping"))

	select {
	case msg := <-ws.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}

	// A publish arriving from another instance must reach local watchers.
	other := hub.Register("session-other")
	defer hub.Unregister(other)

	time.Sleep(20 * time.Millisecond)
	if err := client.Publish(context.Background(), sessionChannel("session-other"), "pong").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	select {
	case msg := <-other.Send:
		if string(msg) != "pong" {
			t.Fatalf("unexpected message from redis")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for redis message")
	}
}

func TestHubRedisDeliversExactlyOnce(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client, nil)
	ws := hub.Register("session-once")
	defer hub.Unregister(ws)

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast("session-once", []byte("ping"))

	select {
	case <-ws.Send:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for delivery")
	}

	// The publishing instance receives its own publish; a watcher must
	// still see the update exactly once.
	select {
	case msg := <-ws.Send:
		t.Fatalf("duplicate delivery: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client, nil)
	clientNode := hub.Register("session-bad")
	defer hub.Unregister(clientNode)

	// Publish fails with the server down; delivery falls back to local.
	hub.Broadcast("session-bad", []byte("ping"))

	select {
	case msg := <-clientNode.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected local fallback delivery")
	}
}

package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub fans live position updates out to websocket subscribers watching a
// tracking session. With a redis client configured, updates are also
// published so subscribers connected to other instances receive them.
type Hub struct {
	redis   *redis.Client
	logger  *zap.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	SessionID string
	Send      chan []byte
}

// Update is the wire payload pushed to watchers of a session.
type Update struct {
	SessionID  string    `json:"session_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	DistanceKm float64   `json:"distance_km"`
	RecordedAt time.Time `json:"recorded_at"`
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		logger:  logger,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// BroadcastUpdate marshals and broadcasts a position update. Marshal
// failures are logged, never propagated; streaming is best effort.
func (h *Hub) BroadcastUpdate(u Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		h.logger.Warn("marshal position update", zap.Error(err))
		return
	}
	h.Broadcast(u.SessionID, payload)
}

func (h *Hub) Broadcast(sessionID string, payload []byte) {
	// With redis configured, delivery goes through pubsub alone; the
	// subscription loop hands the message to local watchers exactly once.
	// Delivering locally here as well would double-send, since this
	// instance receives its own publish.
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), sessionChannel(sessionID), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("redis publish", zap.String("session_id", sessionID), zap.Error(err))
	}
	h.deliverLocal(sessionID, payload)
}

func (h *Hub) deliverLocal(sessionID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[sessionID]
	h.mu.RUnlock()

	// Slow consumers are skipped rather than blocking the ingest path.
	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "fieldops:session:*:positions")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		h.deliverLocal(sessionID, []byte(msg.Payload))
	}
}

func sessionChannel(sessionID string) string {
	return "fieldops:session:" + sessionID + ":positions"
}

func sessionIDFromChannel(ch string) string {
	const prefix = "fieldops:session:"
	const suffix = ":positions"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}

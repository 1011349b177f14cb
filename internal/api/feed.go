package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
)

// Feed message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 32
)

// WSMessage is one frame on the live feed, in either direction.
type WSMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Time    string `json:"time,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans node events out to feed clients.
//
// The last event of every channel is retained and replayed to a client
// when it subscribes, so a page opened between two display frames or
// connectivity changes still starts from the current state.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	retained map[string][]byte
}

// NewHub creates a hub. It serves clients once Run is called.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
		retained: make(map[string][]byte),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		c.conn.Close()
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client connected", "clients", n)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("feed client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel and
// retains it for later subscribers.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, Channel: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding feed event failed", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	h.retained[channel] = data
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if c.subscribed(channel) {
			c.enqueue(data)
		}
	}
}

// last returns the retained event of channel, if any.
func (h *Hub) last(channel string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.retained[channel]
	return data, ok
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// encodeMessage stamps and marshals a frame.
func encodeMessage(msg WSMessage) ([]byte, error) {
	msg.Time = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

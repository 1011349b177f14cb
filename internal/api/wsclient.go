package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// upgrader accepts any origin: portal clients reach the node by bare IP
// and the feed carries no credentials.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient is one feed connection. Frames are queued on out and written by
// a single writer goroutine.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	subs   map[string]struct{}
	out    chan []byte
	closed bool
}

// wsRequest is an inbound frame with its payload left encoded until the
// type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:  s.hub,
		conn: conn,
		subs: make(map[string]struct{}),
		out:  make(chan []byte, wsSendBufferSize),
	}
	s.hub.register(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// enqueue queues a frame without blocking. Frames for a slow client are
// dropped; the retained state catches it up on its next subscribe.
func (c *wsClient) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
	}
}

// close ends the writer. Safe to call more than once.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[channel]
	return ok
}

func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	deadline := config.Seconds(cfg.PingInterval) + config.Seconds(cfg.PongTimeout)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		_ = extend()
		c.handle(data)
	}
}

func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(config.Seconds(cfg.PingInterval))
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(config.Seconds(cfg.PongTimeout)))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil || len(p.Channels) == 0 {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "payload must list channels"})
			return
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(req.ID, p.Channels)
		} else {
			c.unsubscribe(req.ID, p.Channels)
		}
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

// subscribe acknowledges, then replays the retained event of each channel.
func (c *wsClient) subscribe(id string, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subs[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"subscribed": channels})
	for _, ch := range channels {
		if data, ok := c.hub.last(ch); ok {
			c.enqueue(data)
		}
	}
}

func (c *wsClient) unsubscribe(id string, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

func (c *wsClient) reply(id, kind string, payload any) {
	data, err := encodeMessage(WSMessage{Type: kind, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}

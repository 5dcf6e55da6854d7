package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// Event is one JSON frame on the socket, in either direction.
type Event struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// SocketHub fans ingress events out to every connected subscriber. Slow
// subscribers whose send queue fills are dropped rather than allowed to
// stall ingress.
type SocketHub struct {
	clients    map[*SocketClient]bool
	register   chan *SocketClient
	unregister chan *SocketClient
	broadcast  chan []byte

	// onAnalyze handles the client-emitted token:analyze event.
	onAnalyze func(tokenAddress string)

	// snapshot builds the state event a fresh connection receives.
	snapshot func() any

	mu  sync.RWMutex
	log zerolog.Logger
}

// SocketClient is one subscriber connection.
type SocketClient struct {
	id   string
	hub  *SocketHub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The hub serves local dashboards; cross-origin is fine.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewSocketHub builds the fan-out hub. snapshot produces the connect-time
// state event; onAnalyze receives token:analyze requests.
func NewSocketHub(snapshot func() any, onAnalyze func(tokenAddress string)) *SocketHub {
	return &SocketHub{
		clients:    make(map[*SocketClient]bool),
		register:   make(chan *SocketClient),
		unregister: make(chan *SocketClient),
		broadcast:  make(chan []byte, 256),
		onAnalyze:  onAnalyze,
		snapshot:   snapshot,
		log:        config.NewLogger("socket"),
	}
}

// Run drives the register/unregister/broadcast loop. Call in a goroutine.
func (h *SocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			// The snapshot is queued here, in the same goroutine that
			// fans out broadcasts, so nothing can slip between the
			// snapshot and the first live event.
			if h.snapshot != nil {
				if frame, err := encodeEvent("state", h.snapshot()); err == nil {
					select {
					case client.send <- frame:
					default:
					}
				}
			}
			metrics.HubSubscribers.Set(float64(total))
			h.log.Info().Str("client", client.id).Int("total", total).Msg("subscriber connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.HubSubscribers.Set(float64(total))
			h.log.Info().Str("client", client.id).Int("total", total).Msg("subscriber disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Queue full: the subscriber can't keep up.
					close(client.send)
					delete(h.clients, client)
					h.log.Warn().Str("client", client.id).Msg("dropped slow subscriber")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast emits one named event to every subscriber.
func (h *SocketHub) Broadcast(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	h.broadcast <- frame
}

// ClientCount returns the number of connected subscribers.
func (h *SocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a subscriber connection. The hub
// loop delivers the state snapshot at registration, ahead of any
// subsequent broadcast.
func (h *SocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &SocketClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	h.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *SocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *SocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *SocketClient) handleMessage(message []byte) {
	var ev Event
	if err := json.Unmarshal(message, &ev); err != nil {
		c.sendError("invalid message")
		return
	}

	switch ev.Event {
	case "token:analyze":
		addr, ok := parseAnalyzeTarget(ev.Data)
		if !ok {
			c.sendError("token:analyze requires a token address")
			return
		}
		if c.hub.onAnalyze != nil {
			c.hub.onAnalyze(addr)
		}
	default:
		c.hub.log.Debug().Str("event", ev.Event).Msg("unhandled client event")
	}
}

// parseAnalyzeTarget accepts {"tokenAddress":"0x..."} or a plain string
// address of at least 10 characters.
func parseAnalyzeTarget(data json.RawMessage) (string, bool) {
	var payload struct {
		TokenAddress string `json:"tokenAddress"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.TokenAddress) >= 10 {
		return strings.ToLower(payload.TokenAddress), true
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err == nil && len(plain) >= 10 {
		return strings.ToLower(plain), true
	}
	return "", false
}

func (c *SocketClient) sendError(msg string) {
	frame, err := encodeEvent("error", map[string]string{"message": msg})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Event:     event,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Package ws pushes order and wallet events from the engine's signal bus to
// WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coinwave/tradecore/internal/domain"
	"github.com/coinwave/tradecore/internal/server/middleware"
	"github.com/coinwave/tradecore/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay under pongWait
	maxMessageSize = 4096
	outBufferSize  = 256
)

// busChannels are the signal-bus channels the hub bridges.
var busChannels = []string{
	service.OrdersChannel,
	service.WalletsChannel,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the surrounding CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events published on the signal bus out to connected sessions.
// Sessions carrying a user identity receive only their own events; sessions
// without one (operator dashboards) receive everything.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}

	join   chan *session
	leave  chan *session
	events chan busEvent

	startedAt time.Time
}

// busEvent is one payload received from the signal bus, tagged with the
// channel it arrived on.
type busEvent struct {
	channel string
	payload []byte
}

// session is one upgraded WebSocket connection.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	out    chan []byte
	userID string // empty for unscoped connections

	mu   sync.Mutex
	subs map[string]bool
}

// controlMsg is the only inbound frame the hub understands:
// {"action":"subscribe","channels":["tradecore:orders"]}.
type controlMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// NewHub creates a Hub bridging the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:       bus,
		logger:    logger,
		sessions:  make(map[*session]struct{}),
		join:      make(chan *session),
		leave:     make(chan *session),
		events:    make(chan busEvent, 256),
		startedAt: time.Now().UTC(),
	}
}

// Run drives the hub until ctx is cancelled. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range busChannels {
		go h.pump(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case s := <-h.join:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: session opened",
				slog.String("user_id", s.userID),
				slog.Int("sessions", n),
			)

		case s := <-h.leave:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.out)
			}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: session closed", slog.Int("sessions", n))

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// pump forwards one bus channel's messages into the hub's event queue.
func (h *Hub) pump(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription ended",
					slog.String("channel", channel),
				)
				return
			}
			h.events <- busEvent{channel: channel, payload: payload}
		}
	}
}

// deliver routes one bus event to every session subscribed to its channel
// and, when the event names a user, entitled to see it.
func (h *Hub) deliver(ev busEvent) {
	owner := eventOwner(ev.payload)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if !s.wants(ev.channel) {
			continue
		}
		if owner != "" && s.userID != "" && s.userID != owner {
			continue
		}
		select {
		case s.out <- ev.payload:
		default:
			h.logger.Warn("ws: dropping event for slow session",
				slog.String("user_id", s.userID),
			)
		}
	}
}

// eventOwner extracts the user_id field every engine event carries.
func eventOwner(payload []byte) string {
	var probe struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.UserID
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		close(s.out)
		delete(h.sessions, s)
	}
}

// HandleWS upgrades the request and registers the session. The session
// starts subscribed to every bus channel; clients narrow it from there.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		hub:    h,
		conn:   conn,
		out:    make(chan []byte, outBufferSize),
		userID: middleware.UserID(r.Context()),
		subs:   make(map[string]bool, len(busChannels)),
	}
	for _, ch := range busChannels {
		s.subs[ch] = true
	}

	h.join <- s
	s.greet()

	go s.writeLoop()
	go s.readLoop()
}

// greet sends a status envelope so clients can mark the stream healthy
// before any engine event arrives.
func (s *session) greet() {
	uptime := int64(time.Since(s.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"ws_connected":   true,
			"uptime_seconds": uptime,
			"channels":       busChannels,
		},
	})
	if err != nil {
		return
	}
	select {
	case s.out <- msg:
	default:
	}
}

func (s *session) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[channel]
}

func (s *session) applyControl(msg controlMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			s.subs[ch] = true
		case "unsubscribe":
			delete(s.subs, ch)
		}
	}
}

// readLoop consumes inbound frames. Only subscription control frames are
// meaningful; everything else is ignored. Exit deregisters the session.
func (s *session) readLoop() {
	defer func() {
		s.hub.leave <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: read failed", slog.String("error", err.Error()))
			}
			return
		}
		var msg controlMsg
		if err := json.Unmarshal(frame, &msg); err == nil && msg.Action != "" {
			s.applyControl(msg)
		}
	}
}

// writeLoop sends queued events as JSON text frames and keeps the
// connection alive with periodic pings.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/metrics"
)

// WebSocket message types
const (
	MessageTypeNotification = "notification"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypeError        = "error"
)

const (
	subscriberBuffer  = 32
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type         string                  `json:"type"`
	Notification *analytics.Notification `json:"notification,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

// newUpgrader builds an upgrader that accepts the given origins. An empty
// list falls back to the local development origins and "*" accepts any
// origin. Requests without an Origin header (non-browser clients) pass.
func newUpgrader(allowed []string) *websocket.Upgrader {
	origins := normalizeOrigins(allowed)
	if len(origins) == 0 {
		origins = normalizeOrigins(defaultAllowedOrigins)
	}
	wildcard := false
	set := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		set[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			return set[strings.ToLower(strings.TrimRight(origin, "/"))]
		},
	}
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

// Subscriber receives one user's notifications.
type Subscriber struct {
	UserID string
	Ch     chan analytics.Notification
}

// Hub fans notifications out to every subscriber of a user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for userID. The returned channel is
// closed by Unsubscribe or Close.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{UserID: userID, Ch: make(chan analytics.Notification, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Ch)
		return sub
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.Ch)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
}

// Publish sends notifications to every subscriber of userID and returns how
// many deliveries succeeded. A subscriber whose buffer is full misses the
// notification rather than blocking the publisher.
func (h *Hub) Publish(userID string, notes []analytics.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.subs[userID] {
		for _, n := range notes {
			select {
			case sub.Ch <- n:
				delivered++
			default:
				h.logger.Warn("subscriber buffer full, dropping notification",
					zap.String("user_id", userID), zap.String("kind", string(n.Kind)))
			}
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close disconnects every subscriber. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, set := range h.subs {
		for sub := range set {
			close(sub.Ch)
		}
		delete(h.subs, userID)
	}
}

// ─── Stream handler ───────────────────────────────────────────────────────────

// handleNotificationStream streams a user's notifications over WebSocket.
// URL pattern: /ws/users/{id}/notifications
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/users/"), "/")
	userID, tail, _ := strings.Cut(rest, "/")
	if userID == "" || tail != "notifications" {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}

	upgrader := newUpgrader(s.config.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	sub := s.hub.Subscribe(userID)
	defer s.hub.Unsubscribe(sub)
	s.logger.Info("notification stream opened", zap.String("user_id", userID))

	// The read loop only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	write := func(msg WSMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	for {
		select {
		case n, ok := <-sub.Ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			note := n
			if err := write(WSMessage{Type: MessageTypeNotification, Notification: &note, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := write(WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		case <-gone:
			s.logger.Info("notification stream closed", zap.String("user_id", userID))
			return
		case <-s.ctx.Done():
			return
		}
	}
}

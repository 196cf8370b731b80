package ws

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/enforcer"
	"github.com/GriffinCanCode/ExamShell/backend/internal/middleware"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
)

const (
	writeTimeout = 5 * time.Second
	bufferSize   = 64
)

// Event is one message sent to subscribers
type Event struct {
	Type      string                 `json:"type"`
	WindowID  string                 `json:"window_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

type inbound struct {
	Type string `json:"type"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Event
}

// Hub fans host events out to WebSocket subscribers
type Hub struct {
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client

	dropped atomic.Uint64
}

// NewHub creates an event hub. Only loopback origins may subscribe.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.IsLoopbackOrigin(origin)
			},
		},
		clients: make(map[uuid.UUID]*client),
	}
}

// HandleConnection upgrades the request and streams events until the
// subscriber disconnects
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{id: uuid.New(), conn: conn, send: make(chan Event, bufferSize)}
	h.register(cl)
	defer h.unregister(cl.id)

	go h.writeLoop(cl)

	h.sendTo(cl.id, Event{
		Type: "hello",
		Data: map[string]interface{}{"subscriber_id": cl.id.String()},
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("subscriber", cl.id.String()), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			h.sendTo(cl.id, Event{Type: "pong"})
		default:
			h.sendTo(cl.id, Event{
				Type: "error",
				Data: map[string]interface{}{"message": "unknown message type"},
			})
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for ev := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteJSON(ev); err != nil {
			h.logger.Debug("WebSocket write failed", zap.String("subscriber", cl.id.String()), zap.Error(err))
			return
		}
	}
	_ = cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.metrics.IncWSConnections()
	h.logger.Debug("Subscriber connected", zap.String("subscriber", cl.id.String()))
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(cl.send)
	}
	h.mu.Unlock()
	if ok {
		h.metrics.DecWSConnections()
		h.logger.Debug("Subscriber disconnected", zap.String("subscriber", id.String()))
	}
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*client)
	for _, cl := range clients {
		close(cl.send)
	}
	h.mu.Unlock()
	for range clients {
		h.metrics.DecWSConnections()
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were not delivered to a slow subscriber
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) sendTo(id uuid.UUID, ev Event) {
	ev.Timestamp = time.Now().Unix()
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cl, ok := h.clients[id]; ok {
		h.enqueue(cl, ev)
	}
}

func (h *Hub) publish(ev Event) {
	ev.Timestamp = time.Now().Unix()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		h.enqueue(cl, ev)
	}
}

// enqueue requires h.mu held
func (h *Hub) enqueue(cl *client, ev Event) {
	select {
	case cl.send <- ev:
	default:
		h.dropped.Add(1)
	}
}

// AddressChanged implements enforcer.Host
func (h *Hub) AddressChanged(windowID, url string) {
	h.publish(Event{Type: "address_changed", WindowID: windowID, Data: map[string]interface{}{"url": url}})
}

// TitleChanged implements enforcer.Host
func (h *Hub) TitleChanged(windowID, title string) {
	h.publish(Event{Type: "title_changed", WindowID: windowID, Data: map[string]interface{}{"title": title}})
}

// LoadFailed implements enforcer.Host
func (h *Hub) LoadFailed(windowID string, code int, message string, isMainFrame bool, url string) {
	h.publish(Event{Type: "load_failed", WindowID: windowID, Data: map[string]interface{}{
		"code":       code,
		"message":    message,
		"main_frame": isMainFrame,
		"url":        url,
	}})
}

// LoadingStateChanged implements enforcer.Host
func (h *Hub) LoadingStateChanged(windowID string, isLoading bool) {
	h.publish(Event{Type: "loading_state", WindowID: windowID, Data: map[string]interface{}{"loading": isLoading}})
}

// PolicyViolation implements enforcer.Host
func (h *Hub) PolicyViolation(v enforcer.Violation) {
	h.publish(Event{Type: "policy_violation", WindowID: v.WindowID, Data: map[string]interface{}{
		"class":  v.Class,
		"kind":   string(v.Kind),
		"detail": v.Detail,
		"url":    v.URL,
		"at":     v.At,
	}})
}

var _ enforcer.Host = (*Hub)(nil)

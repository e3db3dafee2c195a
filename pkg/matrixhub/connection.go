package matrixhub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var connectedMatrices = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "agent_orchestra",
	Subsystem: "matrixhub",
	Name:      "connected_matrices",
	Help:      "Current number of connected matrix WebSocket clients.",
})

// RegisterMetrics registers the hub's prometheus collectors with reg. Safe
// to call once per process.
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(connectedMatrices)
}

// conn is one registered WebSocket connection, generalizing the teacher's
// register/unregister/broadcast WSHub to a per-matrix identity with rate
// limiting and a liveness deadline (spec §4.5).
type conn struct {
	matrixID    string
	displayName string
	ws          *websocket.Conn
	writeMu     sync.Mutex
	limiter     *rate.Limiter
	lastInbound atomic64
}

// atomic64 is a tiny monotonic-time holder guarded by its own mutex; kept
// local since only lastInbound needs cross-goroutine visibility between
// the read loop and the heartbeat sweep.
type atomic64 struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomic64) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomic64) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub manages N connected matrices: presence, broadcast, and direct
// messaging over WebSocket (spec §4.5).
type Hub struct {
	cfg    config.HubConfig
	store  *store.Store
	log    *slog.Logger
	start  time.Time

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewHub constructs a Hub bound to st and configured by cfg.
func NewHub(st *store.Store, cfg config.HubConfig) *Hub {
	return &Hub{
		cfg:   cfg,
		store: st,
		log:   slog.With("component", "matrixhub"),
		start: time.Now(),
		conns: map[string]*conn{},
	}
}

// OnlineMatrices returns the ids of every currently-connected matrix.
func (h *Hub) OnlineMatrices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	return out
}

// ConnectedCount reports the number of live connections.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWS upgrades an already-token-validated request and runs the
// connection lifecycle of spec §4.5 step 1-3.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, matrixID, displayName string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err, "matrix_id", matrixID)
		return
	}

	h.replaceExisting(matrixID)

	c := &conn{
		matrixID:    matrixID,
		displayName: displayName,
		ws:          ws,
		limiter:     rate.NewLimiter(rate.Limit(h.cfg.InboundRateLimitPS), h.cfg.InboundRateBurst),
	}
	c.lastInbound.set(time.Now())

	h.mu.Lock()
	h.conns[matrixID] = c
	h.mu.Unlock()
	connectedMatrices.Set(float64(h.ConnectedCount()))

	ctx := context.Background()
	if err := h.store.UpsertMatrixRegistry(ctx, matrixID, displayName, store.MatrixOnline, nil); err != nil {
		h.log.Warn("registry upsert failed", "matrix_id", matrixID, "error", err)
	}

	_ = c.writeJSON(Frame{Type: FrameRegistered, MatrixID: matrixID, OnlineMatrices: h.OnlineMatrices()})
	h.broadcastPresence(matrixID, "online", matrixID)

	go h.heartbeatLoop(matrixID, c)
	h.readLoop(ctx, matrixID, c)
}

// replaceExisting implements spec §4.5's reconnect rule: keep the old
// connection alive for ReplaceDrainDelay, then close it with code 1000.
func (h *Hub) replaceExisting(matrixID string) {
	h.mu.Lock()
	old, ok := h.conns[matrixID]
	if ok {
		delete(h.conns, matrixID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		time.Sleep(h.cfg.ReplaceDrainDelay)
		_ = old.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Replaced by new connection"),
			time.Now().Add(time.Second))
		old.ws.Close()
	}()
}

// readLoop consumes inbound frames until the socket closes or errors,
// dispatching per spec §4.5 step 2.
func (h *Hub) readLoop(ctx context.Context, matrixID string, c *conn) {
	defer h.disconnect(ctx, matrixID, c)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		c.lastInbound.set(time.Now())
		_ = h.store.TouchMatrixLastSeen(ctx, matrixID)

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.log.Warn("malformed frame", "matrix_id", matrixID, "error", err)
			_ = c.writeJSON(Frame{Type: FrameError, Code: ErrInvalidMessage, Message: "malformed frame: " + err.Error()})
			continue
		}
		h.dispatch(ctx, matrixID, c, f)
	}
}

func (h *Hub) dispatch(ctx context.Context, matrixID string, c *conn, f Frame) {
	switch f.Type {
	case FramePong:
		// no-op
	case FramePing:
		_ = c.writeJSON(Frame{Type: FramePing})
	case FramePresence:
		_ = h.store.SetMatrixStatus(ctx, matrixID, store.MatrixStatus(f.Status))
		h.broadcastPresence(matrixID, f.Status, matrixID)
	case FrameMessage:
		h.handleMessage(matrixID, c, f)
	default:
		h.log.Warn("unknown frame type", "matrix_id", matrixID, "type", f.Type)
		_ = c.writeJSON(Frame{Type: FrameError, Code: ErrInvalidMessage, Message: "unknown message type: " + f.Type})
	}
}

// handleMessage implements direct forwarding and broadcast from spec
// §4.5's message dispatch rule, stamping {from, timestamp}.
func (h *Hub) handleMessage(matrixID string, sender *conn, f Frame) {
	f.From = matrixID
	f.Timestamp = time.Now()

	if f.To == "" {
		h.broadcastExcept(matrixID, f)
		return
	}

	h.mu.RLock()
	target, ok := h.conns[f.To]
	h.mu.RUnlock()
	if !ok {
		_ = sender.writeJSON(Frame{Type: FrameError, Code: ErrDeliveryFailed, Message: "recipient not connected: " + f.To})
		return
	}
	if err := target.writeJSON(f); err != nil {
		_ = sender.writeJSON(Frame{Type: FrameError, Code: ErrDeliveryFailed, Message: err.Error()})
	}
}

func (h *Hub) broadcastPresence(matrixID, status, exclude string) {
	h.broadcastExcept(exclude, Frame{Type: FramePresence, MatrixID: matrixID, Status: status, Timestamp: time.Now()})
}

// broadcastExcept writes f to every connection except excludeID. Write
// failures are tolerated silently (spec §4.5, §5: "broadcast partial
// failures are silently tolerated").
func (h *Hub) broadcastExcept(excludeID string, f Frame) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for id, c := range h.conns {
		if id == excludeID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeJSON(f); err != nil {
			h.log.Debug("broadcast write failed", "matrix_id", c.matrixID, "error", err)
		}
	}
}

// heartbeatLoop sends a ping every HeartbeatInterval and closes the
// connection if no inbound frame has arrived within IdleTimeout (spec
// §4.5).
func (h *Hub) heartbeatLoop(matrixID string, c *conn) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.RLock()
		current, ok := h.conns[matrixID]
		h.mu.RUnlock()
		if !ok || current != c {
			return
		}
		if time.Since(c.lastInbound.get()) > h.cfg.IdleTimeout {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Ping timeout"),
				time.Now().Add(time.Second))
			c.ws.Close()
			return
		}
		_ = c.writeJSON(Frame{Type: FramePing})
	}
}

// disconnect implements spec §4.5 step 3: remove the entry, mark offline,
// broadcast presence.
func (h *Hub) disconnect(ctx context.Context, matrixID string, c *conn) {
	h.mu.Lock()
	if current, ok := h.conns[matrixID]; ok && current == c {
		delete(h.conns, matrixID)
	}
	h.mu.Unlock()
	connectedMatrices.Set(float64(h.ConnectedCount()))

	if err := h.store.SetMatrixStatus(ctx, matrixID, store.MatrixOffline); err != nil {
		h.log.Warn("mark offline failed", "matrix_id", matrixID, "error", err)
	}
	h.broadcastPresence(matrixID, "offline", matrixID)
	c.ws.Close()
}

// SweepStale marks registry rows offline whose last_seen exceeds the
// stale-sweep threshold and runs on GET /health (spec §4.5, §4.6).
func (h *Hub) SweepStale(ctx context.Context) error {
	stale, err := h.store.StaleMatrices(ctx, int(h.cfg.StaleSweepInterval.Seconds()))
	if err != nil {
		return err
	}
	for _, m := range stale {
		if m.Status == store.MatrixOffline {
			continue
		}
		if err := h.store.SetMatrixStatus(ctx, m.MatrixID, store.MatrixOffline); err != nil {
			h.log.Warn("stale sweep mark offline failed", "matrix_id", m.MatrixID, "error", err)
		}
	}
	return nil
}

// Uptime reports how long the hub process has been running.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.start)
}

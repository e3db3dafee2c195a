// Package matrixclient is the Matrix Client/Daemon (spec §4.6): durable
// outbound delivery from a single workspace to the hub, with inbound
// fanout to local consumers.
package matrixclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
	"github.com/jarkius/agent-orchestra/pkg/version"
)

// registerResponse mirrors the hub's GET /register JSON body.
type registerResponse struct {
	Token    string `json:"token"`
	MatrixID string `json:"matrix_id"`
}

// hubConn owns the single WebSocket connection to the hub, reconnecting
// with exponential backoff and exposing an authentication-failure counter
// (spec §4.6: "an auth-reset control so a supervising init script can
// prompt for a new PIN and resume").
type hubConn struct {
	cfg config.DaemonConfig
	log *slog.Logger

	mu        sync.RWMutex
	ws        *websocket.Conn
	connected bool

	authFailures atomic.Int64
	pinOverride  atomic.Value // string

	inbound func(matrixhub.Frame)
}

func newHubConn(cfg config.DaemonConfig, inbound func(matrixhub.Frame)) *hubConn {
	return &hubConn{cfg: cfg, log: slog.With("component", "matrixclient.conn"), inbound: inbound}
}

// Run connects and reconnects forever until ctx is cancelled (spec §4.6:
// "On disconnect, reconnect with exponential backoff").
func (h *hubConn) Run(ctx context.Context) {
	backoff := h.cfg.ReconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		if err := h.connectAndServe(ctx); err != nil {
			h.log.Warn("hub connection ended", "error", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff + jitter()):
		}
		backoff *= 2
		if backoff > h.cfg.ReconnectMax {
			backoff = h.cfg.ReconnectMax
		}
	}
}

func jitter() time.Duration {
	return time.Duration(rand.Int64N(int64(time.Second)))
}

// connectAndServe registers for a token, opens the WebSocket, and blocks
// reading frames until the connection drops.
func (h *hubConn) connectAndServe(ctx context.Context) error {
	pin := h.cfg.PIN
	if override, ok := h.pinOverride.Load().(string); ok && override != "" {
		pin = override
	}

	token, err := h.register(ctx, pin)
	if err != nil {
		h.authFailures.Add(1)
		return fmt.Errorf("register: %w", err)
	}

	wsURL, err := h.wsURL(token)
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	h.mu.Lock()
	h.ws = ws
	h.connected = true
	h.mu.Unlock()

	h.log.Info("connected to hub")
	defer func() {
		h.mu.Lock()
		h.connected = false
		h.ws = nil
		h.mu.Unlock()
		ws.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var f matrixhub.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.log.Warn("malformed frame from hub", "error", err)
			continue
		}
		if f.Type == matrixhub.FramePing {
			_ = h.send(matrixhub.Frame{Type: matrixhub.FramePong})
			continue
		}
		h.inbound(f)
	}
}

func (h *hubConn) register(ctx context.Context, pin string) (string, error) {
	u, err := url.Parse(h.cfg.HubURL)
	if err != nil {
		return "", err
	}
	u.Path = "/register"
	q := u.Query()
	q.Set("matrix_id", h.cfg.MatrixID)
	q.Set("display_name", h.cfg.DisplayName)
	if pin != "" {
		q.Set("pin", pin)
	}
	u.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", version.Full())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("register failed: %s: %s", resp.Status, string(body))
	}

	var rr registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", err
	}
	return rr.Token, nil
}

func (h *hubConn) wsURL(token string) (string, error) {
	u, err := url.Parse(h.cfg.HubURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/"
	q := u.Query()
	q.Set("token", token)
	q.Set("display_name", h.cfg.DisplayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// send writes a frame, failing fast if the connection is currently down.
func (h *hubConn) send(f matrixhub.Frame) error {
	h.mu.RLock()
	ws := h.ws
	connected := h.connected
	h.mu.RUnlock()
	if !connected || ws == nil {
		return fmt.Errorf("hub connection down")
	}
	return ws.WriteJSON(f)
}

// IsConnected reports current link state for the /status endpoint.
func (h *hubConn) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// AuthFailures returns the running authentication-failure counter.
func (h *hubConn) AuthFailures() int64 {
	return h.authFailures.Load()
}

// ResetAuth implements the "auth-reset" control: clears the failure
// counter and applies a freshly supplied PIN on the next connect attempt.
func (h *hubConn) ResetAuth(newPIN string) {
	h.pinOverride.Store(newPIN)
	h.authFailures.Store(0)
}

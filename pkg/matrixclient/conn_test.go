package matrixclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
)

func TestWsURLRewritesSchemeAndCarriesToken(t *testing.T) {
	h := newHubConn(config.DaemonConfig{HubURL: "http://hub.local:8080", DisplayName: "Agent One"}, nil)
	u, err := h.wsURL("tok-123")
	require.NoError(t, err)
	require.Equal(t, "ws://hub.local:8080/?display_name=Agent+One&token=tok-123", u)
}

func TestWsURLUsesWSSForHTTPS(t *testing.T) {
	h := newHubConn(config.DaemonConfig{HubURL: "https://hub.local", DisplayName: "a"}, nil)
	u, err := h.wsURL("tok")
	require.NoError(t, err)
	require.Equal(t, "wss", u[:3])
}

func TestRegisterSendsPinAndDecodesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		require.Equal(t, "matrix-1", r.URL.Query().Get("matrix_id"))
		require.Equal(t, "1234", r.URL.Query().Get("pin"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc","matrix_id":"matrix-1"}`))
	}))
	defer server.Close()

	h := newHubConn(config.DaemonConfig{HubURL: server.URL, MatrixID: "matrix-1", DisplayName: "A"}, nil)
	tok, err := h.register(context.Background(), "1234")
	require.NoError(t, err)
	require.Equal(t, "abc", tok)
}

func TestRegisterErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad pin"))
	}))
	defer server.Close()

	h := newHubConn(config.DaemonConfig{HubURL: server.URL}, nil)
	_, err := h.register(context.Background(), "0000")
	require.Error(t, err)
}

func TestIsConnectedReflectsState(t *testing.T) {
	h := newHubConn(config.DaemonConfig{}, nil)
	require.False(t, h.IsConnected())
	h.connected = true
	require.True(t, h.IsConnected())
}

func TestSendFailsFastWhenDisconnected(t *testing.T) {
	h := newHubConn(config.DaemonConfig{}, nil)
	err := h.send(matrixhub.Frame{Type: matrixhub.FramePing})
	require.Error(t, err)
}

func TestResetAuthClearsFailureCounterAndAppliesOverride(t *testing.T) {
	h := newHubConn(config.DaemonConfig{}, nil)
	h.authFailures.Add(3)
	h.ResetAuth("9999")
	require.Equal(t, int64(0), h.AuthFailures())
	override, ok := h.pinOverride.Load().(string)
	require.True(t, ok)
	require.Equal(t, "9999", override)
}

func TestJitterIsBoundedByOneSecond(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := jitter()
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.Less(t, d, time.Second)
	}
}

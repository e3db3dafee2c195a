package matrixclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jarkius/agent-orchestra/pkg/boundary"
	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
	"github.com/jarkius/agent-orchestra/pkg/retrieval"
	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/vectoradapter"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHTTPAPI(t *testing.T, st *store.Store) *httpAPI {
	t.Helper()
	cfg := testDaemonConfig()
	conn := newHubConn(cfg, func(matrixhub.Frame) {})
	inbound := newInboundRouter(st)
	outbound := newOutboundQueue(st, conn, cfg)
	return newHTTPAPI(conn, inbound, outbound, cfg)
}

func TestHandleStatusReportsConnectionState(t *testing.T) {
	st := newTestStore(t)
	api := newTestHTTPAPI(t, st)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "matrix-1", body["matrix_id"])
	require.Equal(t, false, body["connected"])
}

func TestHandleAuthResetRequiresPIN(t *testing.T) {
	st := newTestStore(t)
	api := newTestHTTPAPI(t, st)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth-reset", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAuthResetAppliesNewPIN(t *testing.T) {
	st := newTestStore(t)
	api := newTestHTTPAPI(t, st)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth-reset", bytes.NewBufferString(`{"pin":"5555"}`))
	req.Header.Set("Content-Type", "application/json")
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	override, ok := api.conn.pinOverride.Load().(string)
	require.True(t, ok)
	require.Equal(t, "5555", override)
}

func TestWithEngineRegistersRecallAndMetricsRoutes(t *testing.T) {
	st := newTestStore(t)
	api := newTestHTTPAPI(t, st)

	vec := vectoradapter.New(boundary.NewStubEmbedder(), 8, 10*time.Millisecond)
	t.Cleanup(vec.Close)
	engine := retrieval.NewEngine(st, vec, retrieval.Weights{Vector: 0.36, Keyword: 0.64}, time.Minute, 10, 0.7, 4)
	api.WithEngine(engine)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/recall?q=", nil)
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/recall?q=hello", nil)
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

package matrixclient

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/retrieval"
)

// httpAPI is the daemon's local HTTP surface: status, an SSE inbound
// stream, the auth-reset control, and (when an engine is wired) hybrid
// recall and prometheus metrics (spec §4.6, §4.3).
type httpAPI struct {
	conn     *hubConn
	inbound  *inboundRouter
	outbound *outboundQueue
	cfg      config.DaemonConfig
	engine   *retrieval.Engine
	router   *gin.Engine
}

func newHTTPAPI(conn *hubConn, inbound *inboundRouter, outbound *outboundQueue, cfg config.DaemonConfig) *httpAPI {
	a := &httpAPI{conn: conn, inbound: inbound, outbound: outbound, cfg: cfg, router: gin.Default()}
	a.routes()
	return a
}

// WithEngine wires a hybrid retrieval engine into the daemon's HTTP
// surface, enabling GET /recall and GET /metrics. Optional: a daemon run
// without a vector adapter configured simply omits these routes.
func (a *httpAPI) WithEngine(e *retrieval.Engine) {
	a.engine = e
	a.router.GET("/recall", a.handleRecall)
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (a *httpAPI) routes() {
	a.router.GET("/status", a.handleStatus)
	a.router.GET("/stream", a.handleStream)
	a.router.POST("/auth-reset", a.handleAuthReset)
}

func (a *httpAPI) Run(addr string) error {
	return a.router.Run(addr)
}

func (a *httpAPI) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"matrix_id":     a.cfg.MatrixID,
		"connected":     a.conn.IsConnected(),
		"auth_failures": a.conn.AuthFailures(),
	})
}

// handleStream exposes inbound traffic as Server-Sent Events (spec §4.6:
// "fanned out to local subscribers (Server-Sent Events stream and/or
// callback handlers)").
func (a *httpAPI) handleStream(c *gin.Context) {
	id, ch := a.inbound.Subscribe()
	defer a.inbound.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(a.cfg.SSEHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case f, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", f)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleRecall exposes the hybrid retrieval engine's dispatcher (spec
// §4.3.1: recent / exact-id / hybrid search) as a local HTTP call, the
// surface an MCP tool boundary would call into for this workspace.
func (a *httpAPI) handleRecall(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	var agentID *int64
	if raw := c.Query("agent_id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			agentID = &n
		}
	}

	scope := retrieval.Scope{
		AgentID:     agentID,
		ProjectPath: c.Query("project_path"),
		Shared:      c.Query("shared") == "true",
	}

	results, err := a.engine.Recall(c.Request.Context(), query, limit, scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// handleAuthReset lets a supervising init script prompt for a new PIN and
// resume the connection (spec §4.6).
func (a *httpAPI) handleAuthReset(c *gin.Context) {
	var body struct {
		PIN string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.conn.ResetAuth(body.PIN)
	c.JSON(http.StatusOK, gin.H{"status": "auth reset, reconnecting with new pin"})
}

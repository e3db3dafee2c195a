package matrixhub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/version"
)

// Server wires the Hub's connection manager to its HTTP/WebSocket surface
// (spec §4.5 endpoints), following the teacher's gin bootstrap idiom.
type Server struct {
	hub    *Hub
	store  *store.Store
	cfg    config.HubConfig
	router *gin.Engine
	log    *slog.Logger
}

// NewServer constructs the gin router for the Matrix Hub.
func NewServer(st *store.Store, cfg config.HubConfig) *Server {
	s := &Server{
		hub:    NewHub(st, cfg),
		store:  st,
		cfg:    cfg,
		router: gin.Default(),
		log:    slog.With("component", "matrixhub.server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/register", s.handleRegister)
	s.router.GET("/matrices", s.handleMatrices)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/", s.handleWS)
}

// Run starts the HTTP server, serving wss:// if TLS cert+key are
// configured, else ws:// (spec §4.5: "TLS: optional").
func (s *Server) Run(addr string) error {
	if s.cfg.TLSCertPath != "" && s.cfg.TLSKeyPath != "" {
		return s.router.RunTLS(addr, s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
	}
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.hub.SweepStale(ctx); err != nil {
		s.log.Warn("stale sweep failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"version":         version.Full(),
		"connected_count": s.hub.ConnectedCount(),
		"uptime_seconds":  int(s.hub.Uptime().Seconds()),
		"online_ids":      s.hub.OnlineMatrices(),
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	matrixID := c.Query("matrix_id")
	displayName := c.Query("display_name")
	pin := c.Query("pin")

	if matrixID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "matrix_id is required"})
		return
	}
	if !s.cfg.IsPINDisabled() && pin != s.cfg.PIN {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid pin"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.UpsertMatrixRegistry(ctx, matrixID, displayName, store.MatrixOffline, nil); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	token, err := ReissueAndPurge(ctx, s.store, s.cfg.Secret, matrixID, s.cfg.TokenExpiry, s.cfg.ReconnectGrace)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "matrix_id": matrixID})
}

func (s *Server) handleMatrices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	all, err := s.store.ListMatrixRegistry(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected": s.hub.OnlineMatrices(),
		"all":       all,
	})
}

func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	displayName := c.Query("display_name")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	matrixID, err := VerifyToken(ctx, s.store, s.cfg.Secret, token)
	cancel()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	s.hub.HandleWS(c.Writer, c.Request, matrixID, displayName)
}


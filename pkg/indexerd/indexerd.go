// Package indexerd wires the vector adapter into a standalone daemon:
// it keeps the embedding index in sync with the Store's learnings table
// (spec §4.2, §4.3) and exposes a small HTTP surface for health and a
// manual reindex trigger.
package indexerd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/vectoradapter"
)

// LearningsCollection is the vector-adapter collection holding learning
// embeddings, matching pkg/retrieval.LearningsCollection.
const LearningsCollection = "learnings"

// Daemon owns the vector adapter and keeps it current with the Store.
type Daemon struct {
	store   *store.Store
	adapter *vectoradapter.Adapter
	cfg     config.IndexerConfig
	log     *slog.Logger
	router  *gin.Engine
}

// New constructs a Daemon. embedder is selected by the caller from
// cfg.Provider ("stub" vs a real HTTP-backed provider).
func New(st *store.Store, adapter *vectoradapter.Adapter, cfg config.IndexerConfig) *Daemon {
	d := &Daemon{store: st, adapter: adapter, cfg: cfg, log: slog.With("component", "indexerd"), router: gin.Default()}
	d.routes()
	st.RegisterLearningChangeHook(d.onLearningChanged)
	return d
}

func (d *Daemon) routes() {
	d.router.GET("/health", d.handleHealth)
	d.router.POST("/reindex", d.handleReindex)
}

// Run starts the HTTP server, blocking until it exits.
func (d *Daemon) Run(addr string) error {
	return d.router.Run(addr)
}

func (d *Daemon) text(l *store.Learning) string {
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", l.Title, l.Description, l.WhatHappened, l.Lesson, l.Prevention)
}

func (d *Daemon) metadata(l *store.Learning) map[string]string {
	return map[string]string{
		"category":     l.Category,
		"visibility":   string(l.Visibility),
		"project_path": l.ProjectPath,
	}
}

// onLearningChanged is the RegisterLearningChangeHook callback: a
// created/validated learning is re-embedded on the spot rather than
// waiting for the next full reindex.
func (d *Daemon) onLearningChanged(learningID int64) {
	ctx := context.Background()
	l, err := d.store.GetLearningByID(ctx, learningID)
	if err != nil {
		d.log.Warn("reindex hook: fetch learning failed", "learning_id", learningID, "error", err)
		return
	}
	d.adapter.Upsert(LearningsCollection, fmt.Sprintf("%d", l.ID), d.text(l), d.metadata(l))
}

// ReindexAll re-embeds every learning row, for use on startup or via the
// manual /reindex endpoint (spec §4.2: the index is a derived artifact
// that can always be rebuilt from the base table).
func (d *Daemon) ReindexAll(ctx context.Context) (int, error) {
	d.adapter.ResetCollection(LearningsCollection)
	learnings, err := d.store.ListLearnings(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range learnings {
		d.adapter.Upsert(LearningsCollection, fmt.Sprintf("%d", l.ID), d.text(l), d.metadata(l))
	}
	return len(learnings), nil
}

func (d *Daemon) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if err := d.adapter.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "provider": d.cfg.Provider, "model": d.cfg.Model})
}

func (d *Daemon) handleReindex(c *gin.Context) {
	n, err := d.ReindexAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reindexed": n})
}

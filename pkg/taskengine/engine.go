// Package taskengine schedules the periodic sweeps that keep the Task &
// Mission state machine self-healing (spec §4.4): retry backoff sweeps,
// crash-recovery of stuck tasks, and a dependency-unblock safety net.
// The state machine itself lives in the store package; this package only
// decides when to run it.
package taskengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

// Engine owns a cron scheduler wired to the store's mission primitives.
type Engine struct {
	store *store.Store
	cfg   config.TaskEngineConfig
	log   *slog.Logger
	cron  *cron.Cron
}

// New constructs an Engine; call Start to begin sweeping.
func New(st *store.Store, cfg config.TaskEngineConfig) *Engine {
	return &Engine{
		store: st,
		cfg:   cfg,
		log:   slog.With("component", "taskengine"),
		cron:  cron.New(cron.WithSeconds()),
	}
}

// Start registers every sweeper at its configured cadence and starts the
// scheduler in the background. Returns an error only if a schedule spec
// fails to parse, which would indicate a configuration bug.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.cron.AddFunc(everySpec(e.cfg.SweepInterval), func() { e.sweepRetries(ctx) }); err != nil {
		return err
	}
	if _, err := e.cron.AddFunc(everySpec(e.cfg.SweepInterval), func() { e.sweepStuckTasks(ctx) }); err != nil {
		return err
	}
	if _, err := e.cron.AddFunc(everySpec(e.cfg.SweepInterval*2), func() { e.sweepUnblockSafetyNet(ctx) }); err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
}

// everySpec converts a duration into a robfig/cron "@every" schedule spec.
func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 5 * time.Second
	}
	return "@every " + d.String()
}

// sweepRetries finds agent tasks past their next_retry_at and requeues
// them, or terminates them once max_retries is exhausted (spec §4.4:
// "retries ≤ max_retries else terminal failed").
func (e *Engine) sweepRetries(ctx context.Context) {
	due, err := e.store.DueRetries(ctx, 100)
	if err != nil {
		e.log.Error("due retries query failed", "error", err)
		return
	}
	for _, t := range due {
		if err := e.store.RequeueRetry(ctx, t.ID); err != nil {
			e.log.Warn("requeue retry failed", "task_id", t.ID, "error", err)
		}
	}
	if len(due) > 0 {
		e.log.Info("retry sweep requeued tasks", "count", len(due))
	}
}

// sweepStuckTasks recovers agent tasks whose execution has exceeded its
// timeout without completing — the crash-recovery path of spec §4.4.
func (e *Engine) sweepStuckTasks(ctx context.Context) {
	stuck, err := e.store.StuckTasks(ctx)
	if err != nil {
		e.log.Error("stuck task scan failed", "error", err)
		return
	}
	for _, t := range stuck {
		if t.ExecutionID == nil {
			continue
		}
		if err := e.store.ReleaseTask(ctx, t.ID, *t.ExecutionID); err != nil {
			e.log.Warn("release stuck task failed", "task_id", t.ID, "error", err)
		}
	}
	if len(stuck) > 0 {
		e.log.Warn("crash recovery reclaimed stuck tasks", "count", len(stuck))
	}
}

// sweepUnblockSafetyNet re-checks blocked tasks' dependencies. CompleteTask
// already unblocks dependents inline on the happy path; this sweep exists
// only to catch tasks left blocked by a crash between a dependency's
// completion and the inline unblock call.
func (e *Engine) sweepUnblockSafetyNet(ctx context.Context) {
	blocked, err := e.store.BlockedAgentTasks(ctx)
	if err != nil {
		e.log.Error("blocked task scan failed", "error", err)
		return
	}
	for _, t := range blocked {
		ok, err := e.store.DependenciesSatisfied(ctx, t.DependsOn)
		if err != nil {
			e.log.Warn("dependency check failed", "task_id", t.ID, "error", err)
			continue
		}
		if ok {
			if err := e.store.UnblockTask(ctx, t.ID); err != nil {
				e.log.Warn("unblock failed", "task_id", t.ID, "error", err)
			}
		}
	}
}

package taskengine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEverySpecFormatsDuration(t *testing.T) {
	require.Equal(t, "@every 30s", everySpec(30*time.Second))
}

func TestEverySpecFallsBackOnNonPositive(t *testing.T) {
	require.Equal(t, "@every 5s", everySpec(0))
	require.Equal(t, "@every 5s", everySpec(-time.Second))
}

func TestSweepRetriesRequeuesDueTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Built directly in "retrying" with a next_retry_at already in the
	// past, rather than going through FailTask: FailTask's backoff always
	// adds up to 2s of jitter, which a short sleep can't reliably outlast.
	past := time.Now().Add(-time.Minute)
	task, err := st.CreateAgentTask(ctx, store.AgentTask{
		Prompt: "p", TimeoutMS: 1000, MaxRetries: 3,
		Status: store.TaskRetrying, NextRetryAt: &past,
	})
	require.NoError(t, err)

	e := New(st, config.TaskEngineConfig{BaseBackoff: time.Millisecond, MaxBackoff: time.Second})
	e.sweepRetries(ctx)

	got, err := st.GetAgentTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskQueued, got.Status)
}

func TestSweepStuckTasksReleasesTimedOutClaimWithoutTouchingRetryCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateAgentTask(ctx, store.AgentTask{Prompt: "p", TimeoutMS: 1, MaxRetries: 3})
	require.NoError(t, err)
	_, err = st.ClaimTask(ctx, task.ID, 1, "exec-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	e := New(st, config.TaskEngineConfig{BaseBackoff: time.Millisecond, MaxBackoff: time.Second})
	e.sweepStuckTasks(ctx)

	got, err := st.GetAgentTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskQueued, got.Status, "a crash recovery must preserve at-least-once semantics via release, not retry accounting")
	require.Equal(t, 0, got.RetryCount)
	require.Nil(t, got.ExecutionID)
}

func TestSweepUnblockSafetyNetUnblocksSatisfiedDependency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	dep, err := st.CreateAgentTask(ctx, store.AgentTask{Prompt: "dep", TimeoutMS: 1000, MaxRetries: 1})
	require.NoError(t, err)
	_, err = st.ClaimTask(ctx, dep.ID, 1, "exec-dep")
	require.NoError(t, err)
	require.NoError(t, st.CompleteTask(ctx, dep.ID, "exec-dep"))

	blocked, err := st.CreateAgentTask(ctx, store.AgentTask{
		Prompt: "needs dep", TimeoutMS: 1000, DependsOn: []string{dep.ID}, Status: store.TaskBlocked,
	})
	require.NoError(t, err)

	e := New(st, config.TaskEngineConfig{})
	e.sweepUnblockSafetyNet(ctx)

	got, err := st.GetAgentTask(ctx, blocked.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskQueued, got.Status)
}

func TestStartRunsSweepsOnSchedule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	task, err := st.CreateAgentTask(ctx, store.AgentTask{
		Prompt: "p", TimeoutMS: 1000, MaxRetries: 3,
		Status: store.TaskRetrying, NextRetryAt: &past,
	})
	require.NoError(t, err)

	e := New(st, config.TaskEngineConfig{SweepInterval: time.Second, BaseBackoff: time.Millisecond, MaxBackoff: time.Second})
	require.NoError(t, e.Start(ctx))
	defer e.Stop()

	require.Eventually(t, func() bool {
		got, err := st.GetAgentTask(ctx, task.ID)
		return err == nil && got.Status == store.TaskQueued
	}, 3*time.Second, 50*time.Millisecond, "the scheduled retry sweep should requeue the due task")
}

func TestStopWaitsForScheduleToHalt(t *testing.T) {
	st := newTestStore(t)
	e := New(st, config.TaskEngineConfig{SweepInterval: time.Hour})
	require.NoError(t, e.Start(context.Background()))
	e.Stop()
}

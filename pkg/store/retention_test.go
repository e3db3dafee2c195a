package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func backdate(t *testing.T, st *Store, table, id string, when time.Time) {
	t.Helper()
	_, err := st.db.Exec(`UPDATE `+table+` SET created_at = ? WHERE id = ?`, formatTime(when), id)
	require.NoError(t, err)
}

func TestPurgeSessionsOlderThanDeletesOnlyOldRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old, err := st.CreateSession(ctx, Session{Summary: "old"})
	require.NoError(t, err)
	backdate(t, st, "sessions", old.ID, time.Now().Add(-48*time.Hour))

	fresh, err := st.CreateSession(ctx, Session{Summary: "fresh"})
	require.NoError(t, err)

	n, err := st.PurgeSessionsOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = st.GetSession(ctx, old.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestPurgeDeliveredMessagesDeletesOnlyTerminalOldRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m, err := st.EnqueueMessage(ctx, "matrix-1", nil, "hi", MessageDirect, 3)
	require.NoError(t, err)
	require.NoError(t, st.TransitionMessageSending(ctx, m.ID))
	require.NoError(t, st.TransitionMessageSent(ctx, m.ID))
	require.NoError(t, st.TransitionMessageDelivered(ctx, m.ID))
	backdate(t, st, "matrix_messages", m.ID, time.Now().Add(-48*time.Hour))

	stillPending, err := st.EnqueueMessage(ctx, "matrix-1", nil, "still pending", MessageDirect, 3)
	require.NoError(t, err)
	backdate(t, st, "matrix_messages", stillPending.ID, time.Now().Add(-48*time.Hour))

	n, err := st.PurgeDeliveredMessages(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = st.GetMessage(ctx, m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetMessage(ctx, stillPending.ID)
	require.NoError(t, err, "pending messages must survive the delivered-only purge")
}

func TestPurgeTerminalTasksDeletesOnlyTerminalOldRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateAgentTask(ctx, AgentTask{Prompt: "p", TimeoutMS: 1000, MaxRetries: 1})
	require.NoError(t, err)
	claim, err := st.ClaimTask(ctx, task.ID, 1, "exec-1")
	require.NoError(t, err)
	require.True(t, claim.Claimed)
	require.NoError(t, st.CompleteTask(ctx, task.ID, "exec-1"))

	backdateAgentTask(t, st, task.ID, time.Now().Add(-48*time.Hour))

	n, err := st.PurgeTerminalTasks(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = st.GetAgentTask(ctx, task.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func backdateAgentTask(t *testing.T, st *Store, id string, when time.Time) {
	t.Helper()
	_, err := st.db.Exec(`UPDATE agent_tasks SET created_at = ? WHERE id = ?`, formatTime(when), id)
	require.NoError(t, err)
}

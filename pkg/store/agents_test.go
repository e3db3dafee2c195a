package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAgentDefaultsToPendingStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.CreateAgent(ctx, "agent-one")
	require.NoError(t, err)
	require.Equal(t, "agent-one", a.Name)
	require.Equal(t, "pending", a.Status)
	require.Zero(t, a.TotalSessions)
	require.Zero(t, a.TotalTasksCompleted)
}

func TestGetAgentNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetAgent(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAgentStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.CreateAgent(ctx, "agent-one")
	require.NoError(t, err)

	require.NoError(t, st.UpdateAgentStatus(ctx, a.ID, "active"))

	got, err := st.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "active", got.Status)
}

func TestUpdateAgentStatusNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateAgentStatus(context.Background(), 9999, "active")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementAgentCountersAccumulates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.CreateAgent(ctx, "agent-one")
	require.NoError(t, err)

	require.NoError(t, st.IncrementAgentCounters(ctx, a.ID, 2, 5))
	require.NoError(t, st.IncrementAgentCounters(ctx, a.ID, 1, 3))

	got, err := st.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.TotalSessions)
	require.Equal(t, 8, got.TotalTasksCompleted)
}

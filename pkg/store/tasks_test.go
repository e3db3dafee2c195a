package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateUnifiedTaskSystemDomainDefaultsToPendingSync(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainSystem, Title: "t"})
	require.NoError(t, err)
	require.Equal(t, SyncPending, task.GithubSyncStatus)
}

func TestCreateUnifiedTaskWithIssueLinkedIsLocalOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n := 42
	task, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainSystem, Title: "t", GithubIssueNumber: &n})
	require.NoError(t, err)
	require.Equal(t, SyncLocalOnly, task.GithubSyncStatus)
}

func TestCreateUnifiedTaskNonSystemDomainIsLocalOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainProject, Title: "t"})
	require.NoError(t, err)
	require.Equal(t, SyncLocalOnly, task.GithubSyncStatus)
}

func TestGetUnifiedTaskNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetUnifiedTask(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateGithubSyncSetsIssueLinkage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainSystem, Title: "t"})
	require.NoError(t, err)

	n := 7
	url := "https://github.com/org/repo/issues/7"
	repo := "org/repo"
	require.NoError(t, st.UpdateGithubSync(ctx, task.ID, SyncLocalOnly, &n, &url, &repo))

	got, err := st.GetUnifiedTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, SyncLocalOnly, got.GithubSyncStatus)
	require.Equal(t, 7, *got.GithubIssueNumber)
	require.Equal(t, url, *got.GithubIssueURL)
	require.Equal(t, repo, *got.GithubRepo)
}

func TestUpdateGithubSyncNotFound(t *testing.T) {
	st := newTestStore(t)
	require.ErrorIs(t, st.UpdateGithubSync(context.Background(), "missing", SyncLocalOnly, nil, nil, nil), ErrNotFound)
}

func TestMarkUnifiedTaskDone(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainProject, Title: "t"})
	require.NoError(t, err)

	require.NoError(t, st.MarkUnifiedTaskDone(ctx, task.ID))

	got, err := st.GetUnifiedTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "done", got.Status)
}

func TestMarkUnifiedTaskDoneNotFound(t *testing.T) {
	st := newTestStore(t)
	require.ErrorIs(t, st.MarkUnifiedTaskDone(context.Background(), "missing"), ErrNotFound)
}

func TestPendingGithubSyncTasksListsOnlyPendingSystemDomain(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pending, err := st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainSystem, Title: "needs sync"})
	require.NoError(t, err)
	_, err = st.CreateUnifiedTask(ctx, UnifiedTask{Domain: DomainProject, Title: "local only"})
	require.NoError(t, err)

	out, err := st.PendingGithubSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, pending.ID, out[0].ID)
}

package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jarkius/agent-orchestra/pkg/boundary"
	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/vectoradapter"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, st *store.Store) *Engine {
	t.Helper()
	vec := vectoradapter.New(boundary.NewStubEmbedder(), 8, 10*time.Millisecond)
	t.Cleanup(vec.Close)
	return NewEngine(st, vec, Weights{Vector: 0.36, Keyword: 0.64}, time.Minute, 10, 0.7, 4)
}

func TestRecallRecentReturnsMostRecentSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	_, err := st.CreateSession(ctx, store.Session{Summary: "first"})
	require.NoError(t, err)
	second, err := st.CreateSession(ctx, store.Session{Summary: "second"})
	require.NoError(t, err)

	results, err := e.Recall(ctx, "", 5, Scope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, second.ID, results[0].ID)
}

func TestRecallExactSessionViaDirectLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	sess, err := st.CreateSession(ctx, store.Session{Summary: "s1", Visibility: store.VisibilityPublic})
	require.NoError(t, err)

	results, err := e.recallExactSession(ctx, sess.ID, Scope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, sess.ID, results[0].ID)
}

func TestRecallExactSessionDeniedByACL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	owner := int64(1)
	sess, err := st.CreateSession(ctx, store.Session{Summary: "s1", AgentID: &owner, Visibility: store.VisibilityPrivate})
	require.NoError(t, err)

	other := int64(2)
	results, err := e.recallExactSession(ctx, sess.ID, Scope{AgentID: &other})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRecallExactLearningByHashID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	l, err := st.SaveLearning(ctx, store.Learning{Category: "bug", Title: "t", Description: "d"})
	require.NoError(t, err)

	results, err := e.Recall(ctx, "#"+itoa(l.ID), 5, Scope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, l.ID, results[0].LearningID)
	require.Equal(t, "bug", results[0].Category)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestHybridSearchFindsKeywordMatchAndCachesResult(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	_, err := st.SaveLearning(ctx, store.Learning{Category: "bug", Title: "retry jitter", Description: "prevents thundering herd"})
	require.NoError(t, err)

	first, err := e.Recall(ctx, "retry jitter", 5, Scope{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// second call should hit the result cache and return the identical slice.
	second, err := e.Recall(ctx, "retry jitter", 5, Scope{})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHybridSearchRespectsProjectPathScope(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	_, err := st.SaveLearning(ctx, store.Learning{
		Category: "bug", Title: "retry jitter", Description: "prevents herd", ProjectPath: "/workspace/other",
	})
	require.NoError(t, err)

	results, err := e.Recall(ctx, "retry jitter", 5, Scope{ProjectPath: "/workspace/mine"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestOnLearningChangedClearsCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, st)

	_, err := st.SaveLearning(ctx, store.Learning{Category: "bug", Title: "retry jitter", Description: "d"})
	require.NoError(t, err)

	_, err = e.Recall(ctx, "retry jitter", 5, Scope{})
	require.NoError(t, err)

	key := CacheKey{Query: "retry jitter", Limit: 5}
	_, ok := e.cache.Get(key)
	require.True(t, ok)

	e.OnLearningChanged(1)
	_, ok = e.cache.Get(key)
	require.False(t, ok)
}

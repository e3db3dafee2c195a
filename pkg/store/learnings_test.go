package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveLearningRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	saved, err := st.SaveLearning(ctx, Learning{
		Category:    "frontend",
		Title:       "typography guidelines",
		Description: "use the design system's type scale",
		Lesson:      "never hardcode font sizes",
		ProjectPath: "/workspace/app",
	})
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	require.Equal(t, ConfidenceLow, saved.Confidence)
	require.Equal(t, VisibilityPrivate, saved.Visibility)

	// saveLearning -> searchLearnings(title) -> getLearningById recovers the
	// original row (spec §8).
	found, err := st.SearchLearningsByTitle(ctx, "typography guidelines")
	require.NoError(t, err)
	require.Len(t, found, 1)

	fetched, err := st.GetLearningByID(ctx, found[0].ID)
	require.NoError(t, err)
	require.Equal(t, saved.ID, fetched.ID)
	require.Equal(t, "typography guidelines", fetched.Title)
}

func TestSaveLearningNotFoundOnMissingID(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetLearningByID(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateLearningAdvancesMaturity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	l, err := st.SaveLearning(ctx, Learning{Category: "backend", Title: "retry jitter", Description: "d"})
	require.NoError(t, err)
	require.Equal(t, 0, l.TimesValidated)

	for i := 0; i < 10; i++ {
		l, err = st.ValidateLearning(ctx, l.ID)
		require.NoError(t, err)
	}

	require.Equal(t, 10, l.TimesValidated)
	require.Equal(t, StageOf(10), l.MaturityStage)
	require.Equal(t, ConfidenceOf(10), l.Confidence)
	require.Equal(t, ConfidenceProven, l.Confidence)
	require.Equal(t, StageWisdom, l.MaturityStage)
}

func TestValidateLearningNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.ValidateLearning(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLearningChangeHookFiresOnSaveAndValidate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var fired []int64
	st.RegisterLearningChangeHook(func(id int64) { fired = append(fired, id) })

	l, err := st.SaveLearning(ctx, Learning{Category: "c", Title: "t", Description: "d"})
	require.NoError(t, err)
	require.Equal(t, []int64{l.ID}, fired)

	_, err = st.ValidateLearning(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{l.ID, l.ID}, fired)
}

func TestListLearningsReturnsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.SaveLearning(ctx, Learning{Category: "c", Title: "first", Description: "d"})
	require.NoError(t, err)
	second, err := st.SaveLearning(ctx, Learning{Category: "c", Title: "second", Description: "d"})
	require.NoError(t, err)

	all, err := st.ListLearnings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, first.ID, all[1].ID)
}

func TestSearchLog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	agentID := int64(7)
	err := st.LogSearch(ctx, SearchLogEntry{
		Query: "typography guidelines", QueryType: "hybrid",
		ResultCount: 3, LatencyMS: 42, Source: "hybrid", AgentID: &agentID,
	})
	require.NoError(t, err)

	recent, err := st.RecentSearchLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "typography guidelines", recent[0].Query)
	require.Equal(t, "hybrid", recent[0].QueryType)
	require.NotNil(t, recent[0].AgentID)
	require.Equal(t, int64(7), *recent[0].AgentID)
}

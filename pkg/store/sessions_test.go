package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSessionDefaultsToPrivateVisibility(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, Session{Summary: "did stuff"})
	require.NoError(t, err)
	require.Equal(t, VisibilityPrivate, sess.Visibility)
	require.NotEmpty(t, sess.ID)
}

func TestCreateSessionRejectsUnknownPreviousSessionID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	missing := "not-a-real-id"
	_, err := st.CreateSession(ctx, Session{Summary: "s", PreviousSessionID: &missing})
	require.ErrorIs(t, err, ErrConstraintViolated)
}

func TestCreateSessionAcceptsValidPreviousSessionID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.CreateSession(ctx, Session{Summary: "first"})
	require.NoError(t, err)

	second, err := st.CreateSession(ctx, Session{Summary: "second", PreviousSessionID: &first.ID})
	require.NoError(t, err)
	require.Equal(t, first.ID, *second.PreviousSessionID)
}

func TestCreateSessionRoundTripsStructuredContext(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, Session{
		Summary: "s",
		Context: SessionContext{
			Wins:         []string{"shipped the fix"},
			Issues:       []string{"flaky test"},
			FilesChanged: []string{"a.go", "b.go"},
		},
		Tags: []string{"backend", "bugfix"},
	})
	require.NoError(t, err)

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"shipped the fix"}, got.Context.Wins)
	require.Equal(t, []string{"flaky test"}, got.Context.Issues)
	require.Equal(t, []string{"a.go", "b.go"}, got.Context.FilesChanged)
	require.Equal(t, []string{"backend", "bugfix"}, got.Tags)
}

func TestGetSessionNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMostRecentSessionReturnsNewestInScope(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateSession(ctx, Session{Summary: "first", ProjectPath: "/proj"})
	require.NoError(t, err)
	second, err := st.CreateSession(ctx, Session{Summary: "second", ProjectPath: "/proj"})
	require.NoError(t, err)
	_, err = st.CreateSession(ctx, Session{Summary: "other project", ProjectPath: "/other"})
	require.NoError(t, err)

	got, err := st.MostRecentSession(ctx, nil, "/proj")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
}

func TestMostRecentSessionNotFoundWhenScopeEmpty(t *testing.T) {
	st := newTestStore(t)
	_, err := st.MostRecentSession(context.Background(), nil, "/nothing-here")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSessionSummary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, Session{Summary: "old"})
	require.NoError(t, err)

	require.NoError(t, st.UpdateSessionSummary(ctx, sess.ID, "new", []string{"x"}))

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.Summary)
	require.Equal(t, []string{"x"}, got.Tags)
}

func TestUpdateSessionSummaryNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateSessionSummary(context.Background(), "missing", "x", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

package boundary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubEmbedderIsDeterministic(t *testing.T) {
	e := NewStubEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "retry jitter prevents thundering herd")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "retry jitter prevents thundering herd")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestStubEmbedderDiffersForDifferentText(t *testing.T) {
	e := NewStubEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "beta")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestStubEmbedderFallsBackToDefaultDimensionsWhenUnset(t *testing.T) {
	e := &StubEmbedder{}
	v, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, v, 64)
}

func TestHTTPEmbedderEmbedIsUnimplementedWiring(t *testing.T) {
	e := NewHTTPEmbedder("https://example.invalid/embed", "key")
	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), e.Endpoint)
}

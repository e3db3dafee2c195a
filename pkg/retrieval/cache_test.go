package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResultCacheGetPutRoundTrip(t *testing.T) {
	c := NewResultCache(time.Minute, 10)
	key := CacheKey{Query: "typography", Limit: 5, AgentID: "1", Shared: true, ProjectPath: "/a"}

	_, ok := c.Get(key)
	require.False(t, ok)

	want := []ScoredResult{{ID: "learning_1", Score: 0.9}}
	c.Put(key, want)

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestResultCacheDistinguishesKeyFields(t *testing.T) {
	c := NewResultCache(time.Minute, 10)
	base := CacheKey{Query: "q", Limit: 5, AgentID: "1", Shared: false, ProjectPath: "/a"}
	other := base
	other.ProjectPath = "/b"

	c.Put(base, []ScoredResult{{ID: "x"}})
	_, ok := c.Get(other)
	require.False(t, ok, "distinct project_path must not share a cache entry")
}

func TestResultCacheExpiresAfterTTL(t *testing.T) {
	c := NewResultCache(time.Millisecond, 10)
	key := CacheKey{Query: "q", Limit: 5}
	c.Put(key, []ScoredResult{{ID: "x"}})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	require.False(t, ok)
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewResultCache(time.Minute, 2)
	k1 := CacheKey{Query: "one"}
	k2 := CacheKey{Query: "two"}
	k3 := CacheKey{Query: "three"}

	c.Put(k1, []ScoredResult{{ID: "1"}})
	c.Put(k2, []ScoredResult{{ID: "2"}})
	// touch k1 so k2 becomes the least-recently-used entry
	_, _ = c.Get(k1)
	c.Put(k3, []ScoredResult{{ID: "3"}})

	_, ok := c.Get(k2)
	require.False(t, ok, "k2 should have been evicted")
	_, ok = c.Get(k1)
	require.True(t, ok)
	_, ok = c.Get(k3)
	require.True(t, ok)
}

func TestResultCacheClear(t *testing.T) {
	c := NewResultCache(time.Minute, 10)
	key := CacheKey{Query: "q"}
	c.Put(key, []ScoredResult{{ID: "x"}})

	c.Clear()
	_, ok := c.Get(key)
	require.False(t, ok)
}

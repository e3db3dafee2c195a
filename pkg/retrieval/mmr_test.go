package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRerankMMRReturnsUnchangedWhenUnderK(t *testing.T) {
	candidates := []ScoredResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}
	out := RerankMMR(candidates, 5, 0.7)
	require.Equal(t, candidates, out)
}

func TestRerankMMRKeepsTopCandidateFirst(t *testing.T) {
	candidates := []ScoredResult{
		{ID: "top", Score: 0.95, VectorScore: 0.9, KeywordScore: 0.9},
		{ID: "near-dup", Score: 0.94, VectorScore: 0.9, KeywordScore: 0.89},
		{ID: "diverse", Score: 0.6, VectorScore: 0.1, KeywordScore: 0.8},
	}
	out := RerankMMR(candidates, 2, 0.7)
	require.Len(t, out, 2)
	require.Equal(t, "top", out[0].ID)
}

func TestRerankMMRPrefersDiversityOverNearDuplicate(t *testing.T) {
	// "near-dup" scores almost as high as "top" but sits right beside it in
	// (vector, keyword) space; "diverse" scores lower but is far away. With
	// lambda=0.7 diversity should still win the second slot over the
	// near-identical high scorer.
	candidates := []ScoredResult{
		{ID: "top", Score: 1.0, VectorScore: 1.0, KeywordScore: 1.0},
		{ID: "near-dup", Score: 0.8, VectorScore: 1.0, KeywordScore: 1.0},
		{ID: "diverse", Score: 0.6, VectorScore: 0.0, KeywordScore: 0.0},
	}
	out := RerankMMR(candidates, 2, 0.7)
	require.Len(t, out, 2)
	require.Equal(t, "top", out[0].ID)
	require.Equal(t, "diverse", out[1].ID)
}

func TestMMRSimilarityIsSymmetricAndBounded(t *testing.T) {
	a := ScoredResult{VectorScore: 0.2, KeywordScore: 0.8}
	b := ScoredResult{VectorScore: 0.9, KeywordScore: 0.1}
	require.InDelta(t, mmrSimilarity(a, b), mmrSimilarity(b, a), 1e-9)
	require.GreaterOrEqual(t, mmrSimilarity(a, b), 0.0)
	require.LessOrEqual(t, mmrSimilarity(a, b), 1.0)

	same := ScoredResult{VectorScore: 0.5, KeywordScore: 0.5}
	require.InDelta(t, 1.0, mmrSimilarity(same, same), 1e-9)
}

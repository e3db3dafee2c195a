package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandAlwaysIncludesOriginalAsFirstVariant(t *testing.T) {
	variants := Expand("fix the bug", 3)
	require.Equal(t, "fix the bug", variants[0].Query)
	require.Equal(t, 1.0, variants[0].Weight)
}

func TestExpandSynonymSubstitution(t *testing.T) {
	variants := Expand("fix the bug", 3)
	require.Greater(t, len(variants), 1)
	for _, v := range variants[1:] {
		require.Equal(t, 0.8, v.Weight)
	}
}

func TestExpandRespectsMaxVariants(t *testing.T) {
	variants := Expand("fix the bug crash slow delete connect", 2)
	require.LessOrEqual(t, len(variants), 3) // original + maxVariants
}

func TestExpandDedupsCaseInsensitively(t *testing.T) {
	variants := Expand("bug", 5)
	seen := map[string]bool{}
	for _, v := range variants {
		key := v.Query
		require.False(t, seen[key], "duplicate variant: %s", key)
		seen[key] = true
	}
}

func TestExpandPhrasalRewriteStripsLeadingQuestionForm(t *testing.T) {
	variants := Expand("why is this crashing", 3)
	found := false
	for _, v := range variants[1:] {
		if v.Query == "this crashing" {
			found = true
		}
	}
	require.True(t, found, "expected a phrasal-rewritten variant, got %+v", variants)
}

func TestMergeExpandedTakesMaxScoreAndBoostsMultiHit(t *testing.T) {
	merged := MergeExpanded([]map[string]float64{
		{"a": 0.5, "b": 0.9},
		{"a": 0.8},
	})
	require.InDelta(t, 0.8*1.1, merged["a"], 1e-9, "hit by 2 variants: max score boosted by 1.1")
	require.InDelta(t, 0.9, merged["b"], 1e-9, "hit by 1 variant: no boost")
}

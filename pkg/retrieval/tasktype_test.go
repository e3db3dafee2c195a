package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectTaskTypeMatchesDebugKeyword(t *testing.T) {
	require.Equal(t, TaskDebug, DetectTaskType("why is this crashing in prod"))
}

func TestDetectTaskTypeFallsBackToGeneral(t *testing.T) {
	require.Equal(t, TaskGeneral, DetectTaskType("the quarterly roadmap"))
}

func TestDetectTaskTypeChecksGroupsInDeclarationOrder(t *testing.T) {
	// "fix" (debug) appears earlier in the keyword table than "refactor",
	// so a query containing both should classify as debug.
	require.Equal(t, TaskDebug, DetectTaskType("refactor this to fix the bug"))
}

func TestCategoryBoostsAndBoostLookup(t *testing.T) {
	boosts := CategoryBoosts(TaskDebug)
	require.Equal(t, 2.0, Boost(boosts, "bug"))
	require.Equal(t, 1.0, Boost(boosts, "unrelated-category"))
}

func TestCategoryBoostsGeneralIsEmpty(t *testing.T) {
	require.Empty(t, CategoryBoosts(TaskGeneral))
}

package retrieval

import "strings"

// TaskType is the classified intent behind a query (spec §4.3.2).
type TaskType string

const (
	TaskDebug     TaskType = "debug"
	TaskImplement TaskType = "implement"
	TaskRefactor  TaskType = "refactor"
	TaskDesign    TaskType = "design"
	TaskExplain   TaskType = "explain"
	TaskGeneral   TaskType = "general"
)

// taskTypeKeywords maps verb/keyword groups to a task type, checked in
// declaration order so more specific phrasings win (spec §4.3.2: "based on
// verb/keyword rules").
var taskTypeKeywords = []struct {
	taskType TaskType
	words    []string
}{
	{TaskDebug, []string{"debug", "fix", "bug", "error", "crash", "broken", "failing", "traceback"}},
	{TaskRefactor, []string{"refactor", "clean up", "restructure", "simplify", "rename"}},
	{TaskDesign, []string{"design", "architecture", "plan", "approach", "propose"}},
	{TaskExplain, []string{"explain", "what is", "why does", "how does", "understand"}},
	{TaskImplement, []string{"implement", "add", "build", "create", "write"}},
}

// DetectTaskType classifies a query into a task type for category
// boosting (spec §4.3.2).
func DetectTaskType(query string) TaskType {
	q := strings.ToLower(query)
	for _, group := range taskTypeKeywords {
		for _, w := range group.words {
			if strings.Contains(q, w) {
				return group.taskType
			}
		}
	}
	return TaskGeneral
}

// CategoryBoosts returns boost[category] ∈ [1.0, 2.0], default 1.0, for the
// given task type (spec §4.3.2). The category names match the Learning
// categories used across the corpus; an unboosted category falls through
// to 1.0 via the zero-value lookup in Boost.
func CategoryBoosts(t TaskType) map[string]float64 {
	switch t {
	case TaskDebug:
		return map[string]float64{"bug": 2.0, "debugging": 1.8, "error-handling": 1.6}
	case TaskImplement:
		return map[string]float64{"implementation": 1.8, "feature": 1.6, "api": 1.4}
	case TaskRefactor:
		return map[string]float64{"refactoring": 1.8, "code-quality": 1.6, "architecture": 1.4}
	case TaskDesign:
		return map[string]float64{"architecture": 1.8, "design": 1.8, "pattern": 1.5}
	case TaskExplain:
		return map[string]float64{"documentation": 1.6, "concept": 1.5}
	default:
		return map[string]float64{}
	}
}

// Boost looks up a category's multiplier, defaulting to 1.0 per spec §4.3.2.
func Boost(boosts map[string]float64, category string) float64 {
	if v, ok := boosts[category]; ok {
		return v
	}
	return 1.0
}

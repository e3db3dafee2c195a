// Package retrieval implements the hybrid vector+keyword recall engine
// (spec §4.3): query classification, task-type category boosting, optional
// query expansion, fusion, MMR diversity rerank, and access control.
package retrieval

import (
	"regexp"
	"strconv"
	"strings"
)

// QueryType is the result of classifying a raw user query (spec §4.3.1).
type QueryType string

const (
	QueryRecent       QueryType = "recent"
	QueryExactSession QueryType = "exact_session"
	QueryExactLearning QueryType = "exact_learning"
	QueryHybrid       QueryType = "hybrid"
)

var (
	sessionIDPattern  = regexp.MustCompile(`^session_(\d+)$`)
	learningIDPattern = regexp.MustCompile(`^#?(\d+)$`)
	learningTagPattern = regexp.MustCompile(`^learning_(\d+)$`)
)

// Classification is the outcome of Classify: the query's type, plus the
// extracted numeric id for exact fetches.
type Classification struct {
	Type QueryType
	ID   string
}

// Classify implements the dispatch table of spec §4.3.1.
func Classify(raw string) Classification {
	q := strings.TrimSpace(raw)
	if q == "" {
		return Classification{Type: QueryRecent}
	}
	if m := sessionIDPattern.FindStringSubmatch(q); m != nil {
		return Classification{Type: QueryExactSession, ID: "session_" + m[1]}
	}
	if m := learningTagPattern.FindStringSubmatch(q); m != nil {
		return Classification{Type: QueryExactLearning, ID: m[1]}
	}
	if m := learningIDPattern.FindStringSubmatch(q); m != nil {
		return Classification{Type: QueryExactLearning, ID: m[1]}
	}
	return Classification{Type: QueryHybrid}
}

// ParseLearningID extracts the numeric id from a Classification of type
// QueryExactLearning.
func ParseLearningID(c Classification) (int64, bool) {
	if c.Type != QueryExactLearning {
		return 0, false
	}
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// BypassesProjectFilter reports whether a classification's exact fetch
// bypasses project-path scoping while still enforcing owner/visibility ACL
// (spec §4.3.1: "to allow cross-project references").
func (c Classification) BypassesProjectFilter() bool {
	return c.Type == QueryExactSession || c.Type == QueryExactLearning
}

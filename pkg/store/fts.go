package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// FTSHit is one row of an FTS keyword search, in result order (best = 0
// implicit in slice position per spec §4.3.4).
type FTSHit struct {
	LearningID int64
	Rank       int
}

var ftsTermPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// buildPrefixQuery parenthesizes terms as prefix matches joined by OR,
// exactly as spec §4.3.4 specifies for the sparse leg: "(term1* OR term2*
// OR ...)". Never string-interpolates into the returned SQL — the MATCH
// argument is still passed as a bind parameter.
func buildPrefixQuery(q string) string {
	terms := ftsTermPattern.FindAllString(q, -1)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t + "*"
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// SearchLearningsFTS runs the sparse leg of hybrid fusion: a keyword match
// against the learnings_fts mirror, returning hits in rank order.
func (s *Store) SearchLearningsFTS(ctx context.Context, query string, limit int) ([]FTSHit, error) {
	match := buildPrefixQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT rowid FROM learnings_fts WHERE learnings_fts MATCH ? ORDER BY rank LIMIT ?`,
		match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	i := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		hits = append(hits, FTSHit{LearningID: id, Rank: i})
		i++
	}
	return hits, rows.Err()
}

// SearchLearningsByTitle supports the round-trip law of spec §8
// ("saveLearning → searchLearnings(title) → getLearningById"): an exact
// substring/prefix match over titles, independent of the FTS ranking path.
func (s *Store) SearchLearningsByTitle(ctx context.Context, title string) ([]*Learning, error) {
	rows, err := s.db.QueryContext(ctx, learningSelectSQL+` WHERE title LIKE ? ORDER BY created_at DESC`, "%"+title+"%")
	if err != nil {
		return nil, fmt.Errorf("search learnings by title: %w", err)
	}
	defer rows.Close()

	var out []*Learning
	for rows.Next() {
		l, err := scanLearningRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

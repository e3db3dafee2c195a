package store

import (
	"context"
	"database/sql"
)

// LogSearch records a telemetry entry for one hybrid search (spec §4.3.6).
// Failures are the caller's concern to log; this never blocks the search
// path itself on a slow disk — callers are expected to call it from a
// goroutine if latency matters.
func (s *Store) LogSearch(ctx context.Context, e SearchLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_log (query, query_type, result_count, latency_ms, source, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Query, e.QueryType, e.ResultCount, e.LatencyMS, e.Source, niOrNil(e.AgentID), formatTime(now()))
	return err
}

// RecentSearchLog returns the most recent N search log entries, newest
// first — the data source for a feedback-loop weight tuner (spec §4.3.6).
func (s *Store) RecentSearchLog(ctx context.Context, limit int) ([]SearchLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, query_type, result_count, latency_ms, source, agent_id, created_at
		FROM search_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchLogEntry
	for rows.Next() {
		var e SearchLogEntry
		var agentID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.Query, &e.QueryType, &e.ResultCount, &e.LatencyMS, &e.Source, &agentID, &createdAt); err != nil {
			return nil, err
		}
		e.AgentID = i64Ptr(agentID)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

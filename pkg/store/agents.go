package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateAgent inserts a new Agent row with an auto-assigned id.
func (s *Store) CreateAgent(ctx context.Context, name string) (*Agent, error) {
	now := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, status, created_at, updated_at) VALUES (?, 'pending', ?, ?)`,
		name, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return s.GetAgent(ctx, id)
}

// GetAgent fetches an Agent by id.
func (s *Store) GetAgent(ctx context.Context, id int64) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, total_sessions, total_tasks_completed, created_at, updated_at
		 FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// UpdateAgentStatus sets an Agent's current status.
func (s *Store) UpdateAgentStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return mustAffectOne(res, ErrNotFound)
}

// IncrementAgentCounters bumps the cumulative session/task-completion
// counters named in spec §3 ("Agent: ... cumulative counters").
func (s *Store) IncrementAgentCounters(ctx context.Context, id int64, sessions, tasksCompleted int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET total_sessions = total_sessions + ?, total_tasks_completed = total_tasks_completed + ?, updated_at = ?
		 WHERE id = ?`, sessions, tasksCompleted, formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("increment agent counters: %w", err)
	}
	return nil
}

func scanAgent(row *sql.Row) (*Agent, error) {
	var a Agent
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.Name, &a.Status, &a.TotalSessions, &a.TotalTasksCompleted, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// mustAffectOne turns a zero-rows-affected result into notFoundErr, used by
// every UPDATE that targets a single row by primary key.
func mustAffectOne(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

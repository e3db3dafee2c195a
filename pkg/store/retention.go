package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeSessionsOlderThan deletes sessions created before cutoff. Rows are
// "purged explicitly by operator actions" per spec §3's lifecycle
// summary — never invoked by a background sweep.
func (s *Store) PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeDeliveredMessages deletes matrix messages that reached a terminal
// delivered/failed state before cutoff.
func (s *Store) PurgeDeliveredMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM matrix_messages WHERE status IN ('delivered', 'failed') AND created_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge delivered messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeTerminalTasks deletes agent tasks in a terminal state created
// before cutoff.
func (s *Store) PurgeTerminalTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_tasks WHERE status IN ('completed', 'cancelled', 'failed') AND created_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge terminal tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

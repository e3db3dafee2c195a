package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateUnifiedTask inserts a new UnifiedTask. A system-domain task with no
// GitHub issue linked starts pending sync, per the invariant in spec §3:
// "a unified task with domain=system and no github_issue_number has
// github_sync_status = pending until externally synced".
func (s *Store) CreateUnifiedTask(ctx context.Context, t UnifiedTask) (*UnifiedTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.GithubSyncStatus == "" {
		if t.Domain == DomainSystem && t.GithubIssueNumber == nil {
			t.GithubSyncStatus = SyncPending
		} else {
			t.GithubSyncStatus = SyncLocalOnly
		}
	}
	n := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unified_tasks (
			id, domain, priority, status, title, description, session_id,
			github_issue_number, github_issue_url, github_repo, github_sync_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Domain), string(t.Priority), t.Status, t.Title, t.Description,
		nsOrNil(t.SessionID), niOrNilInt(t.GithubIssueNumber), nsOrNil(t.GithubIssueURL),
		nsOrNil(t.GithubRepo), string(t.GithubSyncStatus), formatTime(n), formatTime(n))
	if err != nil {
		return nil, fmt.Errorf("create unified task: %w", err)
	}
	return s.GetUnifiedTask(ctx, t.ID)
}

func niOrNilInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// GetUnifiedTask fetches a UnifiedTask by id.
func (s *Store) GetUnifiedTask(ctx context.Context, id string) (*UnifiedTask, error) {
	row := s.db.QueryRowContext(ctx, unifiedTaskSelectSQL+` WHERE id = ?`, id)
	return scanUnifiedTask(row)
}

// UpdateGithubSync flips a UnifiedTask's github linkage, used by the
// boundary GitHub sync adapter's sweeper (never invoked inline from a task
// transition — spec §4.4/SPEC_FULL §C).
func (s *Store) UpdateGithubSync(ctx context.Context, id string, status GithubSyncStatus, issueNumber *int, issueURL, repo *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE unified_tasks
		SET github_sync_status = ?, github_issue_number = ?, github_issue_url = ?, github_repo = ?, updated_at = ?
		WHERE id = ?`,
		string(status), niOrNilInt(issueNumber), nsOrNil(issueURL), nsOrNil(repo), formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update github sync: %w", err)
	}
	return mustAffectOne(res, ErrNotFound)
}

// MarkUnifiedTaskDone sets a unified task's status to done unconditionally.
// The rollup invariant of spec §3 ("a unified task becomes done
// automatically iff every agent task referencing it is in a terminal state
// and at least one reached completed") is checked by rollupUnifiedTask,
// which calls this once it holds.
func (s *Store) MarkUnifiedTaskDone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE unified_tasks SET status = 'done', updated_at = ? WHERE id = ?`,
		formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("mark unified task done: %w", err)
	}
	return mustAffectOne(res, ErrNotFound)
}

// PendingGithubSyncTasks lists system-domain unified tasks awaiting sync,
// polled by the GitHub sync sweeper.
func (s *Store) PendingGithubSyncTasks(ctx context.Context, limit int) ([]*UnifiedTask, error) {
	rows, err := s.db.QueryContext(ctx,
		unifiedTaskSelectSQL+` WHERE github_sync_status = 'pending' ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending github sync tasks: %w", err)
	}
	defer rows.Close()

	var out []*UnifiedTask
	for rows.Next() {
		t, err := scanUnifiedTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const unifiedTaskSelectSQL = `
	SELECT id, domain, priority, status, title, description, session_id,
	       github_issue_number, github_issue_url, github_repo, github_sync_status,
	       created_at, updated_at
	FROM unified_tasks`

type unifiedTaskScanner interface {
	Scan(dest ...any) error
}

func scanUnifiedTaskFields(row unifiedTaskScanner) (*UnifiedTask, error) {
	var t UnifiedTask
	var sessionID sql.NullString
	var issueNumber sql.NullInt64
	var issueURL, repo sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Domain, &t.Priority, &t.Status, &t.Title, &t.Description,
		&sessionID, &issueNumber, &issueURL, &repo, &t.GithubSyncStatus, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan unified task: %w", err)
	}
	t.SessionID = strPtr(sessionID)
	t.GithubIssueNumber = intPtr(issueNumber)
	t.GithubIssueURL = strPtr(issueURL)
	t.GithubRepo = strPtr(repo)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanUnifiedTask(row *sql.Row) (*UnifiedTask, error) {
	return scanUnifiedTaskFields(row)
}

func scanUnifiedTaskRows(rows *sql.Rows) (*UnifiedTask, error) {
	return scanUnifiedTaskFields(rows)
}

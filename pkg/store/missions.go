package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// jitter returns a random duration in [0, 2s), matching the retry jitter
// bound named in spec §4.4 and §4.6.
func jitter() time.Duration {
	return time.Duration(rand.Int64N(int64(2 * time.Second)))
}

// ClaimResult is the outcome of ClaimTask (spec §4.1 "claimTask(...) →
// {claimed, reason?}").
type ClaimResult struct {
	Claimed bool
	Reason  string // "not_found" | "wrong_agent" | "already_claimed" | "invalid_status", empty if Claimed
}

// CreateAgentTask inserts a new AgentTask in status "queued" (or "blocked"
// if it has unmet dependencies — checked by the caller via
// DependenciesSatisfied before calling this with the appropriate status).
func (s *Store) CreateAgentTask(ctx context.Context, t AgentTask) (*AgentTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskQueued
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 5
	}
	n := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_tasks (
			id, prompt, context, priority, status, retry_count, max_retries,
			timeout_ms, depends_on, assigned_to, execution_id, parent_mission_id,
			unified_task_id, session_id, next_retry_at, started_at, completed_at,
			last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		t.ID, t.Prompt, t.Context, string(t.Priority), string(t.Status), t.MaxRetries,
		t.TimeoutMS, marshalJSON(t.DependsOn), niOrNil(t.AssignedTo), nsOrNil(t.ExecutionID),
		nsOrNil(t.ParentMissionID), nsOrNil(t.UnifiedTaskID), nsOrNil(t.SessionID),
		ntOrNil(t.NextRetryAt), ntOrNil(t.StartedAt), ntOrNil(t.CompletedAt),
		formatTime(n), formatTime(n))
	if err != nil {
		return nil, fmt.Errorf("create agent task: %w", err)
	}
	return s.GetAgentTask(ctx, t.ID)
}

// GetAgentTask fetches an AgentTask by id.
func (s *Store) GetAgentTask(ctx context.Context, id string) (*AgentTask, error) {
	row := s.db.QueryRowContext(ctx, agentTaskSelectSQL+` WHERE id = ?`, id)
	return scanAgentTask(row)
}

// ClaimTask is the sole correctness-critical operation of the Task Engine
// (spec §4.1, §5): a single conditional UPDATE. If it affects zero rows,
// the existing row is read and the failure classified; if the existing
// execution_id already equals the caller's, the call is an idempotent
// success (spec §8: "repeating the winner's call is a no-op success").
func (s *Store) ClaimTask(ctx context.Context, taskID string, agentID int64, executionID string) (ClaimResult, error) {
	n := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks
		SET status = 'processing', execution_id = ?, assigned_to = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued' AND execution_id IS NULL AND (assigned_to IS NULL OR assigned_to = ?)`,
		executionID, agentID, formatTime(n), formatTime(n), taskID, agentID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim task: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim task: %w", err)
	}
	if changed > 0 {
		return ClaimResult{Claimed: true}, nil
	}

	existing, err := s.GetAgentTask(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return ClaimResult{Claimed: false, Reason: "not_found"}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	if existing.ExecutionID != nil && *existing.ExecutionID == executionID {
		return ClaimResult{Claimed: true}, nil
	}
	if existing.Status.IsTerminal() {
		return ClaimResult{Claimed: false, Reason: "invalid_status"}, nil
	}
	if existing.AssignedTo != nil && *existing.AssignedTo != agentID {
		return ClaimResult{Claimed: false, Reason: "wrong_agent"}, nil
	}
	if existing.ExecutionID != nil {
		return ClaimResult{Claimed: false, Reason: "already_claimed"}, nil
	}
	return ClaimResult{Claimed: false, Reason: "invalid_status"}, nil
}

// AtomicDequeueMission is the mission-scoped twin of ClaimTask, expressed
// as the literal BEGIN IMMEDIATE / COMMIT / ROLLBACK shape spec §4.1 names
// for multi-row sequences. It takes a dedicated connection so the BEGIN
// IMMEDIATE statement reaches SQLite directly rather than being absorbed
// by database/sql's own transaction wrapping.
func (s *Store) AtomicDequeueMission(ctx context.Context, missionID string, agentID int64, executionID string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var status string
	var execID sql.NullString
	err = conn.QueryRowContext(ctx, `SELECT status, execution_id FROM agent_tasks WHERE id = ?`, missionID).
		Scan(&status, &execID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read mission: %w", err)
	}
	if status != "queued" || execID.Valid {
		return ErrInvalidStatus
	}

	n := now()
	_, err = conn.ExecContext(ctx, `
		UPDATE agent_tasks SET status = 'running', execution_id = ?, assigned_to = ?, started_at = ?, updated_at = ?
		WHERE id = ?`, executionID, agentID, formatTime(n), formatTime(n), missionID)
	if err != nil {
		return fmt.Errorf("update mission: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ReleaseTask clears execution_id/started_at, returning the task to
// queued. Only the holder of executionID may do this (spec §4.4).
func (s *Store) ReleaseTask(ctx context.Context, taskID, executionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = 'queued', execution_id = NULL, started_at = NULL, updated_at = ?
		WHERE id = ? AND execution_id = ?`,
		formatTime(now()), taskID, executionID)
	if err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	return mustAffectOne(res, ErrWrongAgent)
}

// CompleteTask transitions a claimed task to completed and, if it
// references a UnifiedTask, rolls the parent up to done when every sibling
// has reached a terminal state with at least one completed (spec §3, §4.4).
func (s *Store) CompleteTask(ctx context.Context, taskID, executionID string) error {
	n := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = 'completed', completed_at = ?, updated_at = ?
		WHERE id = ? AND execution_id = ?`,
		formatTime(n), formatTime(n), taskID, executionID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if err := mustAffectOne(res, ErrWrongAgent); err != nil {
		return err
	}
	if err := s.rollupUnifiedTask(ctx, taskID); err != nil {
		s.log.Warn("unified task rollup failed", "task_id", taskID, "error", err)
	}
	if err := s.unblockDependents(ctx, taskID); err != nil {
		s.log.Warn("dependency unblock failed", "task_id", taskID, "error", err)
	}
	return nil
}

// FailTask records a failure. If retry_count is still below max_retries it
// schedules a retry with exponential backoff + jitter; otherwise it
// terminates the task in failed (spec §4.4).
func (s *Store) FailTask(ctx context.Context, taskID, executionID, errMsg string, baseBackoff, maxBackoff time.Duration) error {
	t, err := s.GetAgentTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.ExecutionID == nil || *t.ExecutionID != executionID {
		return ErrWrongAgent
	}

	retryCount := t.RetryCount + 1
	n := now()
	if retryCount >= t.MaxRetries {
		_, err := s.db.ExecContext(ctx, `
			UPDATE agent_tasks SET status = 'failed', retry_count = ?, last_error = ?, completed_at = ?, updated_at = ?
			WHERE id = ? AND execution_id = ?`,
			retryCount, errMsg, formatTime(n), formatTime(n), taskID, executionID)
		return err
	}

	delay := backoffWithJitter(retryCount, baseBackoff, maxBackoff)
	nextRetry := n.Add(delay)
	_, err = s.db.ExecContext(ctx, `
		UPDATE agent_tasks
		SET status = 'retrying', retry_count = ?, last_error = ?, next_retry_at = ?,
		    execution_id = NULL, started_at = NULL, updated_at = ?
		WHERE id = ? AND execution_id = ?`,
		retryCount, errMsg, formatTime(nextRetry), formatTime(n), taskID, executionID)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// CancelTask transitions any non-terminal task to cancelled (spec §4.4).
func (s *Store) CancelTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = 'cancelled', execution_id = NULL, completed_at = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'cancelled', 'failed')`,
		formatTime(now()), formatTime(now()), taskID)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// DueRetries lists tasks in pending/retrying whose next_retry_at has
// arrived, for the retry sweeper (spec §4.4).
func (s *Store) DueRetries(ctx context.Context, limit int) ([]*AgentTask, error) {
	rows, err := s.db.QueryContext(ctx, agentTaskSelectSQL+`
		WHERE status IN ('pending', 'retrying') AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at ASC LIMIT ?`, formatTime(now()), limit)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}
	defer rows.Close()
	return scanAgentTaskList(rows)
}

// RequeueRetry flips a retrying/pending task back to queued so it becomes
// claimable again.
func (s *Store) RequeueRetry(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = 'queued', next_retry_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'retrying')`,
		formatTime(now()), taskID)
	if err != nil {
		return fmt.Errorf("requeue retry: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// StuckTasks enumerates tasks in processing/running whose started_at is
// older than their timeout_ms, for the crash-recovery sweep (spec §4.4:
// "crashes mid-processing leave execution_id set ... on restart, enumerate
// tasks in processing with started_at older than timeout_ms").
func (s *Store) StuckTasks(ctx context.Context) ([]*AgentTask, error) {
	rows, err := s.db.QueryContext(ctx, agentTaskSelectSQL+`
		WHERE status IN ('processing', 'running') AND started_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list stuck tasks: %w", err)
	}
	defer rows.Close()

	all, err := scanAgentTaskList(rows)
	if err != nil {
		return nil, err
	}
	n := now()
	var stuck []*AgentTask
	for _, t := range all {
		if t.StartedAt == nil {
			continue
		}
		timeout := time.Duration(t.TimeoutMS) * time.Millisecond
		if n.Sub(*t.StartedAt) > timeout {
			stuck = append(stuck, t)
		}
	}
	return stuck, nil
}

// DependenciesSatisfied reports whether every id in depends_on has reached
// completed (spec §4.4 "Dependency gating").
func (s *Store) DependenciesSatisfied(ctx context.Context, dependsOn []string) (bool, error) {
	if len(dependsOn) == 0 {
		return true, nil
	}
	for _, dep := range dependsOn {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM agent_tasks WHERE id = ?`, dep).Scan(&status)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check dependency %s: %w", dep, err)
		}
		if status != string(TaskCompleted) {
			return false, nil
		}
	}
	return true, nil
}

// BlockedAgentTasks lists every task currently in status "blocked", for the
// periodic unblock safety-net sweep (spec §4.4).
func (s *Store) BlockedAgentTasks(ctx context.Context) ([]*AgentTask, error) {
	rows, err := s.db.QueryContext(ctx, agentTaskSelectSQL+` WHERE status = 'blocked'`)
	if err != nil {
		return nil, fmt.Errorf("list blocked tasks: %w", err)
	}
	defer rows.Close()
	return scanAgentTaskList(rows)
}

// UnblockTask flips a single blocked task to queued. Callers must have
// already confirmed DependenciesSatisfied.
func (s *Store) UnblockTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_tasks SET status = 'queued', updated_at = ? WHERE id = ? AND status = 'blocked'`,
		formatTime(now()), taskID)
	if err != nil {
		return fmt.Errorf("unblock task: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// unblockDependents scans blocked tasks whose dependencies are now
// satisfied and flips them to queued, called after every completion (spec
// §4.4).
func (s *Store) unblockDependents(ctx context.Context, completedTaskID string) error {
	rows, err := s.db.QueryContext(ctx, agentTaskSelectSQL+` WHERE status = 'blocked'`)
	if err != nil {
		return fmt.Errorf("scan blocked tasks: %w", err)
	}
	blocked, err := scanAgentTaskList(rows)
	rows.Close()
	if err != nil {
		return err
	}

	for _, t := range blocked {
		dependsOnCompleted := false
		for _, d := range t.DependsOn {
			if d == completedTaskID {
				dependsOnCompleted = true
				break
			}
		}
		if !dependsOnCompleted {
			continue
		}
		ok, err := s.DependenciesSatisfied(ctx, t.DependsOn)
		if err != nil {
			return err
		}
		if ok {
			if err := s.RequeueRetry(ctx, t.ID); err != nil && !errors.Is(err, ErrInvalidStatus) {
				return err
			}
			if _, err := s.db.ExecContext(ctx, `UPDATE agent_tasks SET status='queued', updated_at=? WHERE id=? AND status='blocked'`, formatTime(now()), t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// rollupUnifiedTask implements spec §3's rollup invariant.
func (s *Store) rollupUnifiedTask(ctx context.Context, completedTaskID string) error {
	t, err := s.GetAgentTask(ctx, completedTaskID)
	if err != nil {
		return err
	}
	if t.UnifiedTaskID == nil {
		return nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status FROM agent_tasks WHERE unified_task_id = ?`, *t.UnifiedTaskID)
	if err != nil {
		return fmt.Errorf("scan siblings: %w", err)
	}
	defer rows.Close()

	anyCompleted := false
	allTerminal := true
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		st := AgentTaskStatus(status)
		if st == TaskCompleted {
			anyCompleted = true
		}
		if !st.IsTerminal() {
			allTerminal = false
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if allTerminal && anyCompleted {
		return s.MarkUnifiedTaskDone(ctx, *t.UnifiedTaskID)
	}
	return nil
}

const agentTaskSelectSQL = `
	SELECT id, prompt, context, priority, status, retry_count, max_retries,
	       timeout_ms, depends_on, assigned_to, execution_id, parent_mission_id,
	       unified_task_id, session_id, next_retry_at, started_at, completed_at,
	       last_error, created_at, updated_at
	FROM agent_tasks`

type agentTaskScanner interface {
	Scan(dest ...any) error
}

func scanAgentTaskFields(row agentTaskScanner) (*AgentTask, error) {
	var t AgentTask
	var dependsOn string
	var assignedTo sql.NullInt64
	var executionID, parentMissionID, sessionID sql.NullString
	var unifiedTaskID sql.NullString
	var nextRetryAt, startedAt, completedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Prompt, &t.Context, &t.Priority, &t.Status, &t.RetryCount, &t.MaxRetries,
		&t.TimeoutMS, &dependsOn, &assignedTo, &executionID, &parentMissionID,
		&unifiedTaskID, &sessionID, &nextRetryAt, &startedAt, &completedAt,
		&t.LastError, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent task: %w", err)
	}
	t.DependsOn = unmarshalStrings(dependsOn)
	t.AssignedTo = i64Ptr(assignedTo)
	t.ExecutionID = strPtr(executionID)
	t.ParentMissionID = strPtr(parentMissionID)
	t.UnifiedTaskID = strPtr(unifiedTaskID)
	t.SessionID = strPtr(sessionID)
	t.NextRetryAt = timePtr(nextRetryAt)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func scanAgentTask(row *sql.Row) (*AgentTask, error) {
	return scanAgentTaskFields(row)
}

func scanAgentTaskList(rows *sql.Rows) ([]*AgentTask, error) {
	var out []*AgentTask
	for rows.Next() {
		t, err := scanAgentTaskFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// backoffWithJitter computes delay = min(base·2^retry, max) + jitter,
// jitter ∈ [0, 2s) (spec §4.4, §4.6 — shared shape for task retries and
// outbound message retries).
func backoffWithJitter(retryCount int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < retryCount && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay + jitter()
}

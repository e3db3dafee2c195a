package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateSession inserts a new Session, validating the previous_session_id
// DAG invariant from spec §3 ("if set, references an existing session").
func (s *Store) CreateSession(ctx context.Context, sess Session) (*Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.PreviousSessionID != nil {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, *sess.PreviousSessionID).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: previous_session_id %q", ErrConstraintViolated, *sess.PreviousSessionID)
		}
		if err != nil {
			return nil, fmt.Errorf("check previous session: %w", err)
		}
	}
	if sess.Visibility == "" {
		sess.Visibility = VisibilityPrivate
	}
	n := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, summary, context_wins, context_issues, context_decisions,
			context_next_steps, context_challenges, context_git_commits,
			context_files_changed, tags, agent_id, visibility, project_path,
			previous_session_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Summary,
		marshalJSON(sess.Context.Wins), marshalJSON(sess.Context.Issues), marshalJSON(sess.Context.Decisions),
		marshalJSON(sess.Context.NextSteps), marshalJSON(sess.Context.Challenges), marshalJSON(sess.Context.GitCommits),
		marshalJSON(sess.Context.FilesChanged), marshalJSON(sess.Tags), niOrNil(sess.AgentID), string(sess.Visibility),
		sess.ProjectPath, nsOrNil(sess.PreviousSessionID), formatTime(n), formatTime(n))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.GetSession(ctx, sess.ID)
}

// GetSession fetches a Session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectSQL+` WHERE id = ?`, id)
	return scanSession(row)
}

// MostRecentSession answers the "recent" query classification (spec
// §4.3.1): the newest session visible to the given agent/project scope.
func (s *Store) MostRecentSession(ctx context.Context, agentID *int64, projectPath string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectSQL+`
		WHERE project_path = ? AND (agent_id IS ? OR agent_id IS NULL OR visibility IN ('shared','public'))
		ORDER BY created_at DESC LIMIT 1`, projectPath, niOrNil(agentID))
	return scanSession(row)
}

// UpdateSessionSummary updates a session's free-text summary and tags.
func (s *Store) UpdateSessionSummary(ctx context.Context, id, summary string, tags []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET summary = ?, tags = ?, updated_at = ? WHERE id = ?`,
		summary, marshalJSON(tags), formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return mustAffectOne(res, ErrNotFound)
}

const sessionSelectSQL = `
	SELECT id, summary, context_wins, context_issues, context_decisions,
	       context_next_steps, context_challenges, context_git_commits,
	       context_files_changed, tags, agent_id, visibility, project_path,
	       previous_session_id, created_at, updated_at
	FROM sessions`

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var wins, issues, decisions, nextSteps, challenges, gitCommits, filesChanged, tags string
	var agentID sql.NullInt64
	var previousID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Summary, &wins, &issues, &decisions, &nextSteps, &challenges,
		&gitCommits, &filesChanged, &tags, &agentID, &sess.Visibility, &sess.ProjectPath,
		&previousID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Context = SessionContext{
		Wins:         unmarshalStrings(wins),
		Issues:       unmarshalStrings(issues),
		Decisions:    unmarshalStrings(decisions),
		NextSteps:    unmarshalStrings(nextSteps),
		Challenges:   unmarshalStrings(challenges),
		GitCommits:   unmarshalStrings(gitCommits),
		FilesChanged: unmarshalStrings(filesChanged),
	}
	sess.Tags = unmarshalStrings(tags)
	sess.AgentID = i64Ptr(agentID)
	sess.PreviousSessionID = strPtr(previousID)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveLearning inserts a new Learning row. The FTS mirror is kept in sync
// by the learnings_fts_ai trigger — callers never touch the FTS table
// directly (spec §4.1: "the index cannot drift from the base table").
func (s *Store) SaveLearning(ctx context.Context, l Learning) (*Learning, error) {
	if l.Visibility == "" {
		l.Visibility = VisibilityPrivate
	}
	if l.Confidence == "" {
		l.Confidence = ConfidenceOf(l.TimesValidated)
	}
	if l.MaturityStage == "" {
		l.MaturityStage = StageOf(l.TimesValidated)
	}
	n := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO learnings (
			category, title, description, what_happened, lesson, prevention,
			context, source_url, confidence, maturity_stage, times_validated,
			last_validated_at, agent_id, visibility, project_path, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Category, l.Title, l.Description, l.WhatHappened, l.Lesson, l.Prevention,
		l.Context, l.SourceURL, string(l.Confidence), string(l.MaturityStage), l.TimesValidated,
		ntOrNil(l.LastValidatedAt), niOrNil(l.AgentID), string(l.Visibility), l.ProjectPath,
		formatTime(n), formatTime(n))
	if err != nil {
		return nil, fmt.Errorf("save learning: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("save learning: %w", err)
	}
	s.fireLearningChange(id)
	return s.GetLearningByID(ctx, id)
}

// GetLearningByID fetches a Learning by numeric id, supporting both the
// `^#?\d+$` and `^learning_\d+$` exact-fetch patterns of spec §4.3.1 (the
// caller strips the prefix before calling this).
func (s *Store) GetLearningByID(ctx context.Context, id int64) (*Learning, error) {
	row := s.db.QueryRowContext(ctx, learningSelectSQL+` WHERE id = ?`, id)
	return scanLearning(row)
}

// ValidateLearning advances times_validated by one and recomputes
// confidence/maturity_stage from the new count, preserving the invariant
// `maturity_stage = stageOf(times_validated)` (spec §3, §8).
func (s *Store) ValidateLearning(ctx context.Context, id int64) (*Learning, error) {
	l, err := s.GetLearningByID(ctx, id)
	if err != nil {
		return nil, err
	}
	newCount := l.TimesValidated + 1
	n := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE learnings
		SET times_validated = ?, maturity_stage = ?, confidence = ?, last_validated_at = ?, updated_at = ?
		WHERE id = ?`,
		newCount, string(StageOf(newCount)), string(ConfidenceOf(newCount)), formatTime(n), formatTime(n), id)
	if err != nil {
		return nil, fmt.Errorf("validate learning: %w", err)
	}
	if err := mustAffectOne(res, ErrNotFound); err != nil {
		return nil, err
	}
	s.fireLearningChange(id)
	return s.GetLearningByID(ctx, id)
}

// ListLearnings returns every Learning row, newest first, for bulk
// consumers like the indexer daemon's reindex pass.
func (s *Store) ListLearnings(ctx context.Context) ([]*Learning, error) {
	rows, err := s.db.QueryContext(ctx, learningSelectSQL+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
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

// LearningChangeHook is invoked after SaveLearning/ValidateLearning to
// signal the retrieval engine's hybrid-search cache that it must
// invalidate, per spec §4.3.4 ("cache is cleared whenever a learning is
// created/updated"). The Store itself has no cache to clear; callers
// subscribe via RegisterLearningChangeHook.
type LearningChangeHook func(learningID int64)

func (s *Store) RegisterLearningChangeHook(hook LearningChangeHook) {
	s.learningHooks = append(s.learningHooks, hook)
}

func (s *Store) fireLearningChange(id int64) {
	for _, h := range s.learningHooks {
		h(id)
	}
}

const learningSelectSQL = `
	SELECT id, category, title, description, what_happened, lesson, prevention,
	       context, source_url, confidence, maturity_stage, times_validated,
	       last_validated_at, agent_id, visibility, project_path, created_at, updated_at
	FROM learnings`

// learningScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanLearningFields back both scanLearning (single row) and
// scanLearningRows (iterating a result set).
type learningScanner interface {
	Scan(dest ...any) error
}

func scanLearningFields(row learningScanner) (*Learning, error) {
	var l Learning
	var createdAt, updatedAt string
	var lastValidatedNS sql.NullString
	var agentID sql.NullInt64
	err := row.Scan(&l.ID, &l.Category, &l.Title, &l.Description, &l.WhatHappened, &l.Lesson,
		&l.Prevention, &l.Context, &l.SourceURL, &l.Confidence, &l.MaturityStage, &l.TimesValidated,
		&lastValidatedNS, &agentID, &l.Visibility, &l.ProjectPath, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan learning: %w", err)
	}
	l.LastValidatedAt = timePtr(lastValidatedNS)
	l.AgentID = i64Ptr(agentID)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func scanLearning(row *sql.Row) (*Learning, error) {
	return scanLearningFields(row)
}

func scanLearningRows(rows *sql.Rows) (*Learning, error) {
	return scanLearningFields(rows)
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertMatrixRegistry inserts or updates a matrix's registry row. last_seen
// is monotone non-decreasing under Touch (spec §3 "Matrix Registry Entry").
func (s *Store) UpsertMatrixRegistry(ctx context.Context, matrixID, displayName string, status MatrixStatus, metadata map[string]any) error {
	n := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matrix_registry (matrix_id, display_name, status, last_seen, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(matrix_id) DO UPDATE SET
			display_name = excluded.display_name,
			status = excluded.status,
			last_seen = excluded.last_seen,
			metadata = excluded.metadata`,
		matrixID, displayName, string(status), formatTime(n), marshalJSON(metadata))
	if err != nil {
		return fmt.Errorf("upsert matrix registry: %w", err)
	}
	return nil
}

// TouchMatrixLastSeen advances last_seen, refusing to move it backward.
func (s *Store) TouchMatrixLastSeen(ctx context.Context, matrixID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE matrix_registry SET last_seen = ?
		WHERE matrix_id = ? AND last_seen <= ?`,
		formatTime(now()), matrixID, formatTime(now()))
	if err != nil {
		return fmt.Errorf("touch matrix last_seen: %w", err)
	}
	return nil
}

// SetMatrixStatus updates a registry row's presence status.
func (s *Store) SetMatrixStatus(ctx context.Context, matrixID string, status MatrixStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE matrix_registry SET status = ?, last_seen = ? WHERE matrix_id = ?`,
		string(status), formatTime(now()), matrixID)
	if err != nil {
		return fmt.Errorf("set matrix status: %w", err)
	}
	return mustAffectOne(res, ErrNotFound)
}

// GetMatrixRegistry fetches one registry row.
func (s *Store) GetMatrixRegistry(ctx context.Context, matrixID string) (*MatrixRegistryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT matrix_id, display_name, status, last_seen, metadata FROM matrix_registry WHERE matrix_id = ?`, matrixID)
	return scanMatrixRegistry(row)
}

// ListMatrixRegistry lists every known matrix (spec §4.5 "GET /matrices").
func (s *Store) ListMatrixRegistry(ctx context.Context) ([]*MatrixRegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT matrix_id, display_name, status, last_seen, metadata FROM matrix_registry ORDER BY matrix_id`)
	if err != nil {
		return nil, fmt.Errorf("list matrix registry: %w", err)
	}
	defer rows.Close()

	var out []*MatrixRegistryEntry
	for rows.Next() {
		var e MatrixRegistryEntry
		var lastSeen, metadata string
		if err := rows.Scan(&e.MatrixID, &e.DisplayName, &e.Status, &lastSeen, &metadata); err != nil {
			return nil, fmt.Errorf("scan matrix registry row: %w", err)
		}
		e.LastSeen = parseTime(lastSeen)
		e.Metadata = unmarshalMap(metadata)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// StaleMatrices returns registry entries whose last_seen predates the idle
// timeout, for the hub's stale-matrix sweep (spec §4.5).
func (s *Store) StaleMatrices(ctx context.Context, olderThanSeconds int) ([]*MatrixRegistryEntry, error) {
	cutoff := now().Add(-time.Duration(olderThanSeconds) * time.Second)
	rows, err := s.db.QueryContext(ctx, `
		SELECT matrix_id, display_name, status, last_seen, metadata FROM matrix_registry
		WHERE status != 'offline' AND last_seen < ?`,
		formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stale matrices: %w", err)
	}
	defer rows.Close()

	var out []*MatrixRegistryEntry
	for rows.Next() {
		var e MatrixRegistryEntry
		var lastSeen, metadata string
		if err := rows.Scan(&e.MatrixID, &e.DisplayName, &e.Status, &lastSeen, &metadata); err != nil {
			return nil, fmt.Errorf("scan stale matrix row: %w", err)
		}
		e.LastSeen = parseTime(lastSeen)
		e.Metadata = unmarshalMap(metadata)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanMatrixRegistry(row *sql.Row) (*MatrixRegistryEntry, error) {
	var e MatrixRegistryEntry
	var lastSeen, metadata string
	err := row.Scan(&e.MatrixID, &e.DisplayName, &e.Status, &lastSeen, &metadata)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan matrix registry: %w", err)
	}
	e.LastSeen = parseTime(lastSeen)
	e.Metadata = unmarshalMap(metadata)
	return &e, nil
}

// GetNextSequenceNumber is the sole source of per-matrix message sequence
// numbers (spec §4.1, §9: "do not substitute application-side counters or
// MAX(seq)+1 reads"). INSERT ON CONFLICT UPDATE, then read — never
// read-then-write.
func (s *Store) GetNextSequenceNumber(ctx context.Context, matrixID string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matrix_sequence_counters (matrix_id, next_sequence) VALUES (?, 2)
		ON CONFLICT(matrix_id) DO UPDATE SET next_sequence = next_sequence + 1`,
		matrixID)
	if err != nil {
		return 0, fmt.Errorf("advance sequence counter: %w", err)
	}
	var current int64
	err = s.db.QueryRowContext(ctx,
		`SELECT next_sequence FROM matrix_sequence_counters WHERE matrix_id = ?`, matrixID).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read sequence counter: %w", err)
	}
	return current - 1, nil
}

// EnqueueMessage performs step 1 of the two-phase outbound commit (spec
// §4.6): mint a sequence number and insert the row as pending.
func (s *Store) EnqueueMessage(ctx context.Context, fromMatrix string, toMatrix *string, content string, msgType MatrixMessageType, maxRetries int) (*MatrixMessage, error) {
	seq, err := s.GetNextSequenceNumber(ctx, fromMatrix)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	n := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matrix_messages (
			id, from_matrix, to_matrix, content, type, status, sequence_number,
			retry_count, max_retries, created_at
		) VALUES (?, ?, ?, ?, ?, 'pending', ?, 0, ?, ?)`,
		id, fromMatrix, nsOrNil(toMatrix), content, string(msgType), seq, maxRetries, formatTime(n))
	if err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// GetMessage fetches a MatrixMessage by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*MatrixMessage, error) {
	row := s.db.QueryRowContext(ctx, messageSelectSQL+` WHERE id = ?`, id)
	return scanMessage(row)
}

// TransitionMessageSending moves pending → sending, stamping attempted_at.
func (s *Store) TransitionMessageSending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matrix_messages SET status = 'sending', attempted_at = ? WHERE id = ? AND status = 'pending'`,
		formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("transition to sending: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// TransitionMessageSent moves sending → sent.
func (s *Store) TransitionMessageSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matrix_messages SET status = 'sent', sent_at = ? WHERE id = ? AND status = 'sending'`,
		formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("transition to sent: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// TransitionMessageDelivered moves sent → delivered on a delivery ack.
func (s *Store) TransitionMessageDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matrix_messages SET status = 'delivered', delivered_at = ? WHERE id = ? AND status = 'sent'`,
		formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("transition to delivered: %w", err)
	}
	return mustAffectOne(res, ErrInvalidStatus)
}

// TransitionMessageFailedSend moves sending → pending on transmit failure,
// bumping retry_count and scheduling next_retry_at, or terminates to
// failed once retry_count reaches max_retries (spec §4.6 step 4).
func (s *Store) TransitionMessageFailedSend(ctx context.Context, id, errMsg string, baseBackoff, maxBackoff time.Duration) error {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	retryCount := m.RetryCount + 1
	n := now()
	if retryCount >= m.MaxRetries {
		_, err := s.db.ExecContext(ctx, `
			UPDATE matrix_messages SET status = 'failed', retry_count = ?, last_error = ? WHERE id = ?`,
			retryCount, errMsg, id)
		return err
	}
	delay := backoffWithJitter(retryCount, baseBackoff, maxBackoff)
	_, err = s.db.ExecContext(ctx, `
		UPDATE matrix_messages SET status = 'pending', retry_count = ?, last_error = ?, next_retry_at = ?
		WHERE id = ?`, retryCount, errMsg, formatTime(n.Add(delay)), id)
	return err
}

// ResurrectStuckSends resets every row still "sending" back to "pending",
// immediately eligible for retry — the crash-recovery step of spec §4.6:
// "any row still in sending is resurrected ... scheduled for immediate
// retry. This is safe because the frame carries a stable sequence number."
func (s *Store) ResurrectStuckSends(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matrix_messages SET status = 'pending', next_retry_at = NULL WHERE status = 'sending'`)
	if err != nil {
		return 0, fmt.Errorf("resurrect stuck sends: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DueOutboundMessages sweeps status ∈ {pending, sending} due for
// (re)transmission, respecting retry_count < max_retries, in created_at
// ASC order (spec §4.6 "Retry loop").
func (s *Store) DueOutboundMessages(ctx context.Context, limit int) ([]*MatrixMessage, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+`
		WHERE status IN ('pending', 'sending')
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		  AND retry_count < max_retries
		ORDER BY created_at ASC LIMIT ?`, formatTime(now()), limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbound messages: %w", err)
	}
	defer rows.Close()

	var out []*MatrixMessage
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertInboundMessage records a received message with status=delivered,
// deduplicating by message id (spec §4.6 "Inbound").
func (s *Store) InsertInboundMessage(ctx context.Context, id, fromMatrix string, toMatrix *string, content string, msgType MatrixMessageType, sequenceNumber int64) error {
	n := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matrix_messages (
			id, from_matrix, to_matrix, content, type, status, sequence_number,
			retry_count, max_retries, created_at, delivered_at
		) VALUES (?, ?, ?, ?, ?, 'delivered', ?, 0, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, fromMatrix, nsOrNil(toMatrix), content, string(msgType), sequenceNumber, formatTime(n), formatTime(n))
	if err != nil {
		return fmt.Errorf("insert inbound message: %w", err)
	}
	return nil
}

// InboundMessagesForMatrix returns delivered messages addressed to (or
// broadcast toward) toMatrix, in strict per-sender sequence order (spec §3
// invariant, §4.6 "consumers read ORDER BY from_matrix, sequence_number").
func (s *Store) InboundMessagesForMatrix(ctx context.Context, toMatrix string, sinceID string, limit int) ([]*MatrixMessage, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+`
		WHERE status = 'delivered' AND (to_matrix = ? OR to_matrix IS NULL) AND from_matrix != ?
		ORDER BY from_matrix, sequence_number LIMIT ?`, toMatrix, toMatrix, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbound messages: %w", err)
	}
	defer rows.Close()

	var out []*MatrixMessage
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const messageSelectSQL = `
	SELECT id, from_matrix, to_matrix, content, type, status, sequence_number,
	       retry_count, max_retries, next_retry_at, last_error, created_at,
	       attempted_at, sent_at, delivered_at, read_at
	FROM matrix_messages`

type messageScanner interface {
	Scan(dest ...any) error
}

func scanMessageFields(row messageScanner) (*MatrixMessage, error) {
	var m MatrixMessage
	var toMatrix sql.NullString
	var nextRetryAt, attemptedAt, sentAt, deliveredAt, readAt sql.NullString
	var createdAt string
	err := row.Scan(&m.ID, &m.FromMatrix, &toMatrix, &m.Content, &m.Type, &m.Status, &m.SequenceNumber,
		&m.RetryCount, &m.MaxRetries, &nextRetryAt, &m.LastError, &createdAt,
		&attemptedAt, &sentAt, &deliveredAt, &readAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.ToMatrix = strPtr(toMatrix)
	m.NextRetryAt = timePtr(nextRetryAt)
	m.AttemptedAt = timePtr(attemptedAt)
	m.SentAt = timePtr(sentAt)
	m.DeliveredAt = timePtr(deliveredAt)
	m.ReadAt = timePtr(readAt)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func scanMessage(row *sql.Row) (*MatrixMessage, error) {
	return scanMessageFields(row)
}

func scanMessageRows(rows *sql.Rows) (*MatrixMessage, error) {
	return scanMessageFields(rows)
}

// IssueToken mints a token row. The hub is responsible for purging tokens
// older than the reconnect grace window, not this method (spec §4.5, §9).
func (s *Store) IssueToken(ctx context.Context, token, matrixID string, expiresAt time.Time) error {
	n := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, matrix_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, matrixID, formatTime(n), formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	return nil
}

// ValidToken reports whether token is registered and unexpired.
func (s *Store) ValidToken(ctx context.Context, token string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, matrix_id, created_at, expires_at FROM tokens WHERE token = ? AND expires_at > ?`,
		token, formatTime(now()))
	var t Token
	var createdAt, expiresAt string
	err := row.Scan(&t.Token, &t.MatrixID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.ExpiresAt = parseTime(expiresAt)
	return &t, nil
}

// PurgeOldTokens deletes tokens for matrixID older than the reconnect
// grace window, keeping the currently-valid one(s) alive during a
// reconnect race (spec §9's resolved open question).
func (s *Store) PurgeOldTokens(ctx context.Context, matrixID string, graceCutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE matrix_id = ? AND created_at < ?`, matrixID, formatTime(graceCutoff))
	if err != nil {
		return fmt.Errorf("purge old tokens: %w", err)
	}
	return nil
}

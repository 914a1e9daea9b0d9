package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

const actionColumns = `id, account_id, prospect_id, action, source, priority,
	requires_validation, validation_status, payload, status, error, rejection_category,
	created_at, executed_at`

// ErrAlreadyExecuted is returned when marking an executed entry again
var ErrAlreadyExecuted = errors.New("action already executed")

// InsertAction appends an entry to the action log. The schedule is read
// from the payload; entries without one are due immediately.
func (s *Store) InsertAction(ctx context.Context, e *domain.ActionLogEntry) (int64, error) {
	if e.ValidationStatus == "" {
		if e.RequiresValidation {
			e.ValidationStatus = domain.ValidationPending
		} else {
			e.ValidationStatus = domain.ValidationAutoExecute
		}
	}

	scheduledAt := time.Now().UTC()
	if p, err := e.DecodePayload(); err == nil && !p.ScheduledAt.IsZero() {
		scheduledAt = p.ScheduledAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO action_logs (account_id, prospect_id, action, source, priority,
			requires_validation, validation_status, payload, scheduled_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')
	`,
		e.AccountID,
		nullInt(e.ProspectID),
		string(e.Action),
		string(e.Source),
		e.Priority,
		e.RequiresValidation,
		string(e.ValidationStatus),
		string(e.Payload),
		scheduledAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting %s action: %w", e.Action, err)
	}
	return res.LastInsertId()
}

// GetAction retrieves an action log entry by id
func (s *Store) GetAction(ctx context.Context, id int64) (*domain.ActionLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_logs WHERE id = ?`, id)
	e, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %d not found", id)
	}
	return e, err
}

// DueActions returns executable entries in execution order: pending,
// cleared for sending, and past their schedule. Lower priority first,
// oldest first within a priority.
func (s *Store) DueActions(ctx context.Context, now time.Time, limit int) ([]*domain.ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM action_logs
		WHERE status = 'pending'
		  AND validation_status IN ('auto_execute', 'approved')
		  AND scheduled_at <= ?
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// MarkActionExecuted finalizes an entry exactly once. The executed_at
// guard makes double execution impossible; the second caller gets
// ErrAlreadyExecuted.
func (s *Store) MarkActionExecuted(ctx context.Context, id int64, execErr string) error {
	status := domain.EntrySuccess
	if execErr != "" {
		status = domain.EntryFailed
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_logs
		SET status = ?, error = ?, executed_at = ?,
		    validation_status = CASE validation_status
		        WHEN 'auto_execute' THEN 'auto_executed'
		        ELSE validation_status END
		WHERE id = ? AND executed_at IS NULL
	`, string(status), execErr, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExecuted
	}
	return nil
}

// ApproveAction clears a validation-gated entry for execution,
// optionally replacing the message content. Approving an entry that is
// already approved or executed is a no-op.
func (s *Store) ApproveAction(ctx context.Context, id int64, modifiedContent string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var vs string
	var payload sql.NullString
	var executedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT validation_status, payload, executed_at FROM action_logs WHERE id = ?
	`, id).Scan(&vs, &payload, &executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("action %d not found", id)
	}
	if err != nil {
		return err
	}

	switch domain.ValidationStatus(vs) {
	case domain.ValidationApproved, domain.ValidationAutoExecuted:
		return nil // idempotent
	case domain.ValidationRejected, domain.ValidationCancelled:
		return fmt.Errorf("action %d is %s, cannot approve", id, vs)
	}
	if executedAt.Valid {
		return nil
	}

	newPayload := payload.String
	if modifiedContent != "" {
		newPayload, err = overrideContent(payload.String, modifiedContent)
		if err != nil {
			return fmt.Errorf("action %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE action_logs SET validation_status = 'approved', payload = ? WHERE id = ?
	`, newPayload, id); err != nil {
		return err
	}
	return tx.Commit()
}

// RejectAction marks a validation-gated entry rejected, recording the
// reason and the rejection category. Idempotent: rejecting twice
// reports alreadyRejected instead of erroring.
func (s *Store) RejectAction(ctx context.Context, id int64, reason, category string) (alreadyRejected bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_logs
		SET validation_status = 'rejected', status = 'failed', error = ?, rejection_category = ?
		WHERE id = ? AND validation_status = 'pending' AND executed_at IS NULL
	`, reason, category, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return false, nil
	}

	var vs string
	err = s.db.QueryRowContext(ctx, `SELECT validation_status FROM action_logs WHERE id = ?`, id).Scan(&vs)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("action %d not found", id)
	}
	if err != nil {
		return false, err
	}
	if domain.ValidationStatus(vs) == domain.ValidationRejected {
		return true, nil
	}
	return false, fmt.Errorf("action %d is %s, cannot reject", id, vs)
}

// PendingValidations lists entries awaiting a human decision
func (s *Store) PendingValidations(ctx context.Context, accountID int64) ([]*domain.ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+actionColumns+` FROM action_logs
		WHERE account_id = ? AND requires_validation AND validation_status = 'pending'
		ORDER BY created_at ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActions(rows)
}

// CancelPendingSends voids every unexecuted scheduled send for a
// prospect. Used when the prospect replies: the planned ladder no longer
// applies. Returns how many entries were cancelled.
func (s *Store) CancelPendingSends(ctx context.Context, prospectID int64, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_logs
		SET validation_status = 'cancelled', error = ?
		WHERE prospect_id = ? AND status = 'pending' AND executed_at IS NULL
		  AND action IN ('send_first_contact', 'send_followup_a_1', 'send_followup_a_2',
		                 'send_followup_a_3', 'send_followup_b', 'send_followup_c')
	`, reason, prospectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasPendingSends reports whether any unexecuted scheduled send exists
// for a prospect.
func (s *Store) HasPendingSends(ctx context.Context, prospectID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM action_logs
		WHERE prospect_id = ? AND status = 'pending' AND executed_at IS NULL
		  AND validation_status IN ('pending', 'auto_execute', 'approved')
		  AND action IN ('send_first_contact', 'send_followup_a_1', 'send_followup_a_2',
		                 'send_followup_a_3', 'send_followup_b', 'send_followup_c')
	`, prospectID).Scan(&n)
	return n > 0, err
}

// CountExecutedToday counts successful sends of one action type for an
// account on the calendar day containing day, in day's location.
func (s *Store) CountExecutedToday(ctx context.Context, accountID int64, action domain.ActionType, day time.Time) (int, error) {
	start, end := dayRange(day)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM action_logs
		WHERE account_id = ? AND action = ? AND status = 'success'
		  AND executed_at >= ? AND executed_at < ?
	`, accountID, string(action), start.UTC(), end.UTC()).Scan(&n)
	return n, err
}

// LastExecutedAt returns when an action type last ran for an account,
// zero time when it never has.
func (s *Store) LastExecutedAt(ctx context.Context, accountID int64, action domain.ActionType) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(executed_at) FROM action_logs
		WHERE account_id = ? AND action = ? AND status = 'success'
	`, accountID, string(action)).Scan(&t)
	if err != nil {
		return time.Time{}, err
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}

func overrideContent(payload, content string) (string, error) {
	m := map[string]any{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return "", fmt.Errorf("decoding payload: %w", err)
		}
	}
	m["content"] = content
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func collectActions(rows *sql.Rows) ([]*domain.ActionLogEntry, error) {
	var out []*domain.ActionLogEntry
	for rows.Next() {
		e, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAction(row rowScanner) (*domain.ActionLogEntry, error) {
	var (
		e          domain.ActionLogEntry
		prospectID sql.NullInt64
		action     string
		source     string
		vs         string
		payload    sql.NullString
		status     string
		actionErr  sql.NullString
		category   sql.NullString
		executedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.AccountID, &prospectID, &action, &source, &e.Priority,
		&e.RequiresValidation, &vs, &payload, &status, &actionErr, &category,
		&e.CreatedAt, &executedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ProspectID = intPtr(prospectID)
	e.Action = domain.ActionType(action)
	e.Source = domain.Source(source)
	e.ValidationStatus = domain.ValidationStatus(vs)
	e.Payload = []byte(payload.String)
	e.Status = domain.EntryStatus(status)
	e.Error = actionErr.String
	e.RejectionCategory = category.String
	e.ExecutedAt = timePtr(executedAt)
	return &e, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

const taskColumns = `id, type, account_id, prospect_id, priority, payload, status,
	retry_count, max_retries, scheduled_at, started_at, completed_at, result, error`

// EnqueueTask inserts a pending task. When dedupKey is non-empty and a
// pending or processing task with the same key exists, nothing is
// inserted and the existing task's id is returned.
func (s *Store) EnqueueTask(ctx context.Context, task *domain.Task, dedupKey string) (int64, error) {
	if dedupKey != "" {
		var existing int64
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM tasks
			WHERE dedup_key = ? AND status IN ('pending', 'processing')
		`, dedupKey).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
	}

	if task.MaxRetries == 0 {
		task.MaxRetries = 3
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (type, account_id, prospect_id, priority, dedup_key, payload, status, max_retries, scheduled_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, 'pending', ?, ?)
	`,
		string(task.Type),
		task.AccountID,
		nullInt(task.ProspectID),
		task.Priority,
		dedupKey,
		string(task.Payload),
		task.MaxRetries,
		task.ScheduledAt,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s task: %w", task.Type, err)
	}
	return res.LastInsertId()
}

// ClaimNextTask atomically moves the most urgent due task to processing
// and returns it. Returns nil when nothing is due.
func (s *Store) ClaimNextTask(ctx context.Context, now time.Time) (*domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT 1
	`, now)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'processing', started_at = ? WHERE id = ?
	`, now, task.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task.Status = domain.TaskProcessing
	task.StartedAt = &now
	return task, nil
}

// CompleteTask marks a processing task completed
func (s *Store) CompleteTask(ctx context.Context, id int64, result string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', completed_at = ?, result = ? WHERE id = ?
	`, time.Now().UTC(), result, id)
	return err
}

// FailTask records a handler failure. Tasks under their retry budget go
// back to pending with the given delay; the rest are failed for good.
// Reports whether the task will run again.
func (s *Store) FailTask(ctx context.Context, id int64, taskErr string, retryDelay time.Duration) (bool, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'pending', retry_count = retry_count + 1, scheduled_at = ?, error = ?
		WHERE id = ? AND retry_count < max_retries
	`, now.Add(retryDelay), taskErr, id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'failed', completed_at = ?, error = ? WHERE id = ?
	`, now, taskErr, id)
	return false, err
}

// GetTask retrieves a task by id
func (s *Store) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d not found", id)
	}
	return task, err
}

// CountTasksByStatus returns how many tasks sit in each status
func (s *Store) CountTasksByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.TaskStatus(status)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		taskType   string
		status     string
		prospectID sql.NullInt64
		payload    sql.NullString
		startedAt  sql.NullTime
		doneAt     sql.NullTime
		result     sql.NullString
		taskErr    sql.NullString
	)
	err := row.Scan(
		&task.ID, &taskType, &task.AccountID, &prospectID, &task.Priority,
		&payload, &status, &task.RetryCount, &task.MaxRetries,
		&task.ScheduledAt, &startedAt, &doneAt, &result, &taskErr,
	)
	if err != nil {
		return nil, err
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.ProspectID = intPtr(prospectID)
	task.Payload = []byte(payload.String)
	task.StartedAt = timePtr(startedAt)
	task.CompletedAt = timePtr(doneAt)
	task.Result = result.String
	task.Error = taskErr.String
	return &task, nil
}

package store

import (
	"context"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// MetricRow is one daily counter
type MetricRow struct {
	Day       string            `json:"day"`
	AccountID int64             `json:"account_id"`
	Action    domain.ActionType `json:"action"`
	Count     int               `json:"count"`
}

// BumpDailyMetric adds delta to the day's counter for an action type
func (s *Store) BumpDailyMetric(ctx context.Context, day time.Time, accountID int64, action domain.ActionType, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (day, account_id, action, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day, account_id, action) DO UPDATE SET count = count + excluded.count
	`, day.Format("2006-01-02"), accountID, string(action), delta)
	return err
}

// SetDailyMetric overwrites the day's counter, used by the metrics
// worker to reconcile counters against the action log.
func (s *Store) SetDailyMetric(ctx context.Context, day time.Time, accountID int64, action domain.ActionType, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (day, account_id, action, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(day, account_id, action) DO UPDATE SET count = excluded.count
	`, day.Format("2006-01-02"), accountID, string(action), count)
	return err
}

// DailyMetrics returns the counters recorded for one day
func (s *Store) DailyMetrics(ctx context.Context, day time.Time) ([]MetricRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, account_id, action, count FROM daily_metrics
		WHERE day = ? ORDER BY account_id, action
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var r MetricRow
		var action string
		if err := rows.Scan(&r.Day, &r.AccountID, &action, &r.Count); err != nil {
			return nil, err
		}
		r.Action = domain.ActionType(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

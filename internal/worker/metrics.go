package worker

import (
	"context"
	"fmt"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// MetricsOnce reconciles today's daily_metrics rows against the action
// log. Executor bumps can be lost on crash; the count query is the
// source of truth.
func (e *Engine) MetricsOnce(ctx context.Context) error {
	day := e.now().In(e.cfg.Location())
	for _, action := range domain.SendActions {
		n, err := e.store.CountExecutedToday(ctx, e.accountID, action, day)
		if err != nil {
			return fmt.Errorf("counting %s: %w", action, err)
		}
		if err := e.store.SetDailyMetric(ctx, day, e.accountID, action, n); err != nil {
			return fmt.Errorf("writing metric %s: %w", action, err)
		}
	}
	return nil
}

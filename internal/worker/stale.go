package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// ReviveStaleOnce plans a revival message for every conversation that
// went quiet after we spoke last. Prospects with a send already on the
// books are skipped so the daily sweep never stacks revivals.
func (e *Engine) ReviveStaleOnce(ctx context.Context) error {
	cutoff := e.now().UTC().AddDate(0, 0, -e.cfg.Outreach.StaleAfterDays)
	stale, err := e.store.StaleProspects(ctx, e.accountID, cutoff)
	if err != nil {
		return fmt.Errorf("loading stale prospects: %w", err)
	}

	planned := 0
	for _, p := range stale {
		pending, err := e.store.HasPendingSends(ctx, p.ID)
		if err != nil {
			return err
		}
		if pending {
			continue
		}

		at := e.now().UTC().AddDate(0, 0, 2).Add(e.jitter(150 * time.Minute))
		content := e.composer.Revival(p.Profile())
		if _, err := e.insertSend(ctx, p.ID, domain.ActionSendFollowupB, content, at, 0); err != nil {
			return err
		}
		planned++
	}

	if planned > 0 {
		log.Printf("stale: %d conversations gone quiet, %d revivals planned", len(stale), planned)
	}
	return nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
	"github.com/prospectra/outreach-orchestrator/internal/social"
	"github.com/prospectra/outreach-orchestrator/internal/store"
)

// errQuotaExhausted signals that today's ceiling for an action type is
// spent; remaining unattended entries of that type wait for tomorrow.
var errQuotaExhausted = errors.New("daily quota reached")

// ExecuteOnce sends the due action log entries, grouped by action type.
// Every entry passes the eligibility gate and, for unattended sends, the
// daily quota before it touches the provider; once the quota for a type
// is spent the rest of that group is skipped without re-asking. A
// prospect reply arriving after an entry was planned cancels the whole
// ladder instead of sending into a live conversation.
func (e *Engine) ExecuteOnce(ctx context.Context) error {
	due, err := e.store.DueActions(ctx, e.now().UTC(), e.cfg.Workers.BatchSize)
	if err != nil {
		return fmt.Errorf("loading due actions: %w", err)
	}

	groups := make(map[domain.ActionType][]*domain.ActionLogEntry)
	var order []domain.ActionType
	for _, entry := range due {
		if _, ok := groups[entry.Action]; !ok {
			order = append(order, entry.Action)
		}
		groups[entry.Action] = append(groups[entry.Action], entry)
	}

	sent := 0
	for _, action := range order {
		n, abort := e.executeGroup(ctx, groups[action])
		sent += n
		if abort {
			break
		}
	}

	if sent > 0 {
		log.Printf("executor: %d actions sent", sent)
	}
	return nil
}

// executeGroup sends one action type's due entries. Reports how many
// went out and whether the whole tick should be abandoned.
func (e *Engine) executeGroup(ctx context.Context, entries []*domain.ActionLogEntry) (int, bool) {
	sent := 0
	quotaSpent := false
	for _, entry := range entries {
		if quotaSpent && entry.ValidationStatus == domain.ValidationAutoExecute {
			continue
		}

		ok, err := e.executeEntry(ctx, entry)
		if errors.Is(err, errQuotaExhausted) {
			quotaSpent = true
			continue
		}
		if err != nil {
			if errors.Is(err, social.ErrRateLimited) || ctx.Err() != nil {
				// back off for the rest of the tick
				return sent, true
			}
			log.Printf("executor: entry %d (%s): %v", entry.ID, entry.Action, err)
			continue
		}
		if !ok {
			continue
		}
		sent++

		// randomized pause between sends of a type keeps the cadence human
		floor := e.cfg.Outreach.ActionDelayFloor
		if err := sleepCtx(ctx, floor+e.jitter(floor)); err != nil {
			return sent, true
		}
	}
	return sent, false
}

// executeEntry runs one entry end to end. Returns (false, nil) when the
// entry was skipped or voided without a send.
func (e *Engine) executeEntry(ctx context.Context, entry *domain.ActionLogEntry) (bool, error) {
	payload, err := entry.DecodePayload()
	if err != nil {
		return false, e.store.MarkActionExecuted(ctx, entry.ID, "bad payload: "+err.Error())
	}
	if entry.ProspectID == nil {
		return false, e.store.MarkActionExecuted(ctx, entry.ID, "no prospect")
	}

	prospect, err := e.store.GetProspect(ctx, *entry.ProspectID)
	if err != nil {
		return false, err
	}
	if eligible, reason := e.eligibleForOutreach(prospect); !eligible {
		if _, err := e.store.CancelPendingSends(ctx, prospect.ID, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	// a reply that arrived after planning voids the scheduled ladder
	if entry.Action.FollowupStep() > 0 || entry.Action == domain.ActionSendFirstContact {
		inbound, err := e.store.LastInbound(ctx, prospect.ID)
		if err != nil {
			return false, err
		}
		if inbound != nil && inbound.SentAt.After(entry.CreatedAt) {
			n, err := e.store.CancelPendingSends(ctx, prospect.ID, "prospect_replied")
			if err != nil {
				return false, err
			}
			log.Printf("executor: prospect %d replied, %d planned sends cancelled", prospect.ID, n)
			return false, nil
		}
	}

	// unattended sends honor the daily ceiling; human-approved ones
	// already spent a decision and go out regardless
	if entry.ValidationStatus == domain.ValidationAutoExecute {
		allowed, err := e.quota.Allow(ctx, e.accountID, entry.Action)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, errQuotaExhausted // stays pending for tomorrow
		}
	}

	content := payload.Content
	if content == "" {
		content = payload.Reply
	}
	if content == "" {
		return false, e.store.MarkActionExecuted(ctx, entry.ID, "empty content")
	}

	if err := e.limiter.Await(ctx, ratelimit.CategoryMessage, "send"); err != nil {
		return false, err
	}
	msgID, err := e.client.StartChat(ctx, prospect.AttendeeID, content)
	if err != nil {
		if social.Retryable(err) {
			return false, err // left pending, retried next tick
		}
		return false, e.store.MarkActionExecuted(ctx, entry.ID, err.Error())
	}

	if err := e.store.MarkActionExecuted(ctx, entry.ID, ""); err != nil {
		if errors.Is(err, store.ErrAlreadyExecuted) {
			return false, nil
		}
		return false, err
	}

	if _, err := e.store.RecordMessage(ctx, &domain.Message{
		ProspectID: prospect.ID,
		AccountID:  e.accountID,
		SentBy:     domain.SentByAccount,
		Content:    content,
		Kind:       string(entry.Action),
		ExternalID: msgID,
		SentAt:     e.now().UTC(),
	}); err != nil {
		return false, err
	}

	if err := e.store.BumpDailyMetric(ctx, e.now().In(e.cfg.Location()), e.accountID, entry.Action, 1); err != nil {
		log.Printf("executor: bumping metric: %v", err)
	}
	return true, nil
}

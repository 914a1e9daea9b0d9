package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/notify"
)

// Approve clears a validation-gated entry and, when it is already due,
// sends it on the spot instead of waiting for the next executor tick.
// Reports whether a message actually went out. Re-approving an executed
// entry is a no-op.
func (e *Engine) Approve(ctx context.Context, actionID int64, modifiedContent string) (bool, error) {
	if err := e.store.ApproveAction(ctx, actionID, modifiedContent); err != nil {
		return false, err
	}
	log.Printf("validation: action %d approved", actionID)

	entry, err := e.store.GetAction(ctx, actionID)
	if err != nil {
		return false, err
	}
	if entry.Executed() {
		return false, nil
	}
	payload, err := entry.DecodePayload()
	if err == nil && payload.ScheduledAt.After(e.now().UTC()) {
		// future-dated steps keep their schedule; the executor sends them
		return false, nil
	}

	sent, err := e.executeEntry(ctx, entry)
	if err != nil {
		// retryable failures leave the entry approved for the executor
		log.Printf("validation: executing approved action %d: %v", actionID, err)
		return false, nil
	}
	return sent, nil
}

// Reject voids a validation-gated entry, recording why and under what
// category. Each fresh rejection counts against the prospect; hitting
// the limit closes the prospect and voids whatever else was planned for
// them. Returns the prospect's rejection count and whether this call
// closed them.
func (e *Engine) Reject(ctx context.Context, actionID int64, reason, category string) (int, bool, error) {
	entry, err := e.store.GetAction(ctx, actionID)
	if err != nil {
		return 0, false, err
	}

	already, err := e.store.RejectAction(ctx, actionID, reason, category)
	if err != nil {
		return 0, false, err
	}
	if entry.ProspectID == nil {
		return 0, false, nil
	}
	if already {
		prospect, err := e.store.GetProspect(ctx, *entry.ProspectID)
		if err != nil {
			return 0, false, err
		}
		return prospect.RejectionCount, prospect.Status == domain.ProspectClosed, nil
	}

	count, err := e.store.IncrementRejection(ctx, *entry.ProspectID)
	if err != nil {
		return 0, false, err
	}
	log.Printf("validation: action %d rejected (prospect %d, rejection %d/%d)",
		actionID, *entry.ProspectID, count, domain.MaxRejections)

	if count < domain.MaxRejections {
		return count, false, nil
	}

	if err := e.store.SetProspectStatus(ctx, *entry.ProspectID,
		domain.ProspectClosed, "too_many_rejections"); err != nil {
		return count, false, err
	}
	if _, err := e.store.CancelPendingSends(ctx, *entry.ProspectID, "too_many_rejections"); err != nil {
		return count, false, err
	}
	e.notifier.Send(notify.Notification{
		Title:      "Prospect auto-closed",
		Message:    fmt.Sprintf("%d rejected proposals, outreach stopped", count),
		Type:       notify.NotifyWarning,
		ProspectID: *entry.ProspectID,
	})
	return count, true, nil
}

// EnqueueManual schedules a user-written message for a prospect. It
// carries an approved status from the start: the user writing it is the
// validation, and approved entries bypass the daily quota.
func (e *Engine) EnqueueManual(ctx context.Context, prospectID int64, content string, at time.Time) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("empty message")
	}
	if at.IsZero() {
		at = e.now().UTC()
	}
	payload, err := json.Marshal(domain.ActionPayload{
		ScheduledAt: at.UTC(),
		Content:     content,
	})
	if err != nil {
		return 0, err
	}
	return e.store.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID:        e.accountID,
		ProspectID:       &prospectID,
		Action:           domain.ActionMessageProposed,
		Source:           domain.SourceUser,
		Priority:         50,
		ValidationStatus: domain.ValidationApproved,
		Payload:          payload,
	})
}

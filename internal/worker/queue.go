package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/avatar"
	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/notify"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
)

const retryDelay = 10 * time.Minute

// DispatchOnce drains due tasks up to the batch size, routing each to
// its handler. Handler failures consume one retry; the task queue itself
// never stops on a bad task.
func (e *Engine) DispatchOnce(ctx context.Context) error {
	for i := 0; i < e.cfg.Workers.BatchSize; i++ {
		task, err := e.store.ClaimNextTask(ctx, e.now().UTC())
		if err != nil {
			return fmt.Errorf("claiming task: %w", err)
		}
		if task == nil {
			return nil
		}

		result, err := e.handleTask(ctx, task)
		if err != nil {
			retrying, ferr := e.store.FailTask(ctx, task.ID, err.Error(), retryDelay)
			if ferr != nil {
				return ferr
			}
			log.Printf("queue: task %d (%s) failed (retrying=%v): %v", task.ID, task.Type, retrying, err)
			continue
		}
		if err := e.store.CompleteTask(ctx, task.ID, result); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleTask(ctx context.Context, task *domain.Task) (string, error) {
	switch task.Type {
	case domain.TaskProcessConnection:
		return e.processConnection(ctx, task)
	}
	return "", fmt.Errorf("no handler for task type %q", task.Type)
}

// processConnection onboards a freshly accepted connection: enrich the
// profile, run the avatar filter, and plan the outreach ladder for
// accepted prospects.
func (e *Engine) processConnection(ctx context.Context, task *domain.Task) (string, error) {
	var p domain.ConnectionPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return "", fmt.Errorf("decoding connection payload: %w", err)
	}
	if task.ProspectID == nil {
		return "", fmt.Errorf("connection task %d has no prospect", task.ID)
	}

	prospect, err := e.store.GetProspect(ctx, *task.ProspectID)
	if err != nil {
		return "", err
	}

	// enrich with the full profile when the connection event was thin
	if prospect.JobTitle == "" || prospect.Company == "" {
		if err := e.limiter.Await(ctx, ratelimit.CategoryRead, "profile"); err != nil {
			return "", err
		}
		full, err := e.client.GetProfile(ctx, prospect.Identifier)
		if err != nil {
			log.Printf("queue: profile fetch for %s failed, classifying on connection data: %v",
				prospect.Identifier, err)
		} else {
			prospect.FirstName = full.FirstName
			prospect.LastName = full.LastName
			prospect.Headline = full.Headline
			prospect.JobTitle = full.JobTitle
			prospect.Company = full.Company
			if _, err := e.store.UpsertProspect(ctx, prospect); err != nil {
				return "", err
			}
		}
	}

	verdict := e.filter.Resolve(ctx, prospect.Profile())
	match := verdict.Decision == avatar.Accept
	if err := e.store.SetAvatarMatch(ctx, prospect.ID, match, verdict.Reason); err != nil {
		return "", err
	}
	if !match {
		if e.cfg.Outreach.RequireAvatar {
			return "avatar_rejected: " + verdict.Reason, nil
		}
		log.Printf("queue: prospect %d is off-avatar (%s), planning anyway", prospect.ID, verdict.Reason)
		prospect.AvatarMatch = &match
	}

	if err := e.planOutreach(ctx, prospect); err != nil {
		return "", err
	}
	return "outreach_planned", nil
}

// planOutreach schedules the opener and the three-step follow-up ladder.
// The opener goes out within minutes; each ladder step gets a randomized
// jitter so sends do not land at mechanical offsets.
func (e *Engine) planOutreach(ctx context.Context, prospect *domain.Prospect) error {
	now := e.now().UTC()

	opener, err := e.composer.FirstContact(ctx, prospect.Profile())
	if err != nil {
		return fmt.Errorf("composing opener: %w", err)
	}
	if _, err := e.insertSend(ctx, prospect.ID, domain.ActionSendFirstContact,
		opener, now.Add(e.jitter(5*time.Minute)), 0); err != nil {
		return err
	}

	ladder := []domain.ActionType{
		domain.ActionSendFollowupA1,
		domain.ActionSendFollowupA2,
		domain.ActionSendFollowupA3,
	}
	delays := e.cfg.Outreach.FollowupDelaysDays
	for i, action := range ladder {
		if i >= len(delays) {
			break
		}
		at := now.AddDate(0, 0, delays[i]).
			Add(30*time.Minute + e.jitter(150*time.Minute))
		content := e.composer.Followup(prospect.Profile(), i+1)
		if _, err := e.insertSend(ctx, prospect.ID, action, content, at, i+1); err != nil {
			return err
		}
	}

	log.Printf("queue: outreach planned for prospect %d (%s)", prospect.ID, prospect.Identifier)
	e.notifier.Send(notify.Notification{
		Title:      "Outreach planned",
		Message:    fmt.Sprintf("%s %s (%s)", prospect.FirstName, prospect.LastName, prospect.Company),
		Type:       notify.NotifyInfo,
		ProspectID: prospect.ID,
	})
	return nil
}

func (e *Engine) insertSend(ctx context.Context, prospectID int64, action domain.ActionType,
	content string, at time.Time, followupNum int) (int64, error) {

	payload, err := json.Marshal(domain.ActionPayload{
		ScheduledAt: at,
		Content:     content,
		FollowupNum: followupNum,
	})
	if err != nil {
		return 0, err
	}
	return e.store.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID:  e.accountID,
		ProspectID: &prospectID,
		Action:     action,
		Source:     domain.SourceSystem,
		Priority:   100,
		Payload:    payload,
	})
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/notify"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
	"github.com/prospectra/outreach-orchestrator/internal/social"
)

// ReplyOnce handles unread conversations: sync messages, cancel planned
// ladders for prospects who answered, and run the conversation pipeline
// on each. Replies go out directly; only long-term recontact proposals
// are parked for human validation.
func (e *Engine) ReplyOnce(ctx context.Context) error {
	if err := e.limiter.Await(ctx, ratelimit.CategoryRead, "chats"); err != nil {
		return err
	}
	chats, err := e.client.ListUnreadChats(ctx)
	if err != nil {
		return fmt.Errorf("listing unread chats: %w", err)
	}

	for _, chat := range chats {
		if err := e.handleChat(ctx, chat); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("reply: chat %s: %v", chat.ID, err)
		}
	}
	return nil
}

func (e *Engine) handleChat(ctx context.Context, chat social.Chat) error {
	prospect, err := e.store.GetProspectByAttendee(ctx, e.accountID, chat.AttendeeID)
	if err != nil {
		return err
	}
	if prospect == nil {
		// not one of ours; leave the chat untouched
		return nil
	}

	newInbound, err := e.syncChat(ctx, prospect, chat)
	if err != nil {
		return err
	}

	if newInbound > 0 {
		if n, err := e.store.CancelPendingSends(ctx, prospect.ID, "prospect_replied"); err != nil {
			return err
		} else if n > 0 {
			log.Printf("reply: prospect %d answered, %d planned sends cancelled", prospect.ID, n)
		}
	}

	switch prospect.Status {
	case domain.ProspectArchived, domain.ProspectClosed, domain.ProspectRejected:
		return e.markRead(ctx, chat)
	}

	// per-conversation throttle: never answer twice in quick succession
	last, err := e.store.LastMessage(ctx, prospect.ID)
	if err != nil {
		return err
	}
	if last != nil && last.SentBy == domain.SentByAccount &&
		e.now().Sub(last.SentAt) < e.cfg.Outreach.ReplyThrottle {
		return nil
	}

	history, err := e.store.Conversation(ctx, prospect.ID)
	if err != nil {
		return err
	}

	outcome, err := e.pipeline.Respond(ctx, history, prospect.Profile())
	if err != nil {
		return fmt.Errorf("conversation pipeline: %w", err)
	}

	switch outcome.Directive.ConversationAction {
	case domain.ConversationReply:
		if err := e.sendReply(ctx, prospect, chat, outcome.Reply); err != nil {
			return err
		}
	case domain.ConversationArchive:
		if err := e.store.SetProspectStatus(ctx, prospect.ID, domain.ProspectArchived,
			outcome.Directive.ActionReason); err != nil {
			return err
		}
		log.Printf("reply: prospect %d archived: %s", prospect.ID, outcome.Directive.ActionReason)
	case domain.ConversationClose:
		if err := e.store.SetProspectStatus(ctx, prospect.ID, domain.ProspectClosed,
			outcome.Directive.ActionReason); err != nil {
			return err
		}
		e.notifier.Send(notify.Notification{
			Title:      "Conversation closed",
			Message:    outcome.Directive.ActionReason,
			Type:       notify.NotifyWarning,
			ProspectID: prospect.ID,
		})
	}

	// park an explicit "recontact me later" ask for human review
	if newInbound > 0 {
		if err := e.proposeLongTerm(ctx, prospect, history); err != nil {
			log.Printf("reply: long-term detection for prospect %d: %v", prospect.ID, err)
		}
	}

	return e.markRead(ctx, chat)
}

// syncChat mirrors the provider conversation into the store and returns
// how many new inbound messages appeared.
func (e *Engine) syncChat(ctx context.Context, prospect *domain.Prospect, chat social.Chat) (int, error) {
	if err := e.limiter.Await(ctx, ratelimit.CategoryRead, "messages"); err != nil {
		return 0, err
	}
	msgs, err := e.client.ListMessages(ctx, chat.ID)
	if err != nil {
		return 0, fmt.Errorf("listing messages: %w", err)
	}

	newInbound := 0
	for _, m := range msgs {
		sender := domain.SentByProspect
		if m.FromSelf {
			sender = domain.SentByAccount
		}
		inserted, err := e.store.RecordMessage(ctx, &domain.Message{
			ProspectID: prospect.ID,
			AccountID:  e.accountID,
			SentBy:     sender,
			Content:    m.Text,
			Kind:       "sync",
			ExternalID: m.ID,
			SentAt:     m.Timestamp,
		})
		if err != nil {
			return newInbound, err
		}
		if inserted && sender == domain.SentByProspect {
			newInbound++
		}
	}
	return newInbound, nil
}

func (e *Engine) sendReply(ctx context.Context, prospect *domain.Prospect, chat social.Chat, reply string) error {
	if err := e.limiter.Await(ctx, ratelimit.CategoryMessage, "send"); err != nil {
		return err
	}
	msgID, err := e.client.SendMessage(ctx, chat.ID, reply)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	if _, err := e.store.RecordMessage(ctx, &domain.Message{
		ProspectID: prospect.ID,
		AccountID:  e.accountID,
		SentBy:     domain.SentByAccount,
		Content:    reply,
		Kind:       "reply",
		ExternalID: msgID,
		SentAt:     e.now().UTC(),
	}); err != nil {
		return err
	}
	log.Printf("reply: answered prospect %d (%d chars)", prospect.ID, len(reply))
	return nil
}

// proposeLongTerm files a validation-gated follow-up proposal when the
// prospect explicitly asked to be recontacted later.
func (e *Engine) proposeLongTerm(ctx context.Context, prospect *domain.Prospect, history []domain.Message) error {
	var lastInbound *domain.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SentBy == domain.SentByProspect {
			lastInbound = &history[i]
			break
		}
	}
	if lastInbound == nil {
		return nil
	}

	req, err := e.pipeline.DetectLongTerm(ctx, lastInbound.Content)
	if err != nil || !req.Detected {
		return err
	}

	payload, err := json.Marshal(domain.ActionPayload{
		ScheduledAt: e.now().UTC().AddDate(0, 0, 30),
		Content:     e.composer.Revival(prospect.Profile()),
		Reason:      fmt.Sprintf("prospect asked to be recontacted (%s): %s", req.Date, req.Reason),
	})
	if err != nil {
		return err
	}
	id, err := e.store.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID:          e.accountID,
		ProspectID:         &prospect.ID,
		Action:             domain.ActionFollowupProposed,
		Source:             domain.SourceLLM,
		Priority:           100,
		RequiresValidation: true,
		Payload:            payload,
	})
	if err != nil {
		return err
	}
	e.notifier.Send(notify.Notification{
		Title:      "Long-term follow-up proposed",
		Message:    fmt.Sprintf("%s %s asked to be recontacted: %s", prospect.FirstName, prospect.LastName, req.Reason),
		Type:       notify.NotifyInfo,
		ProspectID: prospect.ID,
		ActionID:   id,
	})
	return nil
}

func (e *Engine) markRead(ctx context.Context, chat social.Chat) error {
	if err := e.limiter.Await(ctx, ratelimit.CategoryRead, "mark_read"); err != nil {
		return err
	}
	if err := e.client.MarkRead(ctx, chat.ID); err != nil {
		return fmt.Errorf("marking chat read: %w", err)
	}
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
)

// ScanOnce pulls recently accepted connections from the provider and
// enqueues a processing task per new prospect. The dedup key keeps
// overlapping scans from queueing the same connection twice.
func (e *Engine) ScanOnce(ctx context.Context) error {
	if err := e.limiter.Await(ctx, ratelimit.CategoryRead, "connections"); err != nil {
		return err
	}

	since := e.now().AddDate(0, 0, -e.cfg.Outreach.CutoffDays)
	conns, err := e.client.ListConnections(ctx, since)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	queued := 0
	for _, c := range conns {
		prospectID, err := e.store.UpsertProspect(ctx, &domain.Prospect{
			AccountID:  e.accountID,
			Identifier: c.Identifier,
			AttendeeID: c.AttendeeID,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Headline:   c.Headline,
			AvatarURL:  c.AvatarURL,
			Status:     domain.ProspectConnected,
		})
		if err != nil {
			log.Printf("scan: upserting %s: %v", c.Identifier, err)
			continue
		}

		payload, err := json.Marshal(domain.ConnectionPayload{
			Identifier:  c.Identifier,
			AttendeeID:  c.AttendeeID,
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			Headline:    c.Headline,
			AvatarURL:   c.AvatarURL,
			ConnectedAt: c.ConnectedAt,
		})
		if err != nil {
			return err
		}

		id, err := e.store.EnqueueTask(ctx, &domain.Task{
			Type:        domain.TaskProcessConnection,
			AccountID:   e.accountID,
			ProspectID:  &prospectID,
			Priority:    100,
			Payload:     payload,
			ScheduledAt: e.now().UTC(),
		}, "connection:"+c.Identifier)
		if err != nil {
			log.Printf("scan: enqueueing %s: %v", c.Identifier, err)
			continue
		}
		if id != 0 {
			queued++
		}
	}

	if queued > 0 {
		log.Printf("scan: %d connections found, %d tasks queued", len(conns), queued)
	}
	return nil
}

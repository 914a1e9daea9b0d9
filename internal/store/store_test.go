package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func payload(t *testing.T, p domain.ActionPayload) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func seedProspect(t *testing.T, s *Store, identifier string) int64 {
	t.Helper()
	id, err := s.UpsertProspect(context.Background(), &domain.Prospect{
		AccountID:  1,
		Identifier: identifier,
		FirstName:  "Nina",
		Status:     domain.ProspectConnected,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestEnqueueAndClaimOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	low, err := s.EnqueueTask(ctx, &domain.Task{
		Type: domain.TaskProcessConnection, AccountID: 1, Priority: 200, ScheduledAt: now.Add(-time.Hour),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	high, err := s.EnqueueTask(ctx, &domain.Task{
		Type: domain.TaskProcessConnection, AccountID: 1, Priority: 10, ScheduledAt: now.Add(-time.Minute),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	// scheduled in the future, must not be claimable
	if _, err := s.EnqueueTask(ctx, &domain.Task{
		Type: domain.TaskProcessConnection, AccountID: 1, ScheduledAt: now.Add(time.Hour),
	}, ""); err != nil {
		t.Fatal(err)
	}

	first, err := s.ClaimNextTask(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first.ID != high {
		t.Fatalf("claimed %+v, want priority-10 task %d", first, high)
	}
	if first.Status != domain.TaskProcessing || first.StartedAt == nil {
		t.Errorf("claimed task not marked processing: %+v", first)
	}

	second, err := s.ClaimNextTask(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.ID != low {
		t.Fatalf("claimed %+v, want task %d", second, low)
	}

	third, err := s.ClaimNextTask(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if third != nil {
		t.Errorf("future task claimed early: %+v", third)
	}
}

func TestEnqueueDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.EnqueueTask(ctx, &domain.Task{Type: domain.TaskProcessConnection, AccountID: 1}, "conn:alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.EnqueueTask(ctx, &domain.Task{Type: domain.TaskProcessConnection, AccountID: 1}, "conn:alice")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("duplicate enqueue created a second task: %d vs %d", a, b)
	}

	// once the original completes, the key may be reused
	if err := s.CompleteTask(ctx, a, "done"); err != nil {
		t.Fatal(err)
	}
	c, err := s.EnqueueTask(ctx, &domain.Task{Type: domain.TaskProcessConnection, AccountID: 1}, "conn:alice")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("completed task should not block re-enqueue")
	}
}

func TestFailTaskRetriesThenFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.EnqueueTask(ctx, &domain.Task{
		Type: domain.TaskProcessConnection, AccountID: 1, MaxRetries: 2,
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		retrying, err := s.FailTask(ctx, id, "boom", 0)
		if err != nil {
			t.Fatal(err)
		}
		if !retrying {
			t.Fatalf("attempt %d should retry", i+1)
		}
		task, _ := s.GetTask(ctx, id)
		if task.Status != domain.TaskPending {
			t.Fatalf("retrying task status = %s", task.Status)
		}
	}

	retrying, err := s.FailTask(ctx, id, "boom", 0)
	if err != nil {
		t.Fatal(err)
	}
	if retrying {
		t.Error("retry budget exhausted, task should fail for good")
	}
	task, _ := s.GetTask(ctx, id)
	if task.Status != domain.TaskFailed || task.RetryCount != 2 {
		t.Errorf("task = %+v, want failed after 2 retries", task)
	}
}

func TestDueActionsGatingAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	pid := seedProspect(t, s, "nina")

	insert := func(action domain.ActionType, prio int, at time.Time, vs domain.ValidationStatus, reqVal bool) int64 {
		id, err := s.InsertAction(ctx, &domain.ActionLogEntry{
			AccountID: 1, ProspectID: &pid, Action: action, Source: domain.SourceSystem,
			Priority: prio, RequiresValidation: reqVal, ValidationStatus: vs,
			Payload: payload(t, domain.ActionPayload{ScheduledAt: at, Content: "hi"}),
		})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	due1 := insert(domain.ActionSendFirstContact, 50, now.Add(-time.Hour), "", false)
	due2 := insert(domain.ActionSendFollowupA1, 10, now.Add(-time.Minute), "", false)
	insert(domain.ActionSendFollowupB, 1, now.Add(time.Hour), "", false)                       // future
	insert(domain.ActionSendFollowupC, 1, now.Add(-time.Hour), domain.ValidationPending, true) // awaiting human

	got, err := s.DueActions(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("due = %d entries, want 2", len(got))
	}
	if got[0].ID != due2 || got[1].ID != due1 {
		t.Errorf("order = [%d %d], want priority order [%d %d]", got[0].ID, got[1].ID, due2, due1)
	}
}

func TestMarkActionExecutedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")

	id, err := s.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID: 1, ProspectID: &pid, Action: domain.ActionSendFirstContact,
		Source: domain.SourceSystem,
		Payload: payload(t, domain.ActionPayload{
			ScheduledAt: time.Now().UTC().Add(-time.Minute), Content: "hi",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.MarkActionExecuted(ctx, id, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkActionExecuted(ctx, id, ""); !errors.Is(err, ErrAlreadyExecuted) {
		t.Errorf("second execution err = %v, want ErrAlreadyExecuted", err)
	}

	e, _ := s.GetAction(ctx, id)
	if e.Status != domain.EntrySuccess || e.ExecutedAt == nil {
		t.Errorf("entry = %+v", e)
	}
	if e.ValidationStatus != domain.ValidationAutoExecuted {
		t.Errorf("validation status = %s, want auto_executed", e.ValidationStatus)
	}
}

func TestApproveIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")

	id, err := s.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID: 1, ProspectID: &pid, Action: domain.ActionMessageProposed,
		Source: domain.SourceLLM, RequiresValidation: true,
		Payload: payload(t, domain.ActionPayload{ScheduledAt: time.Now().UTC(), Content: "draft"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ApproveAction(ctx, id, "edited message"); err != nil {
		t.Fatal(err)
	}
	// approving again is a no-op, not an error
	if err := s.ApproveAction(ctx, id, "other edit"); err != nil {
		t.Errorf("second approve: %v", err)
	}

	e, _ := s.GetAction(ctx, id)
	if e.ValidationStatus != domain.ValidationApproved {
		t.Errorf("validation status = %s", e.ValidationStatus)
	}
	p, err := e.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if p.Content != "edited message" {
		t.Errorf("content = %q, second approve must not overwrite", p.Content)
	}

	// approved entries become due
	due, _ := s.DueActions(ctx, time.Now().UTC().Add(time.Minute), 10)
	found := false
	for _, d := range due {
		if d.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("approved entry should be executable")
	}
}

func TestApproveAfterRejectFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")

	id, _ := s.InsertAction(ctx, &domain.ActionLogEntry{
		AccountID: 1, ProspectID: &pid, Action: domain.ActionMessageProposed,
		Source: domain.SourceLLM, RequiresValidation: true,
		Payload: payload(t, domain.ActionPayload{ScheduledAt: time.Now().UTC()}),
	})

	already, err := s.RejectAction(ctx, id, "off brand", "tone")
	if err != nil || already {
		t.Fatalf("first reject: already=%v err=%v", already, err)
	}
	already, err = s.RejectAction(ctx, id, "again", "tone")
	if err != nil || !already {
		t.Fatalf("second reject: already=%v err=%v", already, err)
	}

	rejected, err := s.GetAction(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rejected.RejectionCategory != "tone" {
		t.Errorf("rejection category = %q, want tone", rejected.RejectionCategory)
	}

	if err := s.ApproveAction(ctx, id, ""); err == nil {
		t.Error("approving a rejected entry should fail")
	}
}

func TestCancelPendingSends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")
	now := time.Now().UTC()

	for _, a := range []domain.ActionType{domain.ActionSendFollowupA1, domain.ActionSendFollowupA2} {
		if _, err := s.InsertAction(ctx, &domain.ActionLogEntry{
			AccountID: 1, ProspectID: &pid, Action: a, Source: domain.SourceSystem,
			Payload: payload(t, domain.ActionPayload{ScheduledAt: now.Add(24 * time.Hour)}),
		}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CancelPendingSends(ctx, pid, "prospect replied")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("cancelled %d, want 2", n)
	}

	due, _ := s.DueActions(ctx, now.Add(48*time.Hour), 10)
	if len(due) != 0 {
		t.Errorf("cancelled sends still due: %d", len(due))
	}
}

func TestCountExecutedToday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		id, err := s.InsertAction(ctx, &domain.ActionLogEntry{
			AccountID: 1, ProspectID: &pid, Action: domain.ActionSendFirstContact,
			Source:  domain.SourceSystem,
			Payload: payload(t, domain.ActionPayload{ScheduledAt: now.Add(-time.Hour)}),
		})
		if err != nil {
			t.Fatal(err)
		}
		execErr := ""
		if i == 2 {
			execErr = "provider refused" // failures do not count
		}
		if err := s.MarkActionExecuted(ctx, id, execErr); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountExecutedToday(ctx, 1, domain.ActionSendFirstContact, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2 successes", n)
	}

	n, _ = s.CountExecutedToday(ctx, 1, domain.ActionSendFollowupB, now)
	if n != 0 {
		t.Errorf("unrelated action counted: %d", n)
	}
}

func TestUpsertProspectKeepsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := seedProspect(t, s, "nina")
	if err := s.SetAvatarMatch(ctx, id, true, "whitelist_title"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementRejection(ctx, id); err != nil {
		t.Fatal(err)
	}

	// a later sync refreshes the profile but not the lifecycle
	again, err := s.UpsertProspect(ctx, &domain.Prospect{
		AccountID: 1, Identifier: "nina", FirstName: "Nina", Headline: "CEO @ Lune",
	})
	if err != nil {
		t.Fatal(err)
	}
	if again != id {
		t.Fatalf("upsert created a second row: %d vs %d", again, id)
	}

	p, _ := s.GetProspect(ctx, id)
	if p.Headline != "CEO @ Lune" {
		t.Errorf("headline not refreshed: %q", p.Headline)
	}
	if p.AvatarMatch == nil || !*p.AvatarMatch {
		t.Error("avatar verdict lost on upsert")
	}
	if p.RejectionCount != 1 {
		t.Errorf("rejection count lost: %d", p.RejectionCount)
	}
	if p.Status != domain.ProspectConnected {
		t.Errorf("status lost: %s", p.Status)
	}
}

func TestIncrementRejection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedProspect(t, s, "nina")

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementRejection(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("count = %d, want %d", n, want)
		}
	}
}

func TestRecordMessageDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")
	now := time.Now().UTC()

	m := &domain.Message{
		ProspectID: pid, AccountID: 1, SentBy: domain.SentByProspect,
		Content: "Salut !", ExternalID: "ext-1", SentAt: now,
	}
	inserted, err := s.RecordMessage(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.RecordMessage(ctx, &domain.Message{
		ProspectID: pid, AccountID: 1, SentBy: domain.SentByProspect,
		Content: "Salut !", ExternalID: "ext-1", SentAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("same external id inserted twice")
	}

	// messages without an external id never collide
	for i := 0; i < 2; i++ {
		inserted, err := s.RecordMessage(ctx, &domain.Message{
			ProspectID: pid, AccountID: 1, SentBy: domain.SentByAccount,
			Content: "manual note", SentAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil || !inserted {
			t.Fatalf("no-id insert %d: inserted=%v err=%v", i, inserted, err)
		}
	}

	conv, err := s.Conversation(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 3 {
		t.Errorf("conversation has %d messages, want 3", len(conv))
	}
}

func TestLastInbound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := seedProspect(t, s, "nina")
	now := time.Now().UTC()

	last, err := s.LastInbound(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Error("no messages yet, want nil")
	}

	s.RecordMessage(ctx, &domain.Message{ProspectID: pid, AccountID: 1, SentBy: domain.SentByAccount, Content: "hi", SentAt: now.Add(-2 * time.Hour)})
	s.RecordMessage(ctx, &domain.Message{ProspectID: pid, AccountID: 1, SentBy: domain.SentByProspect, Content: "hello", SentAt: now.Add(-time.Hour)})
	s.RecordMessage(ctx, &domain.Message{ProspectID: pid, AccountID: 1, SentBy: domain.SentByAccount, Content: "great", SentAt: now})

	last, err = s.LastInbound(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Content != "hello" {
		t.Errorf("last inbound = %+v, want the prospect's message", last)
	}

	msg, _ := s.LastMessage(ctx, pid)
	if msg == nil || msg.Content != "great" {
		t.Errorf("last message = %+v", msg)
	}
}

func TestStaleProspects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	quiet := seedProspect(t, s, "quiet")
	s.RecordMessage(ctx, &domain.Message{ProspectID: quiet, AccountID: 1, SentBy: domain.SentByAccount, Content: "hi", SentAt: now.Add(-10 * 24 * time.Hour)})

	active := seedProspect(t, s, "active")
	s.RecordMessage(ctx, &domain.Message{ProspectID: active, AccountID: 1, SentBy: domain.SentByAccount, Content: "hi", SentAt: now.Add(-10 * 24 * time.Hour)})
	s.RecordMessage(ctx, &domain.Message{ProspectID: active, AccountID: 1, SentBy: domain.SentByProspect, Content: "hey!", SentAt: now.Add(-9 * 24 * time.Hour)})

	fresh := seedProspect(t, s, "fresh")
	s.RecordMessage(ctx, &domain.Message{ProspectID: fresh, AccountID: 1, SentBy: domain.SentByAccount, Content: "hi", SentAt: now.Add(-time.Hour)})

	stale, err := s.StaleProspects(ctx, 1, now.Add(-5*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != quiet {
		ids := make([]int64, 0, len(stale))
		for _, p := range stale {
			ids = append(ids, p.ID)
		}
		t.Errorf("stale = %v, want only the unanswered prospect %d", ids, quiet)
	}
}

func TestDailyMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

	if err := s.BumpDailyMetric(ctx, day, 1, domain.ActionSendFirstContact, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.BumpDailyMetric(ctx, day, 1, domain.ActionSendFirstContact, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDailyMetric(ctx, day, 1, domain.ActionSendFollowupB, 7); err != nil {
		t.Fatal(err)
	}

	rows, err := s.DailyMetrics(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	got := map[domain.ActionType]int{}
	for _, r := range rows {
		got[r.Action] = r.Count
	}
	if got[domain.ActionSendFirstContact] != 3 {
		t.Errorf("first_contact = %d, want 3", got[domain.ActionSendFirstContact])
	}
	if got[domain.ActionSendFollowupB] != 7 {
		t.Errorf("followup_b = %d, want 7", got[domain.ActionSendFollowupB])
	}
}

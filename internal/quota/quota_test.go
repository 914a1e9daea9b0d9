package quota

import (
	"context"
	"testing"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

type fixedLimits map[domain.ActionType]int

func (f fixedLimits) DailyLimit(a domain.ActionType) int { return f[a] }

type fixedCounter map[domain.ActionType]int

func (f fixedCounter) CountExecutedToday(_ context.Context, _ int64, a domain.ActionType, _ time.Time) (int, error) {
	return f[a], nil
}

func TestDailyCeilingDeterministic(t *testing.T) {
	day := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)

	first := DailyCeiling(day, domain.ActionSendFirstContact, 50)
	for i := 0; i < 10; i++ {
		if got := DailyCeiling(day, domain.ActionSendFirstContact, 50); got != first {
			t.Fatalf("ceiling not stable within a day: %d then %d", first, got)
		}
	}

	// time of day must not matter, only the date
	evening := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	if got := DailyCeiling(evening, domain.ActionSendFirstContact, 50); got != first {
		t.Errorf("ceiling varies within one date: %d vs %d", first, got)
	}
}

func TestDailyCeilingBounds(t *testing.T) {
	base := 50
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 365; i++ {
		d := day.AddDate(0, 0, i)
		got := DailyCeiling(d, domain.ActionSendFollowupA1, base)
		if got < 45 || got > 49 {
			t.Errorf("%s: ceiling %d outside [45, 49] for base %d",
				d.Format("2006-01-02"), got, base)
		}
	}
}

func TestDailyCeilingVariesByDayAndAction(t *testing.T) {
	base := 1000 // large base so the factor spread is visible
	d1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	seen := map[int]bool{}
	for i := 0; i < 30; i++ {
		seen[DailyCeiling(d1.AddDate(0, 0, i), domain.ActionSendFirstContact, base)] = true
	}
	if len(seen) < 2 {
		t.Error("ceiling never varies across days")
	}

	a := DailyCeiling(d1, domain.ActionSendFirstContact, base)
	b := DailyCeiling(d1, domain.ActionSendFollowupB, base)
	c := DailyCeiling(d1, domain.ActionSendFollowupC, base)
	if a == b && b == c {
		t.Error("ceiling identical across action types, seed likely ignores action")
	}
}

func TestDailyCeilingSmallBase(t *testing.T) {
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	if got := DailyCeiling(day, domain.ActionSendFollowupC, 1); got != 1 {
		t.Errorf("base 1 should floor at 1, got %d", got)
	}
	if got := DailyCeiling(day, domain.ActionSendFollowupC, 0); got != 0 {
		t.Errorf("base 0 disables the action, got %d", got)
	}
}

func TestStatusAndAllow(t *testing.T) {
	limits := fixedLimits{domain.ActionSendFirstContact: 50}
	ceiling := DailyCeiling(time.Now().UTC(), domain.ActionSendFirstContact, 50)

	eng := New(limits, fixedCounter{domain.ActionSendFirstContact: ceiling - 1}, time.UTC)
	st, err := eng.Status(context.Background(), 1, domain.ActionSendFirstContact)
	if err != nil {
		t.Fatal(err)
	}
	if st.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", st.Remaining)
	}
	if ok, _ := eng.Allow(context.Background(), 1, domain.ActionSendFirstContact); !ok {
		t.Error("one slot left, Allow should be true")
	}

	eng = New(limits, fixedCounter{domain.ActionSendFirstContact: ceiling}, time.UTC)
	if ok, _ := eng.Allow(context.Background(), 1, domain.ActionSendFirstContact); ok {
		t.Error("at ceiling, Allow should be false")
	}

	// used beyond ceiling must clamp, not go negative
	eng = New(limits, fixedCounter{domain.ActionSendFirstContact: ceiling + 5}, time.UTC)
	st, _ = eng.Status(context.Background(), 1, domain.ActionSendFirstContact)
	if st.Remaining != 0 {
		t.Errorf("remaining = %d, want 0 when over ceiling", st.Remaining)
	}
}

func TestOverviewCoversAllSendActions(t *testing.T) {
	limits := fixedLimits{}
	for _, a := range domain.SendActions {
		limits[a] = 10
	}
	eng := New(limits, fixedCounter{}, time.UTC)
	out, err := eng.Overview(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(domain.SendActions) {
		t.Errorf("overview has %d entries, want %d", len(out), len(domain.SendActions))
	}
}

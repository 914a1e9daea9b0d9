package quota

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// Limits resolves the configured base daily limit per action type
type Limits interface {
	DailyLimit(action domain.ActionType) int
}

// Counter reports how many actions of a type were executed on a given day
type Counter interface {
	CountExecutedToday(ctx context.Context, accountID int64, action domain.ActionType, day time.Time) (int, error)
}

// Engine computes randomized daily ceilings and answers quota checks.
// Ceilings are deterministic per (day, action): everyone asking on the
// same day gets the same number, and it changes overnight.
type Engine struct {
	limits  Limits
	counter Counter
	loc     *time.Location
}

// New creates a quota engine. The location decides when "today" rolls over.
func New(limits Limits, counter Counter, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{limits: limits, counter: counter, loc: loc}
}

// DailyCeiling returns the effective limit for an action on a given day:
// the configured base scaled by a deterministic factor in [0.90, 0.99),
// floored, never below 1. A base of zero disables the action entirely.
func DailyCeiling(day time.Time, action domain.ActionType, base int) int {
	if base <= 0 {
		return 0
	}
	factor := 0.90 + seededRand(day, action).Float64()*0.09
	ceiling := int(float64(base) * factor)
	if ceiling < 1 {
		ceiling = 1
	}
	return ceiling
}

func seededRand(day time.Time, action domain.ActionType) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", day.Format("2006-01-02"), action)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// Status is a point-in-time view of one action type's quota
type Status struct {
	Action    domain.ActionType `json:"action"`
	Base      int               `json:"base"`
	Ceiling   int               `json:"ceiling"`
	Used      int               `json:"used"`
	Remaining int               `json:"remaining"`
}

// Ceiling returns today's effective limit for an action
func (e *Engine) Ceiling(action domain.ActionType) int {
	return DailyCeiling(time.Now().In(e.loc), action, e.limits.DailyLimit(action))
}

// Status reports today's usage against the ceiling for one action type
func (e *Engine) Status(ctx context.Context, accountID int64, action domain.ActionType) (Status, error) {
	now := time.Now().In(e.loc)
	base := e.limits.DailyLimit(action)
	ceiling := DailyCeiling(now, action, base)

	used, err := e.counter.CountExecutedToday(ctx, accountID, action, now)
	if err != nil {
		return Status{}, fmt.Errorf("counting %s actions: %w", action, err)
	}

	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Action:    action,
		Base:      base,
		Ceiling:   ceiling,
		Used:      used,
		Remaining: remaining,
	}, nil
}

// Allow reports whether one more action of this type fits under today's
// ceiling for the account.
func (e *Engine) Allow(ctx context.Context, accountID int64, action domain.ActionType) (bool, error) {
	st, err := e.Status(ctx, accountID, action)
	if err != nil {
		return false, err
	}
	return st.Remaining > 0, nil
}

// Overview returns the quota status of every unattended send action
func (e *Engine) Overview(ctx context.Context, accountID int64) ([]Status, error) {
	out := make([]Status, 0, len(domain.SendActions))
	for _, action := range domain.SendActions {
		st, err := e.Status(ctx, accountID, action)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Category groups endpoints by how aggressively the provider polices them
type Category string

const (
	CategoryConnection Category = "connection_request"
	CategoryMessage    Category = "message"
	CategoryRead       Category = "read"
	CategoryDefault    Category = "default"
)

const window = time.Minute

// minDelay is the minimum spacing between two calls to the same endpoint
func (c Category) minDelay() time.Duration {
	switch c {
	case CategoryConnection:
		return 300 * time.Second
	case CategoryMessage:
		return 90 * time.Second
	case CategoryRead:
		return 3 * time.Second
	}
	return 45 * time.Second
}

// perMinute is the sliding-window cap for the whole category
func (c Category) perMinute() int {
	if c == CategoryRead {
		return 20
	}
	return 10
}

// Limiter spaces outbound provider calls: a minimum delay per
// (category, endpoint) and a sliding one-minute cap shared by every
// endpoint of a category. State is persisted so restarts do not forget
// recent activity.
type Limiter struct {
	mu        sync.Mutex
	path      string
	endpoints map[string]time.Time   // last call per category:endpoint
	windows   map[string][]time.Time // calls in the last minute per category
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// limiterState is the persisted form of the limiter
type limiterState struct {
	Endpoints map[string]time.Time   `json:"endpoints"`
	Windows   map[string][]time.Time `json:"windows"`
}

// New loads limiter state from path, starting empty when the file is
// missing or unreadable. An empty path disables persistence.
func New(path string) *Limiter {
	l := &Limiter{
		path:      path,
		endpoints: make(map[string]time.Time),
		windows:   make(map[string][]time.Time),
		now:       time.Now,
		sleep:     ctxSleep,
	}
	l.load()
	return l
}

func key(cat Category, endpoint string) string {
	return string(cat) + ":" + endpoint
}

// Await blocks until a call on (cat, endpoint) is allowed, then records
// it. Returns early with the context error on cancellation. Waits are
// recomputed after each sleep so concurrent callers cannot share a slot.
func (l *Limiter) Await(ctx context.Context, cat Category, endpoint string) error {
	for {
		l.mu.Lock()
		wait := l.required(cat, endpoint)
		if wait <= 0 {
			l.record(cat, endpoint)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Wait reports how long a caller would currently block on (cat, endpoint)
func (l *Limiter) Wait(cat Category, endpoint string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.required(cat, endpoint)
}

// required computes the remaining wait; callers hold mu. The minute
// window is checked per category: a burst on one endpoint throttles
// every endpoint of the same class.
func (l *Limiter) required(cat Category, endpoint string) time.Duration {
	now := l.now()

	var wait time.Duration
	if last, ok := l.endpoints[key(cat, endpoint)]; ok {
		if d := cat.minDelay() - now.Sub(last); d > wait {
			wait = d
		}
	}

	calls := prune(l.windows[string(cat)], now)
	l.windows[string(cat)] = calls
	if len(calls) >= cat.perMinute() {
		// wait until the oldest call in the window expires
		if d := window - now.Sub(calls[0]); d > wait {
			wait = d
		}
	}
	return wait
}

// record marks a call as happening now; callers hold mu
func (l *Limiter) record(cat Category, endpoint string) {
	now := l.now()
	l.endpoints[key(cat, endpoint)] = now
	l.windows[string(cat)] = append(prune(l.windows[string(cat)], now), now)
	l.save()
}

func prune(calls []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	i := sort.Search(len(calls), func(i int) bool { return calls[i].After(cutoff) })
	return calls[i:]
}

func (l *Limiter) load() {
	if l.path == "" {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var state limiterState
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}
	if state.Endpoints != nil {
		l.endpoints = state.Endpoints
	}
	if state.Windows != nil {
		l.windows = state.Windows
	}
}

// save persists state best-effort; a failed write only costs accuracy
// across a restart, never a missed delay at runtime.
func (l *Limiter) save() {
	if l.path == "" {
		return
	}
	data, err := json.MarshalIndent(limiterState{Endpoints: l.endpoints, Windows: l.windows}, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	_ = os.Rename(tmp, l.path)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

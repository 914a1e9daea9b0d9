package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Window is the daily time range during which loops are allowed to act.
// Outside it, loops sleep until the window reopens.
type Window struct {
	StartHour int
	EndHour   int
	Loc       *time.Location
}

// Open reports whether t falls inside the active window
func (w Window) Open(t time.Time) bool {
	h := t.In(w.Loc).Hour()
	return h >= w.StartHour && h < w.EndHour
}

// NextOpen returns the next moment the window opens at or after t
func (w Window) NextOpen(t time.Time) time.Time {
	lt := t.In(w.Loc)
	open := time.Date(lt.Year(), lt.Month(), lt.Day(), w.StartHour, 0, 0, 0, w.Loc)
	if !lt.Before(open) && lt.Hour() < w.EndHour {
		return t
	}
	if lt.Hour() >= w.EndHour {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// LoopFunc is one iteration of a polling loop
type LoopFunc func(ctx context.Context) error

type loop struct {
	name     string
	interval time.Duration
	fn       LoopFunc

	cancel  context.CancelFunc
	done    chan struct{}
	runID   string
	lastRun time.Time
	lastErr string
}

// LoopStatus is a point-in-time view of one loop
type LoopStatus struct {
	Name     string        `json:"name"`
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	RunID    string        `json:"run_id,omitempty"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	LastErr  string        `json:"last_error,omitempty"`
}

// Supervisor owns the named polling loops: registration, lifecycle and
// the shared active-hours window. Loops run independently; one loop
// crashing its iteration never affects the others.
type Supervisor struct {
	mu      sync.Mutex
	loops   map[string]*loop
	order   []string
	window  Window
	baseCtx context.Context
	now     func() time.Time
}

// NewSupervisor creates a supervisor with the given active window
func NewSupervisor(window Window) *Supervisor {
	if window.Loc == nil {
		window.Loc = time.UTC
	}
	return &Supervisor{
		loops:   make(map[string]*loop),
		window:  window,
		baseCtx: context.Background(),
		now:     time.Now,
	}
}

// Register adds a named loop. Registration order is the warm-up order:
// feeders before consumers.
func (s *Supervisor) Register(name string, interval time.Duration, fn LoopFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.loops[name]; exists {
		return
	}
	s.loops[name] = &loop{name: name, interval: interval, fn: fn}
	s.order = append(s.order, name)
}

// StartAll adopts ctx as the lifetime of every loop, runs one warm-up
// pass of each idle loop synchronously in registration order, then
// launches the periodic goroutines. The warm-up is skipped when the
// active window is closed; the loops then wait for it to open.
func (s *Supervisor) StartAll(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	warm := s.window.Open(s.now())
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		warmed := warm && !s.running(name)
		if warmed {
			s.warmUp(ctx, name)
		}
		if err := s.start(name, warmed); err != nil {
			log.Printf("worker: starting %s: %v", name, err)
		}
	}
}

// Start launches one loop on the supervisor's own context, so a loop
// started from a request handler outlives the request. Starting a
// running loop is a no-op.
func (s *Supervisor) Start(name string) error {
	return s.start(name, false)
}

func (s *Supervisor) start(name string, warmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loops[name]
	if !ok {
		return fmt.Errorf("unknown worker %q", name)
	}
	if l.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(s.baseCtx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.runID = uuid.NewString()
	if !warmed {
		l.lastErr = ""
	}

	log.Printf("worker: %s starting (run %s, every %s)", name, l.runID[:8], l.interval)
	go s.run(loopCtx, l, warmed)
	return nil
}

func (s *Supervisor) running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[name]
	return ok && l.cancel != nil
}

// warmUp runs one iteration of a loop synchronously, recording the
// outcome like a regular tick.
func (s *Supervisor) warmUp(ctx context.Context, name string) {
	s.mu.Lock()
	l := s.loops[name]
	s.mu.Unlock()

	start := s.now()
	err := l.fn(ctx)

	s.mu.Lock()
	l.lastRun = start
	if err != nil {
		l.lastErr = err.Error()
	} else {
		l.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		log.Printf("worker: %s warm-up failed: %v", name, err)
	}
}

// Stop cancels one loop and waits for its current iteration to finish
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	l, ok := s.loops[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown worker %q", name)
	}
	cancel, done := l.cancel, l.done
	l.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	log.Printf("worker: %s stopped", name)
	return nil
}

// StopAll stops every running loop
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()
	for _, name := range names {
		_ = s.Stop(name)
	}
}

// Status reports all loops in registration order
func (s *Supervisor) Status() []LoopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LoopStatus, 0, len(s.order))
	for _, name := range s.order {
		l := s.loops[name]
		out = append(out, LoopStatus{
			Name:     l.name,
			Running:  l.cancel != nil,
			Interval: l.interval,
			RunID:    l.runID,
			LastRun:  l.lastRun,
			LastErr:  l.lastErr,
		})
	}
	return out
}

func (s *Supervisor) run(ctx context.Context, l *loop, warmed bool) {
	done := l.done
	defer func() {
		// a loop that dies with its context must not report running
		s.mu.Lock()
		if l.done == done {
			l.cancel = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	if warmed {
		// the warm-up pass already ran this iteration
		if err := sleepCtx(ctx, l.interval); err != nil {
			return
		}
	}

	for {
		if err := s.awaitWindow(ctx, l.name); err != nil {
			return
		}

		start := s.now()
		err := l.fn(ctx)

		s.mu.Lock()
		l.lastRun = start
		if err != nil {
			l.lastErr = err.Error()
		} else {
			l.lastErr = ""
		}
		s.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			log.Printf("worker: %s iteration failed: %v", l.name, err)
		}

		if err := sleepCtx(ctx, l.interval); err != nil {
			return
		}
	}
}

// awaitWindow blocks until the active window is open
func (s *Supervisor) awaitWindow(ctx context.Context, name string) error {
	now := s.now()
	if s.window.Open(now) {
		return nil
	}
	wake := s.window.NextOpen(now)
	log.Printf("worker: %s pausing for %s until the window opens at %s",
		name, humanize.RelTime(now, wake, "", ""), wake.Format("15:04 MST"))
	return sleepCtx(ctx, wake.Sub(now))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

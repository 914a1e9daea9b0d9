package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrExhausted means every provider in the chain failed for one request
var ErrExhausted = errors.New("all llm providers exhausted")

// Request is one completion request
type Request struct {
	System string
	Prompt string
}

// Provider produces a completion for a request
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// StatusError is a provider error carrying the upstream HTTP status
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm provider status %d: %s", e.Code, e.Msg)
}

// Transient reports whether an error is worth retrying on the same
// provider: rate limiting and upstream server failures.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	return false
}

const (
	maxConcurrent = 5
	maxAttempts   = 3
)

// Service runs requests through an ordered provider chain with a global
// concurrency cap. Transient failures retry with exponential backoff on
// the same provider; anything else falls through to the next one.
type Service struct {
	providers []Provider
	sem       *semaphore.Weighted
	backoff   time.Duration
	sleep     func(context.Context, time.Duration) error
}

// New creates a service over the given providers, tried in order
func New(providers ...Provider) *Service {
	return &Service{
		providers: providers,
		sem:       semaphore.NewWeighted(maxConcurrent),
		backoff:   time.Second,
		sleep:     sleep,
	}
}

// Complete runs the request through the chain and returns the first
// successful completion. Returns ErrExhausted when every provider fails.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	if len(s.providers) == 0 {
		return "", ErrExhausted
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	var lastErr error
	for _, p := range s.providers {
		out, err := s.completeWithRetry(ctx, p, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("llm: provider %s failed: %v", p.Name(), err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (s *Service) completeWithRetry(ctx context.Context, p Provider, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.backoff << (attempt - 1)
			if err := s.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
		out, err := p.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Transient(err) {
			return "", err
		}
	}
	return "", lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

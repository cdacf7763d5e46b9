// Package resilience wraps outbound calls with bounded retries and a
// per-operation circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// Verdict tells the executor how to treat a failed attempt.
type Verdict struct {
	Retry  bool
	Record bool
}

// Classifier maps an error to its retry/record verdict. The default
// classifier retries errors tagged domain.ErrTemporary and records every
// failure against the breaker.
type Classifier func(err error) Verdict

func defaultClassifier(err error) Verdict {
	return Verdict{
		Retry:  errors.Is(err, domain.ErrTemporary),
		Record: true,
	}
}

type Executor struct {
	policy   Policy
	classify Classifier

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

type Option func(*Executor)

// WithClassifier replaces the default ErrTemporary-based classifier.
func WithClassifier(classify Classifier) Option {
	return func(e *Executor) {
		if classify != nil {
			e.classify = classify
		}
	}
}

func NewExecutor(policy Policy, opts ...Option) *Executor {
	executor := &Executor{
		policy:   policy.normalize(),
		classify: defaultClassifier,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Do runs fn under the retry policy and, when enabled, the circuit breaker
// keyed by operation.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	if !e.policy.BreakerEnabled {
		return e.retry(ctx, op, fn)
	}

	breaker := e.breaker(op)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.retry(ctx, op, fn)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	backoff := e.policy.InitialBackoff

	var err error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		verdict := e.classify(err)
		if !verdict.Retry || attempt == e.policy.MaxAttempts {
			return err
		}

		wait := backoff
		if wait > e.policy.MaxBackoff {
			wait = e.policy.MaxBackoff
		}
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * e.policy.BackoffFactor)
		if backoff > e.policy.MaxBackoff {
			backoff = e.policy.MaxBackoff
		}
	}

	return err
}

func (e *Executor) breaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.policy.BreakerProbeCalls,
		Timeout:     e.policy.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.policy.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !e.classify(err).Record
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err came from a breaker that is rejecting
// calls.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Package retry holds the bounded retry and consecutive-failure breaker
// primitives used by every crawl stage.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ErrExhausted is returned by Attempt when no try produced an accepted result.
var ErrExhausted = errors.New("retries exhausted")

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Attempt stops at the first
// permanent error and returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Backoff configures the wait between tries. A zero MaxDelay (or one not above
// Delay) gives a fixed wait of Delay; otherwise the wait doubles from Delay up
// to MaxDelay.
type Backoff struct {
	Delay    time.Duration
	MaxDelay time.Duration
}

// Policy bounds a retried operation.
type Policy struct {
	MaxTries int
	Backoff  Backoff
}

// Fixed returns a policy with a constant wait between tries.
func Fixed(tries int, delay time.Duration) Policy {
	return Policy{MaxTries: tries, Backoff: Backoff{Delay: delay}}
}

func (p Policy) normalize() Policy {
	if p.MaxTries < 1 {
		p.MaxTries = 1
	}
	if p.Backoff.Delay < 0 {
		p.Backoff.Delay = 0
	}
	return p
}

func buildPolicy[T any](p Policy, accept func(T, error) bool) retrypolicy.RetryPolicy[T] {
	builder := retrypolicy.NewBuilder[T]().
		WithMaxRetries(p.MaxTries - 1).
		HandleIf(func(result T, err error) bool {
			return !isPermanent(err) && !accept(result, err)
		})

	switch {
	case p.Backoff.Delay > 0 && p.Backoff.MaxDelay > p.Backoff.Delay:
		builder = builder.WithBackoff(p.Backoff.Delay, p.Backoff.MaxDelay)
	case p.Backoff.Delay > 0:
		builder = builder.WithDelay(p.Backoff.Delay)
	}

	return builder.Build()
}

// Attempt runs op until accept reports success or the policy's tries are
// spent. op receives the 1-based try number. It returns the last result seen,
// the number of tries made and, unless a try was accepted, an error wrapping
// ErrExhausted or the context error. A nil accept treats a nil error as
// success. An error marked Permanent ends the attempt and is returned as is.
func Attempt[T any](ctx context.Context, p Policy, op func(ctx context.Context, try int) (T, error), accept func(T, error) bool) (T, int, error) {
	p = p.normalize()
	if accept == nil {
		accept = func(_ T, err error) bool { return err == nil }
	}

	var (
		last     T
		lastErr  error
		tries    int
		accepted bool
		stopped  error
	)

	executor := failsafe.With[T](buildPolicy(p, accept)).WithContext(ctx)
	_, _ = executor.Get(func() (T, error) {
		tries++
		last, lastErr = op(ctx, tries)
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			stopped = perm.err
			return last, lastErr
		}
		accepted = accept(last, lastErr)
		return last, lastErr
	})

	switch {
	case stopped != nil:
		return last, tries, stopped
	case accepted:
		return last, tries, nil
	case ctx.Err() != nil:
		return last, tries, ctx.Err()
	case lastErr != nil:
		return last, tries, fmt.Errorf("%w after %d tries: %w", ErrExhausted, tries, lastErr)
	default:
		return last, tries, fmt.Errorf("%w after %d tries", ErrExhausted, tries)
	}
}

// breakerHold keeps a tripped breaker open for the rest of its scope.
const breakerHold = 24 * time.Hour

// Breaker trips after a run of consecutive failures. It is not safe for
// concurrent use.
type Breaker struct {
	cb     circuitbreaker.CircuitBreaker[any]
	streak int
}

// NewBreaker returns a breaker that trips after threshold consecutive
// failures. Thresholds below 1 are treated as 1.
func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(uint(threshold)).
		WithDelay(breakerHold).
		Build()
	return &Breaker{cb: cb}
}

// Failure records a failure and reports whether the breaker has tripped.
func (b *Breaker) Failure() bool {
	b.streak++
	b.cb.RecordFailure()
	return b.Tripped()
}

// Success ends the current failure streak.
func (b *Breaker) Success() {
	b.streak = 0
	b.cb.RecordSuccess()
}

// Tripped reports whether the breaker is open.
func (b *Breaker) Tripped() bool {
	return b.cb.IsOpen()
}

// Streak returns the number of failures since the last success.
func (b *Breaker) Streak() int {
	return b.streak
}

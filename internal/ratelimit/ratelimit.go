package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitterLimiter spaces page loads at least minDelay apart and adds a random
// extra wait of up to maxDelay-minDelay.
type JitterLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	rnd      *rand.Rand
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	j := &JitterLimiter{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	j.SetDelay(minDelay, maxDelay)
	return j
}

func (j *JitterLimiter) Wait(ctx context.Context) error {
	j.mu.Lock()
	limiter := j.limiter
	extra := j.jitter()
	j.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if extra <= 0 {
		return nil
	}

	timer := time.NewTimer(extra)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (j *JitterLimiter) SetDelay(min, max time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	j.minDelay = min
	j.maxDelay = max

	if min == 0 {
		j.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	j.limiter = rate.NewLimiter(rate.Every(min), 1)
}

func (j *JitterLimiter) jitter() time.Duration {
	delta := j.maxDelay - j.minDelay
	if delta <= 0 {
		return 0
	}
	return time.Duration(j.rnd.Int63n(int64(delta)))
}

// Noop never waits.
type Noop struct{}

func (Noop) Wait(ctx context.Context) error { return ctx.Err() }

func (Noop) SetDelay(time.Duration, time.Duration) {}

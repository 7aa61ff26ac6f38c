package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter gates pipeline admission. The generation pipeline is strictly
// sequential per request; max_concurrent=1 keeps the model services
// single-tenant the way they expect.
type Limiter struct {
	semaphore   chan struct{}
	rateLimiter *rate.Limiter
}

func New(maxConcurrent int, ratePerSecond float64) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		semaphore:   make(chan struct{}, maxConcurrent),
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
	}
}

func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Limiter) TryAcquire() (release func(), ok bool) {
	if !l.rateLimiter.Allow() {
		return nil, false
	}

	select {
	case l.semaphore <- struct{}{}:
		return func() { <-l.semaphore }, true
	default:
		return nil, false
	}
}

// Package ratelimit bounds outbound REST traffic to the upstream exchange:
// a token-bucket rate limiter averaging reqPerMinute, plus a concurrency
// semaphore for parallel backfill (§4.3, §5). Requests are not counted over
// a sliding 60-second window; up to the bucket's burst can go out at once.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter configured to approximate a
// sliding window of reqPerMinute requests per minute, and a separate
// concurrency semaphore bounding how many backfill requests run at once.
type Limiter struct {
	tokens *rate.Limiter
	sem    chan struct{}
}

// New creates a limiter allowing reqPerMinute requests/minute (burst equal to
// the whole-number part of the per-second rate plus one: 21 for 1200/min, 2
// for 60/min) and at most concurrency requests in flight at once.
func New(reqPerMinute int, concurrency int) *Limiter {
	perSecond := float64(reqPerMinute) / 60.0
	burst := int(perSecond) + 1
	return &Limiter{
		tokens: rate.NewLimiter(rate.Limit(perSecond), burst),
		sem:    make(chan struct{}, concurrency),
	}
}

// Wait blocks until both a rate-limiter token and a concurrency slot are
// available, or ctx is done. Callers must call the returned release func
// exactly once after the request completes.
func (l *Limiter) Wait(ctx context.Context) (release func(), err error) {
	if err := l.tokens.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-l.sem }, nil
}

// Allow reports whether a request may proceed right now without blocking,
// consuming a token if so. It takes no concurrency slot; the REST client
// uses Wait, not Allow.
func (l *Limiter) Allow() bool {
	return l.tokens.Allow()
}

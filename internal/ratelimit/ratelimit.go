// Package ratelimit paces outbound venue REST calls. Venues quote their
// limits in requests per minute, so the constructor does too.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter gates calls to one venue endpoint.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a limiter allowing perMinute requests per minute, with a burst
// of a tenth of that (minimum 1) so startup catalog fetches are not
// serialized one token per tick.
func New(perMinute int) *Limiter {
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)}
}

// Wait blocks until a slot is free or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// Allow reports whether a call may proceed right now without waiting.
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}

// SetLimit retunes the per-minute rate. No caller in this repository uses
// it; a venue 429 does not change the rate.
func (l *Limiter) SetLimit(perMinute int) {
	l.rl.SetLimit(rate.Limit(float64(perMinute) / 60))
}

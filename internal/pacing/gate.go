// Package pacing spaces out calls to an upstream that throttles aggressive
// clients.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay is the pause applied before every upstream call.
const DefaultDelay = time.Second

// Gate delays callers before they hit the upstream. Two knobs compose:
//
//   - delay: a fixed pause applied before every call regardless of recency.
//   - minInterval: a minimum spacing between successive calls across all
//     callers of this Gate (token bucket with burst 1). Zero disables it.
//
// A Gate is safe for concurrent use.
type Gate struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewGate creates a Gate. Negative durations are treated as zero.
func NewGate(delay, minInterval time.Duration) *Gate {
	if delay < 0 {
		delay = 0
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Gate{
		delay:   delay,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Delay returns the fixed pre-call pause.
func (g *Gate) Delay() time.Duration { return g.delay }

// Wait blocks until the caller may issue its upstream call or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if g.delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package throttle gates outbound calls to rate-sensitive third-party
// services so that at most N operations start per interval, shared across
// all callers of one Throttle instance.
package throttle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle spaces call starts evenly so no more than n starts fall inside
// any window of the configured interval. Excess callers queue on Wait in
// arrival order; a call is never dropped, only delayed. A failing call does
// not affect the scheduling of the others.
type Throttle struct {
	limiter *rate.Limiter
}

// New creates a Throttle admitting n call starts per interval.
func New(n int, interval time.Duration) *Throttle {
	if n <= 0 {
		n = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	// Burst 1 keeps starts evenly spaced, which bounds every rolling
	// window, not just aligned ones.
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval/time.Duration(n)), 1)}
}

// Do blocks until a start slot is available, then runs fn. The context
// cancels only the wait and fn itself; slots already granted to other
// callers are unaffected.
func (t *Throttle) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "throttle: wait for slot")
	}
	return fn(ctx)
}

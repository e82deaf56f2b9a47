// Package resilience provides a circuit breaker guarding calls to external
// geocoding and job-search services. It never retries: a rejected or failed
// call surfaces immediately and the caller's fallback logic takes over.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state.
	BreakerClosed BreakerState = iota
	// BreakerOpen means too many consecutive failures; calls are rejected.
	BreakerOpen
	// BreakerHalfOpen allows a single probe call to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is rejected because the circuit is open.
var ErrBreakerOpen = eris.New("resilience: circuit breaker is open")

// Breaker is a per-service circuit breaker. The zero config opens after 5
// consecutive failures and probes again after 30 seconds.
type Breaker struct {
	name      string
	threshold int
	reset     time.Duration

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time

	now func() time.Time
}

// NewBreaker creates a Breaker for the named service.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		reset:     resetTimeout,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// reset timeout has elapsed transitions to half-open and admits one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.reset {
			b.transition(BreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Do runs fn through the breaker. It returns ErrBreakerOpen without calling
// fn when the circuit is open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrBreakerOpen
	}
	err := fn(ctx)
	b.Record(err)
	return err
}

// Record feeds a call outcome into the breaker's state machine.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		b.consecutiveFailures = 0
		return
	}

	b.consecutiveFailures++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		if b.consecutiveFailures >= b.threshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		// A failed probe reopens the circuit.
		b.transition(BreakerOpen)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.reset {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	zap.L().Debug("circuit breaker state change",
		zap.String("service", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Package ratelimit implements a fixed-window per-key admission limiter for
// the query API.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission check. When Allowed is false,
// RetryAfter holds the remaining time in the caller's current window.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks fixed windows of length W per key and rejects a key once it
// exceeds Max admissions inside one window. Windows are not sliding: a burst
// straddling two windows can briefly pass up to 2x the nominal rate, which is
// an accepted approximation.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	window  time.Duration
	max     int
	now     func() time.Time
}

// New creates a Limiter allowing max admissions per key per window.
func New(windowLen time.Duration, max int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		window:  windowLen,
		max:     max,
		now:     time.Now,
	}
}

// Admit records a request for key and decides whether it may proceed.
func (l *Limiter) Admit(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true}
	}

	w.count++
	if w.count > l.max {
		return Decision{Allowed: false, RetryAfter: l.window - now.Sub(w.start)}
	}
	return Decision{Allowed: true}
}

// Prune drops windows that have fully elapsed and returns how many were
// removed. Callers run this periodically to keep the key map bounded.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

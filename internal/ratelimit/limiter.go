// Package ratelimit implements a sliding-window limiter that caps how many
// order submissions the engine sends to a single venue within the window.
// Every call counts against the window, whether or not it succeeds.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by venue name.
type Limiter struct {
	maxAttempts int
	window      time.Duration
	attempts    map[string][]time.Time
	mu          sync.Mutex
}

// New creates a Limiter allowing maxAttempts calls per venue within window.
func New(maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string][]time.Time),
	}
}

// Allow reports whether a call against venue is permitted right now, and if
// so records it against the window.
func (l *Limiter) Allow(venue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	valid := valid(l.attempts[venue], now, l.window)

	if len(valid) >= l.maxAttempts {
		l.attempts[venue] = valid
		return false
	}

	l.attempts[venue] = append(valid, now)
	return true
}

// Remaining returns how many more calls venue may make before the window is
// exhausted.
func (l *Limiter) Remaining(venue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.maxAttempts - len(valid(l.attempts[venue], time.Now(), l.window))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the window for venue, e.g. after it reports healthy again.
func (l *Limiter) Reset(venue string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, venue)
}

func valid(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	out := make([]time.Time, 0, len(timestamps))
	for _, t := range timestamps {
		if now.Sub(t) < window {
			out = append(out, t)
		}
	}
	return out
}

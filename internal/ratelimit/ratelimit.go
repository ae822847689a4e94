// Package ratelimit implements a per-agent sliding window limiter.
// State is in-process; counts reset on restart, which is acceptable
// for a single-instance deployment.
package ratelimit

import (
	"sync"
	"time"

	"github.com/openclaw/memoryd/internal/metrics"
)

const windowSize = time.Minute

type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter tracks request timestamps per agent over a one-minute
// sliding window. A registry mutex guards the map; each agent has its
// own window mutex so agents never contend with each other.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *Limiter) window(agentID string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[agentID]
	if !ok {
		w = &window{}
		l.windows[agentID] = w
	}
	return w
}

// Allow records one request for the agent and reports whether it fits
// within limit requests per minute. The rejected request is not
// counted against the window.
func (l *Limiter) Allow(agentID string, limit int) (allowed bool, remaining int) {
	if limit <= 0 {
		return true, 0
	}

	w := l.window(agentID)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := l.now().Add(-windowSize)
	live := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	w.stamps = live

	if len(w.stamps) >= limit {
		metrics.RateLimitTrips.Inc()
		return false, 0
	}
	w.stamps = append(w.stamps, l.now())
	return true, limit - len(w.stamps)
}

// RetryAfter returns how long the agent must wait before the oldest
// in-window request expires. Zero when the window is empty.
func (l *Limiter) RetryAfter(agentID string) time.Duration {
	w := l.window(agentID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.stamps) == 0 {
		return 0
	}
	wait := windowSize - l.now().Sub(w.stamps[0])
	if wait < 0 {
		return 0
	}
	return wait
}

// Sweep drops windows that have been idle longer than maxAge. Called
// periodically by the background loop to keep the map bounded.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		idle := len(w.stamps) == 0 || w.stamps[len(w.stamps)-1].Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

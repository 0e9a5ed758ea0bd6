// Package ratelimit implements keyed sliding-window rate limiting.
//
// Each key (a client address, or a client address plus route) owns a
// window of request timestamps. A request is admitted while fewer than
// the configured number of requests fall inside the trailing window.
package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the oldest request leaves the window.
	// It is zero when the request was allowed.
	RetryAfter time.Duration
}

type window struct {
	timestamps []time.Time
}

// expire drops timestamps at or before cutoff.
func (w *window) expire(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(w.timestamps, w.timestamps[i:])
		w.timestamps = w.timestamps[:n]
	}
}

// Limiter admits at most maxRequests per key in any trailing window.
// It is safe for concurrent use.
type Limiter struct {
	maxRequests int
	window      time.Duration
	windows     *xsync.MapOf[string, *window]
	lastSweep   atomic.Int64
	now         func() time.Time
}

// New creates a limiter. maxRequests must be positive.
func New(maxRequests int, size time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      size,
		windows:     xsync.NewMapOf[string, *window](),
		now:         time.Now,
	}
}

// Check records a request for key and reports whether it is admitted.
// Rejected requests are not recorded.
func (l *Limiter) Check(key string) Result {
	now := l.now()
	cutoff := now.Add(-l.window)

	var res Result
	l.windows.Compute(key, func(w *window, loaded bool) (*window, bool) {
		if !loaded {
			w = &window{timestamps: make([]time.Time, 0, min(l.maxRequests, 64))}
		}
		w.expire(cutoff)

		if len(w.timestamps) >= l.maxRequests {
			res = Result{RetryAfter: w.timestamps[0].Add(l.window).Sub(now)}
			return w, false
		}

		w.timestamps = append(w.timestamps, now)
		res = Result{Allowed: true, Remaining: l.maxRequests - len(w.timestamps)}
		return w, false
	})

	l.maybeSweep(now)
	return res
}

// Count returns the number of requests for key inside the current window.
func (l *Limiter) Count(key string) int {
	cutoff := l.now().Add(-l.window)
	count := 0
	l.windows.Compute(key, func(w *window, loaded bool) (*window, bool) {
		if !loaded {
			return nil, true
		}
		w.expire(cutoff)
		count = len(w.timestamps)
		return w, count == 0
	})
	return count
}

// Keys returns the number of keys currently tracked.
func (l *Limiter) Keys() int {
	return l.windows.Size()
}

// Reset forgets every key.
func (l *Limiter) Reset() {
	l.windows.Clear()
}

// maybeSweep drops idle keys at most once per window.
func (l *Limiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.window) {
		return
	}
	// Only the caller that moves the marker sweeps.
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.Sweep()
}

// Sweep removes keys with no requests inside the window.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.window)
	l.windows.Range(func(key string, _ *window) bool {
		l.windows.Compute(key, func(w *window, loaded bool) (*window, bool) {
			if !loaded {
				return nil, true
			}
			w.expire(cutoff)
			return w, len(w.timestamps) == 0
		})
		return true
	})
}

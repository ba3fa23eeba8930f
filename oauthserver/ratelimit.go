// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a pluggable rate-limiting capability: consume(key) →
// { allowed, retryAfterSeconds? }. The
// default, [NewWindowedRateLimiter], is an in-memory per-key token bucket;
// distributed deployments may back this with a shared counter (e.g. Redis
// INCR with TTL).
type RateLimiter interface {
	// Consume reports whether a request identified by key may proceed. If
	// not, retryAfter suggests how long the caller should wait.
	Consume(key string) (allowed bool, retryAfter time.Duration)
}

// windowedRateLimiter grants limit events per window, per key, using a
// token-bucket limiter refilled continuously at limit/window per second.
// Idle keys are evicted lazily so the map does not grow unboundedly for
// long-running servers fielding traffic from many distinct IPs.
type windowedRateLimiter struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// NewWindowedRateLimiter returns a [RateLimiter] that gives each key a burst
// of limit requests, refilled continuously at limit per window. It does not
// count requests in fixed windows: a key that spends its burst at once and
// then keeps pace with the refill gets up to about twice limit requests
// through within one window.
func NewWindowedRateLimiter(limit int, window time.Duration) RateLimiter {
	return &windowedRateLimiter{
		limit:    limit,
		window:   window,
		limiters: make(map[string]*entry),
	}
}

func (w *windowedRateLimiter) Consume(key string) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evictLocked()

	e, ok := w.limiters[key]
	if !ok {
		r := rate.Limit(float64(w.limit) / w.window.Seconds())
		e = &entry{limiter: rate.NewLimiter(r, w.limit)}
		w.limiters[key] = e
	}
	e.lastUse = time.Now()

	if e.limiter.Allow() {
		return true, 0
	}
	reservation := e.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

// evictLocked drops limiters idle for more than 2 windows; must be called
// with w.mu held.
func (w *windowedRateLimiter) evictLocked() {
	cutoff := time.Now().Add(-2 * w.window)
	for k, e := range w.limiters {
		if e.lastUse.Before(cutoff) {
			delete(w.limiters, k)
		}
	}
}

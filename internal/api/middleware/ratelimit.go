package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/goalq/internal/api/shared"
	"golang.org/x/time/rate"
)

// rateWindow is the span over which requestsPerMinute is counted.
const rateWindow = time.Minute

// RateLimiter admits at most requestsPerMinute requests per principal in
// any sliding one-minute window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	// sweep bounds how often idle principals are evicted.
	sweep rate.Sometimes

	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// slidingWindow holds the admission times still inside the window, oldest first.
type slidingWindow struct {
	admitted []time.Time
}

// expire drops admissions at or before cutoff.
func (w *slidingWindow) expire(cutoff time.Time) {
	n := 0
	for n < len(w.admitted) && !w.admitted[n].After(cutoff) {
		n++
	}
	if n > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[n:]...)
	}
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &RateLimiter{
		limit:   requestsPerMinute,
		window:  rateWindow,
		now:     time.Now,
		sweep:   rate.Sometimes{Interval: rateWindow},
		windows: make(map[string]*slidingWindow),
	}
}

// Allow records one request for key and reports whether it is within the
// limit. When it is not, it also returns how long until a request would be.
// Rejected requests are not counted.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	l.sweep.Do(func() { l.evictIdle(now) })

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &slidingWindow{admitted: make([]time.Time, 0, l.limit)}
		l.windows[key] = w
	}

	w.expire(now.Add(-l.window))
	if len(w.admitted) >= l.limit {
		return false, w.admitted[0].Add(l.window).Sub(now)
	}
	w.admitted = append(w.admitted, now)
	return true, 0
}

// evictIdle forgets keys with no admissions left in the window. Keys fall
// back to the client address for unauthenticated callers, so without this
// the map would grow with every address seen.
func (l *RateLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for key, w := range l.windows {
		w.expire(cutoff)
		if len(w.admitted) == 0 {
			delete(l.windows, key)
		}
	}
}

// Middleware applies the limit per authenticated principal, falling back
// to the client address. It must run after AuthMiddleware so a rejected
// request never mutates anything.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if p, ok := shared.GetPrincipal(r.Context()); ok {
			key = p.Subject
		}

		ok, retryAfter := l.Allow(key)
		if !ok {
			seconds := int((retryAfter + time.Second - 1) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			shared.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max is the request budget per window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// client tracks one key's counts over the current and previous windows. The
// sliding estimate weights the previous window by its remaining overlap, so
// a burst at a window boundary cannot double the budget.
type client struct {
	prev      float64
	prevStart time.Time
	curr      float64
	currStart time.Time
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// take consumes one request from key's budget. It reports the remaining
// budget, when the current window resets, and whether the request fit.
func (l *limiter) take(key string) (remaining int, resetAt time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.clients[key]
	if !exists {
		c = &client{currStart: now}
		l.clients[key] = c
	}

	if now.Sub(c.currStart) >= l.cfg.Window {
		c.prev = c.curr
		c.prevStart = c.currStart
		c.curr = 0
		c.currStart = now.Truncate(l.cfg.Window)
		if now.Sub(c.prevStart) >= 2*l.cfg.Window {
			c.prev = 0
		}
	}

	overlap := 1.0 - now.Sub(c.currStart).Seconds()/l.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	used := c.prev*overlap + c.curr
	resetAt = c.currStart.Add(l.cfg.Window)

	if used >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	c.curr++
	remaining = int(float64(l.cfg.Max) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// sweep drops clients idle for two full windows.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.clients, key)
		}
	}
}

// RateLimit enforces a per-key sliding window limit, answering 429 with a
// JSON body when exceeded. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers.
//
// This variant never evicts idle keys; prefer RateLimitWithCleanup for long
// running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle keys every two windows until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(now)
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.cfg.KeyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller's address: X-Forwarded-For first hop, then
// X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

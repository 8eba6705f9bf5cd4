package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/learnhub/payhook/internal/config"
	"github.com/learnhub/payhook/internal/requestctx"
)

const defaultRateLimitWindow = time.Minute

// RateLimiter is a per-client fixed window limiter: each key may make
// rule.Max requests per rule.Window.
type RateLimiter struct {
	rule config.RateLimitRule
	now  func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	done     chan struct{}
	stopped  sync.WaitGroup
	stopOnce sync.Once
}

type window struct {
	start time.Time
	used  int
}

// NewRateLimiter creates a rate limiter with the given rule. A rule with
// Max <= 0 allows everything.
func NewRateLimiter(rule config.RateLimitRule) *RateLimiter {
	if rule.Window <= 0 {
		rule.Window = defaultRateLimitWindow
	}

	rl := &RateLimiter{
		rule:    rule,
		now:     time.Now,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}

	rl.stopped.Add(1)
	go rl.sweepLoop(2 * rule.Window)

	return rl
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.rule.Max <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.rule.Window {
		w = &window{start: now}
		rl.windows[key] = w
	}

	if w.used >= rl.rule.Max {
		return false
	}
	w.used++
	return true
}

func (rl *RateLimiter) sweepLoop(every time.Duration) {
	defer rl.stopped.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep forgets windows that ended at least one full window ago.
func (rl *RateLimiter) sweep() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if now.Sub(w.start) >= 2*rl.rule.Window {
			delete(rl.windows, key)
		}
	}
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
		rl.stopped.Wait()
	})
}

// Middleware rate limits by client address. Preflight requests pass through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.rule.Window.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if rl.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		requestctx.Logger(r.Context()).Warn().
			Str("client_ip", ip).
			Str("path", r.URL.Path).
			Msg("Rate limit exceeded")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"rate limit exceeded"}`))
	})
}

// clientIP prefers X-Real-IP, then the first X-Forwarded-For hop, then the
// connection address without its port.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, _ := strings.Cut(fwd, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

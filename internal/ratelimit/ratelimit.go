package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Rule limits requests to one route. Pattern is the chi route pattern, such
// as "/api/content/{id}/subscriptions/subscribe", so every content node
// shares the budget of its client.
type Rule struct {
	Method  string
	Pattern string
	Limit   int
	Window  time.Duration
}

// Result contains rate limit status for a request.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	RetryIn   time.Duration
}

type entry struct {
	ruleKey  string
	count    int
	windowAt time.Time
}

// Limiter implements fixed-window rate limiting per client IP and route.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule // key: "METHOD:PATTERN"
	entries map[string]*entry
	clock   Clock
}

func NewLimiter(rules []Rule) *Limiter {
	ruleMap := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ruleMap[r.Method+":"+r.Pattern] = r
	}
	return &Limiter{
		rules:   ruleMap,
		entries: make(map[string]*entry),
		clock:   realClock{},
	}
}

// Allow checks whether a request from ip to method+pattern is allowed.
// If no rule matches, it returns (Result{}, true).
func (l *Limiter) Allow(ip, method, pattern string) (Result, bool) {
	ruleKey := method + ":" + pattern
	rule, ok := l.rules[ruleKey]
	if !ok {
		return Result{}, true
	}

	now := l.clock.Now()
	key := ip + ":" + ruleKey

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || now.Sub(e.windowAt) >= rule.Window {
		// New window
		l.entries[key] = &entry{ruleKey: ruleKey, count: 1, windowAt: now}
		return Result{Limit: rule.Limit, Remaining: rule.Limit - 1, ResetAt: now.Add(rule.Window)}, true
	}

	resetAt := e.windowAt.Add(rule.Window)

	if e.count >= rule.Limit {
		retryIn := rule.Window - now.Sub(e.windowAt)
		return Result{Limit: rule.Limit, Remaining: 0, ResetAt: resetAt, RetryIn: retryIn}, false
	}

	e.count++
	return Result{Limit: rule.Limit, Remaining: rule.Limit - e.count, ResetAt: resetAt}, true
}

// Cleanup removes expired entries. Call periodically to prevent unbounded growth.
func (l *Limiter) Cleanup() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		rule, ok := l.rules[e.ruleKey]
		if !ok || now.Sub(e.windowAt) >= rule.Window {
			delete(l.entries, key)
		}
	}
}

// Len reports the number of tracked client windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Middleware enforces the limiter on routes registered with it through
// chi's With, where the matched route pattern is already known. A nil
// limiter lets everything through.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pattern := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				pattern = rctx.RoutePattern()
			}

			res, ok := l.Allow(clientIP(r), r.Method, pattern)
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryIn.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"code":    "RATE_LIMITED",
						"message": "Too many requests, try again later",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port chi's RealIP middleware leaves on RemoteAddr
// when no proxy header was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

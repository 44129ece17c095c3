package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"jobdeck/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimiter limits requests per namespace, read from the {ns} path value.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	known    map[string]bool
	limiters sync.Map // namespace -> *cachedLimiter
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithTTL sets how long an idle namespace keeps its limiter state.
func WithTTL(ttl time.Duration) Option {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// WithNamespaces restricts limiter state to the given namespaces. Requests for
// any other namespace pass through untracked and are rejected downstream.
func WithNamespaces(names []string) Option {
	return func(rl *RateLimiter) {
		rl.known = make(map[string]bool, len(names))
		for _, ns := range names {
			rl.known[ns] = true
		}
	}
}

// NewRateLimiter allows perSecond requests per namespace with the given burst.
// perSecond <= 0 means unlimited.
func NewRateLimiter(perSecond float64, burst int, opts ...Option) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{limit: rate.Limit(perSecond), burst: burst, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Middleware returns the limiting middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ns := r.PathValue("ns")
			if rl.known != nil && !rl.known[ns] {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.limiter(ns).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter *rate.Limiter
	// unix nanoseconds; pushed forward on every access
	expiresAt atomic.Int64
}

func (rl *RateLimiter) limiter(ns string) *rate.Limiter {
	now := time.Now()
	if v, ok := rl.limiters.Load(ns); ok {
		cached := v.(*cachedLimiter)
		if now.UnixNano() < cached.expiresAt.Load() {
			cached.expiresAt.Store(now.Add(rl.ttl).UnixNano())
			return cached.limiter
		}
		// idle past the TTL, start over
	}

	cached := &cachedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	cached.expiresAt.Store(now.Add(rl.ttl).UnixNano())
	rl.limiters.Store(ns, cached)
	return cached.limiter
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanwahyu/medcoder/internal/infra/httpserver/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limits per user (or per client IP before auth)
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Sweep drops visitors idle for longer than idle and returns how many remain.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(rl.visitors, key)
		}
	}
	return len(rl.visitors)
}

// Janitor sweeps idle visitors every interval until ctx is done.
func (rl *RateLimiter) Janitor(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(idle)
		}
	}
}

// retryAfter is the whole number of seconds until one token is back.
func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(rl.limit))))
}

// Middleware limits requests per authenticated user, falling back to client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if probes[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key := UserFromContext(r.Context())
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
			if key == "" {
				key = r.RemoteAddr
			}
		}
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", rl.retryAfter())
			_ = response.Fail(w, http.StatusTooManyRequests, response.CodeRateLimited,
				"rate limit exceeded, please try again later", nil, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

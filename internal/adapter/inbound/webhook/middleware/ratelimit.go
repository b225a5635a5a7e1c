package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// rateLimiter keeps one token bucket per client IP. Idle clients expire
// from the LRU so memory stays bounded.
type rateLimiter struct {
	mu         sync.Mutex
	limiters   *expirable.LRU[string, *rate.Limiter]
	limit      rate.Limit
	burst      int
	trustProxy bool
}

func newRateLimiter(requestsPerMinute int, trustProxy bool) *rateLimiter {
	return &rateLimiter{
		limiters:   expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		limit:      rate.Limit(float64(requestsPerMinute) / 60),
		burst:      max(requestsPerMinute/6, 1),
		trustProxy: trustProxy,
	}
}

func (rl *rateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters.Get(ip)
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
	}
	// re-adding refreshes the idle expiry
	rl.limiters.Add(ip, l)
	return l
}

// NewRateLimiter returns middleware that limits requests per minute per
// client IP. A non-positive limit disables limiting. trustProxy controls
// whether X-Forwarded-For is used for IP extraction.
func NewRateLimiter(requestsPerMinute int, trustProxy bool) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := newRateLimiter(requestsPerMinute, trustProxy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiterFor(remoteIP(r, rl.trustProxy)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteIP extracts the client IP from the request.
// Only trusts X-Forwarded-For when trustProxy is true (i.e., behind a known reverse proxy).
func remoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// In-memory token-bucket rate limiting.
//
// One bucket per identity: dashboard routes are keyed by tenant slug, the
// public chat endpoint by client IP since guests are anonymous. Buckets
// live in a map guarded by a mutex and idle entries are swept periodically
// so memory stays bounded.
//
// The limiter is process-local. Horizontally scaled deployments need a
// shared limiter (Redis or similar) to enforce a global budget; this one
// is edge-level abuse and cost protection, not authorization.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity that owns its bucket. Returned
// keys are namespaced ("customer:...", "ip:...") so tenant slugs can never
// collide with addresses.
type keyFunc func(*gin.Context) string

// KeyByCustomerOrIP prefers the tenant slug carried by the route and falls
// back to the client IP.
func KeyByCustomerOrIP() keyFunc {
	return func(c *gin.Context) string {
		if slug := c.Param("slug"); slug != "" {
			return "customer:" + slug
		}
		return "ip:" + c.ClientIP()
	}
}

// sweepInterval bounds how often the idle-bucket sweep runs.
const sweepInterval = time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out per-key token buckets. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	nextSweep time.Time
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst size per key. A burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		idleTTL:   10 * time.Minute,
		nextSweep: time.Now().Add(sweepInterval),
	}
}

// limiterFor returns the bucket for key, creating it on first sight.
//
// The sweep runs before the requested bucket is touched so a stale bucket
// for this very key is evicted rather than refreshed.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.nextSweep) {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.nextSweep = now.Add(sweepInterval)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay of a completed turn. Replays are served without consuming
// tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the enforcement middleware. Denied requests get a 429
// with the standard error envelope and a minimal Retry-After.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

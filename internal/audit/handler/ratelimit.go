package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterEvictEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// clientLimiters tracks one token bucket per client IP. Idle clients
// are evicted so the map cannot grow without bound.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     int
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps, burst int) *clientLimiters {
	cl := &clientLimiters{
		buckets: make(map[string]*clientBucket),
		rps:     rps,
		burst:   burst,
	}
	go cl.evictLoop()
	return cl
}

// allow reserves one token for ip, creating the bucket on first sight.
func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	b, ok := cl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(cl.rps), cl.burst)}
		cl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()
	return b.limiter.Allow()
}

func (cl *clientLimiters) evictLoop() {
	ticker := time.NewTicker(limiterEvictEvery)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		for ip, b := range cl.buckets {
			if time.Since(b.lastSeen) > limiterIdleAfter {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP
// token-bucket rate limiting on the public audit API. rps is the
// steady-state requests per second; burst is the maximum burst size.
// Rejections are counted in ledger_rate_limited_total.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	cl := newClientLimiters(rps, burst)
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			rateLimitedTotal.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

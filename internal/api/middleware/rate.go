package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/tracecontext/internal/infrastructure/tracing"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops the limiter of a client not seen for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clients tracks one limiter per key. Idle entries are swept lazily, at
// most once per ttl, by the request that notices the sweep is due.
type clients struct {
	mu        sync.Mutex
	entries   map[string]*client
	ttl       time.Duration
	lastSweep time.Time
	newFn     func() *rate.Limiter
	now       func() time.Time
}

func newClients(cfg RateLimitConfig) *clients {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultRateLimitConfig().IdleTTL
	}
	return &clients{
		entries: make(map[string]*client),
		ttl:     ttl,
		newFn: func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		},
		now: time.Now,
	}
}

func (cs *clients) allow(key string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	if now.Sub(cs.lastSweep) >= cs.ttl {
		for k, c := range cs.entries {
			if now.Sub(c.lastSeen) >= cs.ttl {
				delete(cs.entries, k)
			}
		}
		cs.lastSweep = now
	}

	c, ok := cs.entries[key]
	if !ok {
		c = &client{limiter: cs.newFn()}
		cs.entries[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (cs *clients) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.entries)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(newClients(cfg))
}

func rateLimit(cs *clients) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cs.allow(c.ClientIP()) {
			reject(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			reject(c)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context) {
	body := gin.H{"error": "rate limit exceeded"}
	if rid := tracing.RequestIDFromContext(c.Request.Context()); rid != "" {
		body["request_id"] = rid
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
}

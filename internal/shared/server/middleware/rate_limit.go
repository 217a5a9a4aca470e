package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultRateLimitGroup = "DEFAULT"

// RateLimitRule is a token-bucket definition: Rate tokens per second
// refill, Burst tokens capacity.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimitConfig maps named groups to rules. GroupFor classifies a
// request into a group; requests in groups with no rule pass through.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter holds per-key token buckets. Keys combine the caller's
// session (or IP) with the rule group, so a chatty poller cannot starve
// its own mutating requests.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter builds a limiter; now may be nil outside tests.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*rateBucket), now: now}
}

// RateLimit returns middleware enforcing the configured rules. Rejected
// requests get a 429 with Retry-After and a retryAfterMs body field.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := classifyGroup(cfg, c)
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}

		allowed, retryAfter := cfg.Limiter.Allow(limitKey(c, group), rule)
		if allowed {
			c.Next()
			return
		}

		retryMs := int(retryAfter / time.Millisecond)
		if retryMs <= 0 {
			retryMs = 1000
		}
		retrySec := (retryMs + 999) / 1000
		c.Header("Retry-After", strconv.Itoa(retrySec))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":        "rate_limited",
			"retryAfterMs": retryMs,
		})
		c.Abort()
	}
}

func classifyGroup(cfg RateLimitConfig, c *gin.Context) string {
	if cfg.GroupFor != nil {
		if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
			return g
		}
	}
	return cfg.DefaultGroup
}

func limitKey(c *gin.Context, group string) string {
	principal := strings.TrimSpace(SessionIDFromContext(c))
	if principal == "" {
		principal = strings.TrimSpace(c.ClientIP())
	}
	return principal + "|" + group
}

// Allow takes one token from the bucket for key, reporting whether the
// request may proceed and, if not, how long until a token frees up.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	waitSec := (1 - bucket.tokens) / rule.Rate
	if waitSec < 0 {
		waitSec = 0
	}
	return false, time.Duration(math.Ceil(waitSec*1000)) * time.Millisecond
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func rateLimitedRouter(t *testing.T, rules map[string]RateLimitRule, groupFor func(*gin.Context) string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(sessionIDKey, "sess-limit-test")
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		Rules:    rules,
		GroupFor: groupFor,
		Limiter:  limiter,
	}))
	r.GET("/api/v1/queues/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/api/v1/bookings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestRateLimitPollingGroupOutlastsDefault(t *testing.T) {
	r := rateLimitedRouter(t,
		map[string]RateLimitRule{
			"DEFAULT": {Rate: 1, Burst: 2},
			"POLLING": {Rate: 5, Burst: 10},
		},
		func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/queues/:id" {
				return "POLLING"
			}
			return "DEFAULT"
		},
	)

	for i := 0; i < 4; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/queues/q-1", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("polling request %d: got %d, want 200", i+1, resp.Code)
		}
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("default burst should allow 2, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third default request: got %d, want 429", codes[2])
	}
}

func TestRateLimitRejectionCarriesRetryAfter(t *testing.T) {
	r := rateLimitedRouter(t,
		map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 1}},
		nil,
	)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["error"] != "rate_limited" {
		t.Fatalf("error field = %v, want rate_limited", payload["error"])
	}
	if _, ok := payload["retryAfterMs"]; !ok {
		t.Fatal("missing retryAfterMs field")
	}
}

func TestRateLimitUnknownGroupPassesThrough(t *testing.T) {
	r := rateLimitedRouter(t,
		map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 1}},
		func(*gin.Context) string { return "UNMETERED" },
	)

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, resp.Code)
		}
	}
}

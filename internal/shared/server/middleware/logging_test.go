package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	defer telemetry.SetOutput(os.Stdout)

	r := gin.New()
	r.Use(RequestID(), Session(), Logging())
	r.GET("/test", func(c *gin.Context) {
		c.Set("queueId", "q-1")
		c.Set("statusTransition", "draft->submitting")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Session-Id", "sess-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("expected log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &payload); err != nil {
		t.Fatalf("decode log line: %v", err)
	}

	for _, key := range []string{"request_id", "session_id", "queue_id", "duration_ms", "status", "status_transition"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field %s", key)
		}
	}
	if payload["session_id"] != "sess-1" {
		t.Fatalf("session_id = %v", payload["session_id"])
	}
	if payload["queue_id"] != "q-1" {
		t.Fatalf("queue_id = %v", payload["queue_id"])
	}
	if payload["status_transition"] != "draft->submitting" {
		t.Fatalf("status_transition = %v", payload["status_transition"])
	}
}

func TestLoggingSkipsPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	defer telemetry.SetOutput(os.Stdout)

	r := gin.New()
	r.Use(Logging())
	r.OPTIONS("/test", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/test", nil))

	if strings.TrimSpace(buf.String()) != "" {
		t.Fatalf("expected no log output for OPTIONS, got %q", buf.String())
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"0.0.0.0/0", "https://example.com"}

	if !IsOriginAllowed("https://example.com", allowed) {
		t.Fatalf("expected origin to be allowed")
	}

	if !IsOriginAllowed("https://anything.local", allowed) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}

	if !IsOriginAllowed("", allowed) {
		t.Fatalf("expected empty origin to be allowed")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"0.0.0.0/0"}) {
		t.Fatalf("expected wildcard to be detected")
	}

	if containsWildcard([]string{"https://example.com"}) {
		t.Fatalf("did not expect wildcard to be detected")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(true, 2)
	key := "127.0.0.1"

	if !limiter.allow(key) {
		t.Fatalf("expected first request to be allowed")
	}
	if !limiter.allow(key) {
		t.Fatalf("expected second request to be allowed")
	}
	if limiter.allow(key) {
		t.Fatalf("expected third request to be rate limited")
	}

	limiter.entries[key].windowStart = time.Now().Add(-limiter.window)
	if !limiter.allow(key) {
		t.Fatalf("expected request to be allowed after window reset")
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	if generated == "" || w.Body.String() != generated {
		t.Fatalf("expected generated request id, got header %q body %q", generated, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected supplied request id to be kept, got %q", got)
	}
}

func TestRateLimitSkipsHealthChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(true, 1))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected health check to bypass the limiter, got %d", w.Code)
		}
	}

	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes: %v", codes)
	}
}

func TestSecurityHeadersHSTSOnlyWithTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tls := range []bool{false, true} {
		router := gin.New()
		router.Use(SecurityHeaders(tls), ContentSecurityPolicy(false))
		router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if got := w.Header().Get("Strict-Transport-Security") != ""; got != tls {
			t.Fatalf("tls=%v: unexpected HSTS presence %v", tls, got)
		}
		if w.Header().Get("Content-Security-Policy") == "" {
			t.Fatalf("expected CSP header")
		}
	}
}

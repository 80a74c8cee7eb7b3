package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"

	"github.com/openclaw/walletlink/internal/ratelimit"
)

func TestIPRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(clock.NewTestClock(time.Now()))
	h := NewIPRateLimitMiddleware(limiter, 2, time.Minute, "ops").Handler(okHandler())

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		req.RemoteAddr = ip
		return serve(h, req)
	}

	first := request("10.0.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, request("10.0.0.1").Code)

	blocked := request("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("10.0.0.2").Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	t.Run("sets api headers", func(t *testing.T) {
		rec := serve(NewSecurityHeadersMiddleware(false).Handler(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("adds hsts when enabled", func(t *testing.T) {
		rec := serve(NewSecurityHeadersMiddleware(true).Handler(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	})
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/walletlink/internal/ratelimit"
)

const opsToken = "ops-secret-token"

func opsTokenHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(opsToken), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOpsAuthMiddleware(t *testing.T) {
	hash := opsTokenHash(t)

	t.Run("rejects everything when disabled", func(t *testing.T) {
		h := NewOpsAuthMiddleware("", nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		req.Header.Set("Authorization", "Bearer "+opsToken)

		rec := serve(h, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "disabled")
	})

	t.Run("rejects missing token", func(t *testing.T) {
		h := NewOpsAuthMiddleware(hash, nil).Handler(okHandler())

		rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/principals", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		h := NewOpsAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		req.Header.Set("Authorization", "Bearer nope")

		rec := serve(h, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	})

	t.Run("accepts bearer token", func(t *testing.T) {
		h := NewOpsAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		req.Header.Set("Authorization", "Bearer "+opsToken)

		assert.Equal(t, http.StatusOK, serve(h, req).Code)
	})

	t.Run("accepts query token for event streams", func(t *testing.T) {
		h := NewOpsAuthMiddleware(hash, nil).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/events?token="+opsToken, nil)
		assert.Equal(t, http.StatusOK, serve(h, req).Code)
	})

	t.Run("throttles unknown tokens but not verified ones", func(t *testing.T) {
		limiter := ratelimit.NewMemoryLimiter(clock.NewTestClock(time.Now()))
		m := NewOpsAuthMiddleware(hash, limiter)
		h := m.Handler(okHandler())

		good := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		good.Header.Set("Authorization", "Bearer "+opsToken)
		require.Equal(t, http.StatusOK, serve(h, good).Code)

		for i := 0; i < authMaxAttempts-1; i++ {
			bad := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
			bad.Header.Set("Authorization", "Bearer wrong")
			assert.Equal(t, http.StatusUnauthorized, serve(h, bad).Code)
		}

		bad := httptest.NewRequest(http.MethodGet, "/v1/principals", nil)
		bad.Header.Set("Authorization", "Bearer wrong")
		rec := serve(h, bad)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		// The verified token skips the limiter entirely.
		assert.Equal(t, http.StatusOK, serve(h, good).Code)
	})
}

func TestExtractToken(t *testing.T) {
	t.Run("prefers query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?token=q", nil)
		req.Header.Set("Authorization", "Bearer h")
		assert.Equal(t, "q", extractToken(req))
	})

	t.Run("ignores non bearer schemes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		assert.Equal(t, "", extractToken(req))
	})
}

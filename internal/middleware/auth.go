package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/walletlink/internal/audit"
	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/ratelimit"
	"github.com/openclaw/walletlink/internal/util"
)

const (
	authMaxAttempts = 5
	authWindow      = time.Minute
)

// OpsAuthMiddleware guards the ops API with a single bearer token checked
// against its bcrypt hash. Tokens that verified once are remembered by
// fingerprint so bcrypt only runs for unknown tokens, and those attempts are
// throttled per client IP.
type OpsAuthMiddleware struct {
	tokenHash string
	limiter   ratelimit.Limiter
	verified  sync.Map
}

func NewOpsAuthMiddleware(tokenHash string, limiter ratelimit.Limiter) *OpsAuthMiddleware {
	return &OpsAuthMiddleware{tokenHash: tokenHash, limiter: limiter}
}

func (m *OpsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			writeError(w, apperrors.Forbidden("Ops API is disabled"))
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		fingerprint := util.HashToken(token)
		if _, ok := m.verified.Load(fingerprint); ok {
			next.ServeHTTP(w, r)
			return
		}

		if m.limiter != nil {
			result := m.limiter.Allow(r.Context(), "ops-auth:"+r.RemoteAddr, authMaxAttempts, authWindow)
			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfter(time.Now())))
				writeError(w, apperrors.RateLimitExceeded())
				return
			}
		}

		if !util.CheckTokenHash(token, m.tokenHash) {
			log.Warn().Str("ip", r.RemoteAddr).Msg("ops auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			writeError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		m.verified.Store(fingerprint, struct{}{})
		next.ServeHTTP(w, r)
	})
}

// extractToken accepts a query parameter too, since EventSource cannot set
// headers.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

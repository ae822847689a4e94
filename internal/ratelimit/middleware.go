package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
)

// SettingsSource yields the current runtime settings.
type SettingsSource interface {
	GetSettings(ctx context.Context) (*db.Settings, error)
}

// Middleware enforces the per-agent request limit after agent
// authentication. Admin sessions are not rate limited.
type Middleware struct {
	limiter  *Limiter
	settings SettingsSource
	logger   *zap.Logger
}

// NewMiddleware creates the rate limiting middleware.
func NewMiddleware(limiter *Limiter, settings SettingsSource, logger *zap.Logger) *Middleware {
	return &Middleware{limiter: limiter, settings: settings, logger: logger}
}

// Handler wraps next with rate limiting. Enabled flag and limit come
// from settings on every request so admin changes apply immediately.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, ok := auth.AgentFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.settings.GetSettings(r.Context())
		if err != nil {
			// Fail open; the limiter protects capacity, not correctness.
			m.logger.Warn("Rate limit settings unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !s.RateLimitEnabled {
			next.ServeHTTP(w, r)
			return
		}

		limit := s.RateLimitPerMinute
		allowed, remaining := m.limiter.Allow(agent.ID, limit)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			retry := m.limiter.RetryAfter(agent.ID)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
			m.logger.Warn("Rate limit exceeded",
				zap.String("agent_id", agent.ID),
				zap.Int("limit", limit))
			http.Error(w, `{"error":"Rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openclaw/memoryd/internal/db"
)

var errInvalidAuthHeader = errors.New("invalid authorization header")

// ContextKey is the key type for context values.
type ContextKey string

const (
	// AgentContextKey carries the authenticated *db.Agent.
	AgentContextKey ContextKey = "agent"
	// AdminContextKey carries the *AdminClaims of an admin session.
	AdminContextKey ContextKey = "admin"
)

// Middleware wires agent-key and admin-token authentication onto HTTP
// handlers.
type Middleware struct {
	service *Service
	admin   *Admin
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(service *Service, admin *Admin) *Middleware {
	return &Middleware{service: service, admin: admin}
}

// AgentAuth requires a valid X-API-Key header and puts the agent in
// the request context.
func (m *Middleware) AgentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, ok := m.authenticateAgent(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth requires a valid Bearer token minted by the admin login.
func (m *Middleware) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.authenticateAdmin(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), AdminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AgentOrAdmin accepts either credential. Admin sessions get a wider
// view on some read paths, so handlers check both context keys.
func (m *Middleware) AgentOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			claims, ok := m.authenticateAdmin(w, r)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		agent, ok := m.authenticateAgent(w, r)
		if !ok {
			return
		}
		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticateAgent(w http.ResponseWriter, r *http.Request) (*db.Agent, bool) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		http.Error(w, `{"error":"API key is required"}`, http.StatusUnauthorized)
		return nil, false
	}
	agent, err := m.service.ValidateAgentKey(r.Context(), apiKey)
	if err != nil {
		http.Error(w, `{"error":"Invalid API key"}`, http.StatusUnauthorized)
		return nil, false
	}
	return agent, true
}

func (m *Middleware) authenticateAdmin(w http.ResponseWriter, r *http.Request) (*AdminClaims, bool) {
	authHeader := r.Header.Get("Authorization")
	token, err := ExtractBearerToken(authHeader)
	if err != nil {
		http.Error(w, `{"error":"Authorization header is required"}`, http.StatusUnauthorized)
		return nil, false
	}
	claims, err := m.admin.VerifyToken(token)
	if err != nil {
		http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// AgentFromContext extracts the authenticated agent, if any.
func AgentFromContext(ctx context.Context) (*db.Agent, bool) {
	agent, ok := ctx.Value(AgentContextKey).(*db.Agent)
	return agent, ok
}

// AdminFromContext extracts the admin claims, if any.
func AdminFromContext(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(AdminContextKey).(*AdminClaims)
	return claims, ok
}

// IsAdmin reports whether the request carries an admin session.
func IsAdmin(ctx context.Context) bool {
	_, ok := AdminFromContext(ctx)
	return ok
}

// ExtractBearerToken extracts the token from an Authorization header.
func ExtractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errInvalidAuthHeader
	}
	return parts[1], nil
}

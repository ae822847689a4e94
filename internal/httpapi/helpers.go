// Package httpapi exposes the agent-facing and admin-facing HTTP
// surfaces. Handlers are thin: decode, call the service, encode.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error's kind to an HTTP status and emits the
// standard error envelope.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	if status >= 500 {
		logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// principalID identifies the caller for audit records: the agent id,
// or "admin" for admin sessions.
func principalID(r *http.Request) string {
	if agent, ok := auth.AgentFromContext(r.Context()); ok {
		return agent.ID
	}
	if _, ok := auth.AdminFromContext(r.Context()); ok {
		return "admin"
	}
	return ""
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/ratelimit"
	"github.com/openclaw/memoryd/internal/retriever"
)

// SearchHandler serves semantic search and the entity timeline.
type SearchHandler struct {
	retriever *retriever.Retriever
	mw        *auth.Middleware
	limiter   *ratelimit.Middleware
	logger    *zap.Logger
}

// NewSearchHandler creates the search handler.
func NewSearchHandler(rt *retriever.Retriever, mw *auth.Middleware, limiter *ratelimit.Middleware, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{retriever: rt, mw: mw, limiter: limiter, logger: logger}
}

// RegisterRoutes registers the search endpoints on mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	agent := func(fn http.HandlerFunc) http.Handler {
		return h.mw.AgentOrAdmin(h.limiter.Handler(fn))
	}
	mux.Handle("POST /search", agent(h.handleSearch))
	mux.Handle("GET /timeline/{entity_type}/{entity_id}", agent(h.handleTimeline))
}

type searchRequest struct {
	Query      string `json:"query"`
	Types      string `json:"types"`
	SharedOnly bool   `json:"shared_only"`
	Limit      int    `json:"limit"`
	Filters    struct {
		EntityType string `json:"entity_type"`
		Channel    string `json:"channel"`
		Since      string `json:"since"`
		Until      string `json:"until"`
	} `json:"filters"`
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if body.Query == "" {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "query", "query is required"))
		return
	}

	q := retriever.Query{
		Query:      body.Query,
		Types:      body.Types,
		SharedOnly: body.SharedOnly,
		EntityType: body.Filters.EntityType,
		Channel:    body.Filters.Channel,
		Limit:      body.Limit,
	}
	var err error
	if q.Since, err = parseTimeParam(body.Filters.Since); err != nil {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "since", err.Error()))
		return
	}
	if q.Until, err = parseTimeParam(body.Filters.Until); err != nil {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "until", err.Error()))
		return
	}

	resp, err := h.retriever.Search(r.Context(), principalID(r), auth.IsAdmin(r.Context()), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SearchHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entity_type")
	entityID := r.PathValue("entity_id")

	f := db.MemoryFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if ch := r.URL.Query().Get("channel"); ch != "" {
		f.Channel = &ch
	}
	var err error
	if f.Since, err = parseTimeParam(r.URL.Query().Get("since")); err != nil {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "since", err.Error()))
		return
	}
	if f.Until, err = parseTimeParam(r.URL.Query().Get("until")); err != nil {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "until", err.Error()))
		return
	}

	memories, total, err := h.retriever.Timeline(r.Context(), entityType, entityID, f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
		"total":       total,
		"memories":    memories,
	})
}

// parseTimeParam accepts RFC3339 or a bare YYYY-MM-DD date. Empty input
// yields nil.
func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, errBadTime
	}
	return &t, nil
}

var errBadTime = apperr.E(apperr.KindInput, "timestamps must be RFC3339 or YYYY-MM-DD")

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

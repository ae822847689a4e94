package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/ingest"
	"github.com/openclaw/memoryd/internal/ratelimit"
)

// LessonsHandler serves lesson CRUD. Agents submit and read lessons;
// status transitions (approval, archival) are admin-only.
type LessonsHandler struct {
	ingestor *ingest.Service
	store    *db.Client
	mw       *auth.Middleware
	limiter  *ratelimit.Middleware
	logger   *zap.Logger
}

// NewLessonsHandler creates the lessons handler.
func NewLessonsHandler(ingestor *ingest.Service, store *db.Client, mw *auth.Middleware, limiter *ratelimit.Middleware, logger *zap.Logger) *LessonsHandler {
	return &LessonsHandler{
		ingestor: ingestor,
		store:    store,
		mw:       mw,
		limiter:  limiter,
		logger:   logger,
	}
}

// RegisterRoutes registers the lesson endpoints on mux.
func (h *LessonsHandler) RegisterRoutes(mux *http.ServeMux) {
	agent := func(fn http.HandlerFunc) http.Handler {
		return h.mw.AgentOrAdmin(h.limiter.Handler(fn))
	}
	mux.Handle("GET /lessons", agent(h.handleList))
	mux.Handle("POST /lessons", agent(h.handleCreate))
	mux.Handle("GET /lessons/{id}", agent(h.handleGet))
	mux.Handle("PATCH /lessons/{id}", agent(h.handleUpdate))
	mux.Handle("DELETE /lessons/{id}", agent(h.handleDelete))
}

func (h *LessonsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	f := db.LessonFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		f.Status = &s
	}
	if t := r.URL.Query().Get("lesson_type"); t != "" {
		f.LessonType = &t
	}

	lessons, total, err := h.store.ListLessons(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lessons": lessons,
		"total":   total,
	})
}

func (h *LessonsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LessonType      string         `json:"lesson_type"`
		Name            string         `json:"name"`
		Body            string         `json:"body"`
		RelatedEntities []db.EntityRef `json:"related_entities"`
		SourceMemoryIDs []string       `json:"source_memory_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}

	lesson, err := h.ingestor.CreateLesson(r.Context(), principalID(r), ingest.LessonRequest{
		LessonType:      body.LessonType,
		Name:            body.Name,
		Body:            body.Body,
		RelatedEntities: body.RelatedEntities,
		SourceMemoryIDs: body.SourceMemoryIDs,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

func (h *LessonsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.store.GetLesson(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (h *LessonsHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            *string        `json:"name"`
		Body            *string        `json:"body"`
		Status          *string        `json:"status"`
		RelatedEntities []db.EntityRef `json:"related_entities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if body.Status != nil && !auth.IsAdmin(r.Context()) {
		writeError(w, h.logger, apperr.E(apperr.KindAuth, "status changes require an admin session"))
		return
	}

	lesson, err := h.ingestor.UpdateLesson(r.Context(), principalID(r), r.PathValue("id"), ingest.LessonUpdate{
		Name:            body.Name,
		Body:            body.Body,
		Status:          body.Status,
		RelatedEntities: body.RelatedEntities,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (h *LessonsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ingestor.DeleteLesson(r.Context(), principalID(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

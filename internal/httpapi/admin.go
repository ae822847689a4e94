package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/vectordb"
)

// AdminHandler serves the operator surface: login, agent key
// management, configuration tables, runtime settings, stats, and the
// audit trail.
type AdminHandler struct {
	admin   *auth.Admin
	agents  *auth.Service
	store   *db.Client
	vectors *vectordb.Client
	mw      *auth.Middleware
	logger  *zap.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(admin *auth.Admin, agents *auth.Service, store *db.Client, vectors *vectordb.Client, mw *auth.Middleware, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:   admin,
		agents:  agents,
		store:   store,
		vectors: vectors,
		mw:      mw,
		logger:  logger,
	}
}

// RegisterRoutes registers the admin endpoints on mux. Everything but
// the login endpoint requires an admin session.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/login", h.handleLogin)

	admin := func(fn http.HandlerFunc) http.Handler {
		return h.mw.AdminAuth(fn)
	}

	mux.Handle("GET /admin/agents", admin(h.handleListAgents))
	mux.Handle("POST /admin/agents", admin(h.handleCreateAgent))
	mux.Handle("PATCH /admin/agents/{id}", admin(h.handleUpdateAgent))

	mux.Handle("GET /config/entity-types", admin(h.handleListEntityTypes))
	mux.Handle("POST /config/entity-types", admin(h.handleCreateEntityType))
	mux.Handle("DELETE /config/entity-types/{id}", admin(h.handleDeleteEntityType))
	mux.Handle("GET /config/entity-types/{id}/subtypes", admin(h.handleListSubtypes))
	mux.Handle("POST /config/entity-types/{id}/subtypes", admin(h.handleCreateSubtype))
	mux.Handle("DELETE /config/entity-subtypes/{id}", admin(h.handleDeleteSubtype))

	mux.Handle("GET /config/lesson-types", admin(h.handleListLessonTypes))
	mux.Handle("POST /config/lesson-types", admin(h.handleCreateLessonType))
	mux.Handle("DELETE /config/lesson-types/{id}", admin(h.handleDeleteLessonType))

	mux.Handle("GET /config/channel-types", admin(h.handleListChannelTypes))
	mux.Handle("POST /config/channel-types", admin(h.handleCreateChannelType))
	mux.Handle("DELETE /config/channel-types/{id}", admin(h.handleDeleteChannelType))

	mux.Handle("GET /config/prompts", admin(h.handleListPrompts))
	mux.Handle("PUT /config/prompts", admin(h.handleUpsertPrompt))
	mux.Handle("GET /config/llm-configs", admin(h.handleListLLMConfigs))
	mux.Handle("PUT /config/llm-configs", admin(h.handleUpsertLLMConfig))

	mux.Handle("GET /config/settings", admin(h.handleGetSettings))
	mux.Handle("PATCH /config/settings", admin(h.handleUpdateSettings))
	mux.Handle("GET /config/stats", admin(h.handleStats))

	mux.Handle("GET /admin/audit", admin(h.handleAudit))
	mux.Handle("POST /init", admin(h.handleInit))
}

func (h *AdminHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}

	token, expiresIn, err := h.admin.Login(body.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   expiresIn,
	})
}

func (h *AdminHandler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// handleCreateAgent mints a new agent key. The raw key appears in this
// response and nowhere else.
func (h *AdminHandler) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		AccessLevel string `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}

	agent, rawKey, err := h.agents.CreateAgent(r.Context(), body.Name, body.Description, body.AccessLevel)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.store.Audit(r.Context(), "admin", db.AuditActionAgentCreate, "agent", agent.ID,
		db.JSONB{"name": agent.Name})

	writeJSON(w, http.StatusCreated, struct {
		*db.Agent
		APIKey string `json:"api_key"`
	}{Agent: agent, APIKey: rawKey})
}

func (h *AdminHandler) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive    *bool   `json:"is_active"`
		AccessLevel *string `json:"access_level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if body.AccessLevel != nil {
		switch *body.AccessLevel {
		case db.AccessLevelPrivate, db.AccessLevelShared:
		default:
			writeError(w, h.logger, apperr.Field(apperr.KindInput, "access_level", "access_level must be private or shared"))
			return
		}
	}

	id := r.PathValue("id")
	if err := h.store.UpdateAgent(r.Context(), id, body.IsActive, body.AccessLevel); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.store.Audit(r.Context(), "admin", db.AuditActionAgentUpdate, "agent", id, nil)

	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AdminHandler) handleListEntityTypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListEntityTypes(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entity_types": out})
}

func (h *AdminHandler) handleCreateEntityType(w http.ResponseWriter, r *http.Request) {
	var et db.EntityType
	if err := json.NewDecoder(r.Body).Decode(&et); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if et.Name == "" {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "name", "name is required"))
		return
	}
	if err := h.store.CreateEntityType(r.Context(), &et); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, et)
}

func (h *AdminHandler) handleDeleteEntityType(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteEntityType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) handleListSubtypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListEntitySubtypes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subtypes": out})
}

func (h *AdminHandler) handleCreateSubtype(w http.ResponseWriter, r *http.Request) {
	var st db.EntitySubtype
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if st.Name == "" {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "name", "name is required"))
		return
	}
	st.EntityTypeID = r.PathValue("id")
	if err := h.store.CreateEntitySubtype(r.Context(), &st); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *AdminHandler) handleDeleteSubtype(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteEntitySubtype(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) handleListLessonTypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListLessonTypes(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lesson_types": out})
}

func (h *AdminHandler) handleCreateLessonType(w http.ResponseWriter, r *http.Request) {
	var lt db.LessonType
	if err := json.NewDecoder(r.Body).Decode(&lt); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if lt.Name == "" {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "name", "name is required"))
		return
	}
	if err := h.store.CreateLessonType(r.Context(), &lt); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

func (h *AdminHandler) handleDeleteLessonType(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteLessonType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) handleListChannelTypes(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListChannelTypes(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channel_types": out})
}

func (h *AdminHandler) handleCreateChannelType(w http.ResponseWriter, r *http.Request) {
	var ch db.ChannelType
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if ch.Name == "" {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "name", "name is required"))
		return
	}
	if err := h.store.CreateChannelType(r.Context(), &ch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *AdminHandler) handleDeleteChannelType(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChannelType(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListSystemPrompts(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": out})
}

// handleUpsertPrompt inserts when no id is given, updates otherwise.
func (h *AdminHandler) handleUpsertPrompt(w http.ResponseWriter, r *http.Request) {
	var p db.SystemPrompt
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if p.PromptType == "" || p.PromptText == "" {
		writeError(w, h.logger, apperr.E(apperr.KindInput, "prompt_type and prompt_text are required"))
		return
	}
	if err := h.store.UpsertSystemPrompt(r.Context(), &p); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) handleListLLMConfigs(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.ListLLMConfigs(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"llm_configs": out})
}

func (h *AdminHandler) handleUpsertLLMConfig(w http.ResponseWriter, r *http.Request) {
	var cfg db.LLMTaskConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if cfg.TaskType == "" || cfg.Model == "" {
		writeError(w, h.logger, apperr.E(apperr.KindInput, "task_type and model are required"))
		return
	}
	if err := h.store.UpsertLLMConfig(r.Context(), &cfg); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *AdminHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handleUpdateSettings applies a partial settings update by decoding
// the patch over the current row.
func (h *AdminHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(s); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInput, "invalid JSON body", err))
		return
	}
	if s.ChunkSize <= 0 || s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		writeError(w, h.logger, apperr.E(apperr.KindInput, "chunk_overlap must be non-negative and smaller than chunk_size"))
		return
	}
	if err := h.store.UpdateSettings(r.Context(), s); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.store.Audit(r.Context(), "admin", db.AuditActionSettingsWrite, "settings", "1", nil)
	writeJSON(w, http.StatusOK, s)
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAuditRecords(r.Context(),
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// handleInit re-creates any missing vector collections. Safe to call
// repeatedly; existing collections are left untouched.
func (h *AdminHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	if err := h.vectors.EnsureCollections(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "initialized",
		"collections": vectordb.Collections,
	})
}

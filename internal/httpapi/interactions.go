package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/ingest"
	"github.com/openclaw/memoryd/internal/ratelimit"
)

// maxUploadBytes bounds the multipart form, attachments included.
const maxUploadBytes = 32 << 20

// InteractionsHandler serves the interaction write and read endpoints.
type InteractionsHandler struct {
	ingestor *ingest.Service
	store    *db.Client
	mw       *auth.Middleware
	limiter  *ratelimit.Middleware
	logger   *zap.Logger
}

// NewInteractionsHandler creates the interactions handler.
func NewInteractionsHandler(ingestor *ingest.Service, store *db.Client, mw *auth.Middleware, limiter *ratelimit.Middleware, logger *zap.Logger) *InteractionsHandler {
	return &InteractionsHandler{
		ingestor: ingestor,
		store:    store,
		mw:       mw,
		limiter:  limiter,
		logger:   logger,
	}
}

// RegisterRoutes registers the interaction endpoints on mux.
func (h *InteractionsHandler) RegisterRoutes(mux *http.ServeMux) {
	agent := func(fn http.HandlerFunc) http.Handler {
		return h.mw.AgentOrAdmin(h.limiter.Handler(fn))
	}
	mux.Handle("POST /interactions", agent(h.handleIngest))
	mux.Handle("GET /memories/{id}", agent(h.handleGetMemory))
	mux.Handle("DELETE /memories/{id}", agent(h.handleDeleteMemory))
	mux.Handle("GET /daily/{date}", h.mw.AdminAuth(http.HandlerFunc(h.handleDaily)))
}

type interactionResponse struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Channel       string        `json:"channel"`
	SummaryText   string        `json:"summary_text"`
	HasDocuments  bool          `json:"has_documents"`
	Entities      db.EntityRefs `json:"entities"`
	Metadata      db.JSONB      `json:"metadata,omitempty"`
	VectorIndexed bool          `json:"vector_indexed"`
}

// handleIngest accepts a multipart form (text, channel, entities,
// metadata, files) or a plain JSON body for attachment-free callers.
func (h *InteractionsHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeIngest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), principalID(r), *req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	m := result.Memory
	writeJSON(w, http.StatusCreated, interactionResponse{
		ID:            m.ID,
		Timestamp:     m.Timestamp,
		Channel:       m.Channel,
		SummaryText:   m.SummaryText,
		HasDocuments:  m.HasDocuments,
		Entities:      m.Entities,
		Metadata:      m.Metadata,
		VectorIndexed: result.VectorIndexed,
	})
}

func (h *InteractionsHandler) decodeIngest(r *http.Request) (*ingest.Request, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Channel  string         `json:"channel"`
			Text     string         `json:"text"`
			Entities []db.EntityRef `json:"entities"`
			Metadata db.JSONB       `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, apperr.Wrap(apperr.KindInput, "invalid JSON body", err)
		}
		return &ingest.Request{
			Channel:  body.Channel,
			Text:     body.Text,
			Entities: body.Entities,
			Metadata: body.Metadata,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, apperr.Wrap(apperr.KindInput, "invalid multipart form", err)
	}

	req := &ingest.Request{
		Channel: r.FormValue("channel"),
		Text:    r.FormValue("text"),
	}
	if raw := r.FormValue("entities"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Entities); err != nil {
			return nil, apperr.Field(apperr.KindInput, "entities", "entities must be a JSON array")
		}
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			return nil, apperr.Field(apperr.KindInput, "metadata", "metadata must be a JSON object")
		}
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return nil, apperr.Wrap(apperr.KindInput, "failed to read upload", err)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, apperr.Wrap(apperr.KindInput, "failed to read upload", err)
			}
			req.Attachments = append(req.Attachments, ingest.Attachment{
				Filename: fh.Filename,
				MimeType: fh.Header.Get("Content-Type"),
				Content:  content,
			})
		}
	}
	return req, nil
}

func (h *InteractionsHandler) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	memory, err := h.store.GetMemory(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	docs, err := h.store.GetMemoryDocuments(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*db.Memory
		Documents []db.MemoryDocument `json:"documents"`
	}{Memory: memory, Documents: docs})
}

func (h *InteractionsHandler) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ingestor.DeleteMemory(r.Context(), principalID(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// handleDaily returns one day's memories in chronological order.
// Date format is YYYY-MM-DD.
func (h *InteractionsHandler) handleDaily(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, h.logger, apperr.Field(apperr.KindInput, "date", "date must be YYYY-MM-DD"))
		return
	}

	memories, err := h.store.MemoriesOnDate(r.Context(), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":     date,
		"count":    len(memories),
		"memories": memories,
	})
}

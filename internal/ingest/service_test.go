package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/embeddings"
	"github.com/openclaw/memoryd/internal/enricher"
	"github.com/openclaw/memoryd/internal/llm"
	"github.com/openclaw/memoryd/internal/parser"
	"github.com/openclaw/memoryd/internal/vectordb"
)

type stubPrompts struct{}

func (stubPrompts) GetActivePrompt(ctx context.Context, promptType string) (*db.SystemPrompt, error) {
	return nil, apperr.Ef(apperr.KindNotFound, "no active prompt for %s", promptType)
}

func (stubPrompts) GetActiveLLMConfig(ctx context.Context, taskType string) (*db.LLMTaskConfig, error) {
	return nil, nil
}

func newMockStore(t *testing.T) (*db.Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	store := db.NewClientFromDB(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mockDB.Close()
	})
	return store, mock
}

func expectSettings(mock sqlmock.Sqlmock, piiScrubbing, autoShare bool) {
	rows := sqlmock.NewRows([]string{
		"id", "chunk_size", "chunk_overlap", "pii_scrubbing_enabled", "auto_share_scrubbed",
	}).AddRow(1, 500, 50, piiScrubbing, autoShare)
	mock.ExpectQuery(`SELECT \* FROM memory_settings WHERE id = 1`).WillReturnRows(rows)
}

// vectorCapture records every request Qdrant would have received.
type vectorCapture struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
}

func (c *vectorCapture) record(path, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	c.bodies = append(c.bodies, body)
}

func (c *vectorCapture) snapshot() ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...), append([]string(nil), c.bodies...)
}

func newVectorServer(t *testing.T) (*vectordb.Client, *vectorCapture) {
	t.Helper()
	capture := &vectorCapture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capture.record(r.URL.Path, string(body))
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("failed to split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return vectordb.NewClient(vectordb.Config{Host: host, Port: port}, zap.NewNop()), capture
}

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		writeTestJSON(w, resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEmbedServer(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "provider down", http.StatusInternalServerError)
			return
		}
		var req struct {
			Input interface{} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad embedding request: %v", err)
		}
		n := 1
		if list, ok := req.Input.([]interface{}); ok {
			n = len(list)
		}
		data := make([]map[string]interface{}, n)
		for i := 0; i < n; i++ {
			data[i] = map[string]interface{}{
				"index":     i,
				"embedding": []float64{float64(i), float64(i) + 0.5},
			}
		}
		writeTestJSON(w, map[string]interface{}{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRedactServer(t *testing.T, fail bool, redacted string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "redaction down", http.StatusInternalServerError)
			return
		}
		writeTestJSON(w, map[string]string{"redacted_text": redacted})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newPipeline(t *testing.T, store *db.Client, chatURL, embedURL, redactURL string) (*Service, *vectorCapture) {
	t.Helper()
	logger := zap.NewNop()
	vectors, capture := newVectorServer(t)
	svc := NewService(
		store,
		parser.New(nil, logger),
		enricher.New(llm.NewClient(llm.Config{BaseURL: chatURL}, logger), stubPrompts{}, logger),
		llm.NewRedactor(redactURL, 0, logger),
		embeddings.NewService(embeddings.Config{BaseURL: embedURL}, nil),
		vectors,
		logger,
	)
	return svc, capture
}

func testRequest() Request {
	return Request{
		Channel: "email",
		Text:    "Meeting with Ada about the Q2 invoice schedule.",
		Entities: []db.EntityRef{
			{EntityType: "Contact", EntityID: "c-1", Name: "Ada", Role: "primary"},
		},
	}
}

func TestIngestBuildsCompositeAndIndexes(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, false, false)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO memory_documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO memory_audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))

	chat := newChatServer(t, "concise summary")
	embed := newEmbedServer(t, false)
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, "")

	req := testRequest()
	req.Attachments = []Attachment{{
		Filename: "notes.txt",
		MimeType: "text/plain",
		Content:  []byte("Agenda and action items."),
	}}

	result, err := svc.Ingest(context.Background(), "agent-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.VectorIndexed {
		t.Fatal("expected the memory to be vector-indexed")
	}
	if result.Memory.SummaryText != "concise summary" {
		t.Fatalf("expected enriched summary, got %q", result.Memory.SummaryText)
	}
	if !result.Memory.HasDocuments {
		t.Fatal("expected has_documents set")
	}

	paths, bodies := capture.snapshot()
	if len(paths) != 1 {
		t.Fatalf("expected one vector upsert, got %d", len(paths))
	}
	if paths[0] != "/collections/memory_interactions/points" {
		t.Fatalf("expected the private collection, got %s", paths[0])
	}
	if !strings.Contains(bodies[0], "[Document: notes.txt]") {
		t.Fatal("expected the indexed chunk to contain the parsed attachment")
	}
	if !strings.Contains(bodies[0], result.Memory.ID+"_0") {
		t.Fatal("expected point ids derived from the memory id and chunk index")
	}
}

func TestIngestKeepsDocumentRowWhenParseFails(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, false, false)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO memory_documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO memory_audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))

	chat := newChatServer(t, "summary")
	embed := newEmbedServer(t, false)
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, "")

	req := testRequest()
	req.Attachments = []Attachment{{
		Filename: "broken.txt",
		MimeType: "text/plain",
		Content:  []byte{0xff, 0xfe, 0xfd}, // not UTF-8
	}}

	result, err := svc.Ingest(context.Background(), "agent-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Memory.HasDocuments {
		t.Fatal("expected the document row kept despite the parse failure")
	}

	_, bodies := capture.snapshot()
	if len(bodies) != 1 {
		t.Fatalf("expected one vector upsert, got %d", len(bodies))
	}
	if strings.Contains(bodies[0], "[Document:") {
		t.Fatal("expected no document text in the composite for an unparseable file")
	}
}

func TestIngestSurvivesEmbeddingOutage(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, false, false)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO memory_audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))

	chat := newChatServer(t, "summary")
	embed := newEmbedServer(t, true)
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, "")

	result, err := svc.Ingest(context.Background(), "agent-1", testRequest())
	if err != nil {
		t.Fatalf("expected the memory stored despite the outage, got %v", err)
	}
	if result.VectorIndexed {
		t.Fatal("expected vector_indexed false when embedding fails")
	}

	paths, _ := capture.snapshot()
	if len(paths) != 0 {
		t.Fatalf("expected no vector upserts without embeddings, got %d", len(paths))
	}
}

func TestIngestNoVectorWritesWithoutCommit(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, false, false)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	chat := newChatServer(t, "summary")
	embed := newEmbedServer(t, false)
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, "")

	_, err := svc.Ingest(context.Background(), "agent-1", testRequest())
	if err == nil {
		t.Fatal("expected an error when the transaction fails")
	}

	paths, _ := capture.snapshot()
	if len(paths) != 0 {
		t.Fatalf("expected no vector point before a commit, got %d upserts", len(paths))
	}
}

func TestIngestSharedProjection(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, true, true)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO memories_shared`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO memory_audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))

	chat := newChatServer(t, "summary")
	embed := newEmbedServer(t, false)
	redact := newRedactServer(t, false, "scrubbed text [REDACTED]")
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, redact.URL)

	result, err := svc.Ingest(context.Background(), "agent-1", testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.VectorIndexed {
		t.Fatal("expected the private side indexed")
	}

	paths, bodies := capture.snapshot()
	if len(paths) != 2 {
		t.Fatalf("expected private and shared upserts, got %d", len(paths))
	}
	if paths[0] != "/collections/memory_interactions/points" ||
		paths[1] != "/collections/memory_interactions_shared/points" {
		t.Fatalf("expected private then shared collections, got %v", paths)
	}
	if !strings.Contains(bodies[1], "scrubbed text") {
		t.Fatal("expected the shared points built from the scrubbed text")
	}
	if strings.Contains(bodies[1], "Q2 invoice schedule") {
		t.Fatal("expected no raw text in the shared collection")
	}
}

func TestIngestWithholdsSharedProjectionOnRedactionOutage(t *testing.T) {
	store, mock := newMockStore(t)
	expectSettings(mock, true, true)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO memories \(`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO memory_audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))

	chat := newChatServer(t, "summary")
	embed := newEmbedServer(t, false)
	redact := newRedactServer(t, true, "")
	svc, capture := newPipeline(t, store, chat.URL, embed.URL, redact.URL)

	result, err := svc.Ingest(context.Background(), "agent-1", testRequest())
	if err != nil {
		t.Fatalf("expected the private path to proceed, got %v", err)
	}
	if !result.VectorIndexed {
		t.Fatal("expected the private side indexed")
	}

	paths, _ := capture.snapshot()
	if len(paths) != 1 {
		t.Fatalf("expected only the private upsert, got %d", len(paths))
	}
	if paths[0] != "/collections/memory_interactions/points" {
		t.Fatalf("expected the private collection only, got %v", paths)
	}
}

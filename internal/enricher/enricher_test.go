package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/llm"
)

type stubPrompts struct {
	prompts map[string]*db.SystemPrompt
	configs map[string]*db.LLMTaskConfig
}

func (s *stubPrompts) GetActivePrompt(_ context.Context, promptType string) (*db.SystemPrompt, error) {
	if p, ok := s.prompts[promptType]; ok {
		return p, nil
	}
	return nil, errors.New("no active prompt")
}

func (s *stubPrompts) GetActiveLLMConfig(_ context.Context, taskType string) (*db.LLMTaskConfig, error) {
	if c, ok := s.configs[taskType]; ok {
		return c, nil
	}
	return nil, errors.New("no active config")
}

// completionServer returns a chat endpoint that always replies with
// content and records the last prompt it saw.
func completionServer(t *testing.T, content string, lastPrompt *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			*lastPrompt = req.Messages[0].Content
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func newTestEnricher(t *testing.T, content string, lastPrompt *string, prompts *stubPrompts) *Enricher {
	t.Helper()
	srv := completionServer(t, content, lastPrompt)
	t.Cleanup(srv.Close)
	client := llm.NewClient(llm.Config{BaseURL: srv.URL}, zap.NewNop())
	return New(client, prompts, zap.NewNop())
}

func TestSummarizeEmptyText(t *testing.T) {
	e := New(llm.NewClient(llm.Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop()),
		&stubPrompts{}, zap.NewNop())
	got, err := e.Summarize(context.Background(), "")
	if err != nil || got != "" {
		t.Fatalf("expected empty summary without error, got %q, %v", got, err)
	}
}

func TestSummarizeUsesActiveTemplate(t *testing.T) {
	var prompt string
	prompts := &stubPrompts{prompts: map[string]*db.SystemPrompt{
		db.TaskSummarization: {PromptText: "Condense: {text}"},
	}}
	e := newTestEnricher(t, "a short summary", &prompt, prompts)

	got, err := e.Summarize(context.Background(), "the interaction body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a short summary" {
		t.Fatalf("expected model content, got %q", got)
	}
	if prompt != "Condense: the interaction body" {
		t.Fatalf("expected interpolated template, got %q", prompt)
	}
}

func TestSummarizeFallbackTemplate(t *testing.T) {
	var prompt string
	e := newTestEnricher(t, "fallback summary", &prompt, &stubPrompts{})

	if _, err := e.Summarize(context.Background(), "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(prompt, "Summarize this in 1-2 sentences:") {
		t.Fatalf("expected built-in template, got %q", prompt)
	}
}

func TestSummarizeTruncatesLongText(t *testing.T) {
	var prompt string
	prompts := &stubPrompts{prompts: map[string]*db.SystemPrompt{
		db.TaskSummarization: {PromptText: "{text}"},
	}}
	e := newTestEnricher(t, "ok", &prompt, prompts)

	long := strings.Repeat("x", maxPromptChars+500)
	if _, err := e.Summarize(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prompt) != maxPromptChars {
		t.Fatalf("expected prompt capped at %d chars, got %d", maxPromptChars, len(prompt))
	}
}

func TestExtractEntities(t *testing.T) {
	var prompt string
	prompts := &stubPrompts{prompts: map[string]*db.SystemPrompt{
		db.TaskEntityExtraction: {PromptText: "Find entities in: {text}"},
	}}
	response := "```json\n" + `[{"type":"person","name":"Ada","role":"author"},{"type":"project","name":"memoryd"}]` + "\n```"
	e := newTestEnricher(t, response, &prompt, prompts)

	got := e.ExtractEntities(context.Background(), "Ada pushed a fix to memoryd")
	want := []db.EntityRef{
		{EntityType: "person", Name: "Ada", Role: "author"},
		{EntityType: "project", Name: "memoryd"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestExtractEntitiesNoTemplate(t *testing.T) {
	var prompt string
	e := newTestEnricher(t, "should not be called", &prompt, &stubPrompts{})

	if got := e.ExtractEntities(context.Background(), "some text"); got != nil {
		t.Fatalf("expected nil without an active template, got %+v", got)
	}
	if prompt != "" {
		t.Fatal("expected no provider call without an active template")
	}
}

func TestExtractEntitiesUnparseable(t *testing.T) {
	var prompt string
	prompts := &stubPrompts{prompts: map[string]*db.SystemPrompt{
		db.TaskEntityExtraction: {PromptText: "{text}"},
	}}
	e := newTestEnricher(t, "Sorry, I cannot do that.", &prompt, prompts)

	if got := e.ExtractEntities(context.Background(), "text"); got != nil {
		t.Fatalf("expected nil for unparseable response, got %+v", got)
	}
}

func TestParseEntityResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []db.EntityRef
		ok       bool
	}{
		{
			name:     "plain array",
			response: `[{"type":"person","name":"Bo","role":"reviewer"}]`,
			want:     []db.EntityRef{{EntityType: "person", Name: "Bo", Role: "reviewer"}},
			ok:       true,
		},
		{
			name:     "json fence",
			response: "```json\n[{\"type\":\"tool\",\"name\":\"qdrant\"}]\n```",
			want:     []db.EntityRef{{EntityType: "tool", Name: "qdrant"}},
			ok:       true,
		},
		{
			name:     "bare fence",
			response: "```\n[]\n```",
			want:     []db.EntityRef{},
			ok:       true,
		},
		{
			name:     "skips incomplete entries",
			response: `[{"type":"","name":"x"},{"type":"person","name":""},{"type":"person","name":"Cy"}]`,
			want:     []db.EntityRef{{EntityType: "person", Name: "Cy"}},
			ok:       true,
		},
		{
			name:     "not json",
			response: "here are the entities you asked for",
			want:     nil,
			ok:       false,
		},
		{
			name:     "object instead of array",
			response: `{"type":"person","name":"Dee"}`,
			want:     nil,
			ok:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEntityResponse(tt.response)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTaskOptions(t *testing.T) {
	prompts := &stubPrompts{configs: map[string]*db.LLMTaskConfig{
		"summarization": {Model: "gpt-4o", MaxTokens: 900, Temperature: 0.7},
		"partial":       {Model: "", MaxTokens: 0, Temperature: 0},
	}}
	e := New(llm.NewClient(llm.Config{}, zap.NewNop()), prompts, zap.NewNop())

	got := e.taskOptions(context.Background(), "summarization", 200)
	want := llm.TaskOptions{Model: "gpt-4o", MaxTokens: 900, Temperature: 0.7}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	got = e.taskOptions(context.Background(), "partial", 200)
	if got != (llm.TaskOptions{MaxTokens: 200}) {
		t.Fatalf("expected defaults preserved for zero config, got %+v", got)
	}

	got = e.taskOptions(context.Background(), "missing", 500)
	if got != (llm.TaskOptions{MaxTokens: 500}) {
		t.Fatalf("expected defaults when no config row exists, got %+v", got)
	}
}

package retriever

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/openclaw/memoryd/internal/vectordb"
)

func TestBuildFilter(t *testing.T) {
	if got := buildFilter(Query{}); got != nil {
		t.Fatalf("expected nil filter for an unconstrained query, got %v", got)
	}

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got := buildFilter(Query{
		EntityType: "Contact",
		Channel:    "email",
		Since:      &since,
	})
	if got == nil {
		t.Fatal("expected filter with clauses")
	}
	must, ok := got["must"].([]map[string]interface{})
	if !ok || len(must) != 3 {
		t.Fatalf("expected three must clauses, got %v", got)
	}
	if must[0]["key"] != "entities[].entity_type" {
		t.Fatalf("expected nested entity clause first, got %v", must[0])
	}
	if must[1]["key"] != "channel" {
		t.Fatalf("expected channel clause, got %v", must[1])
	}
	rng, ok := must[2]["range"].(map[string]interface{})
	if !ok || rng["gte"] != "2026-03-01T00:00:00Z" {
		t.Fatalf("expected open-ended range from since, got %v", must[2])
	}
	if _, hasLTE := rng["lte"]; hasLTE {
		t.Fatal("expected no upper bound without until")
	}
}

func TestInteractionResult(t *testing.T) {
	p := vectordb.ScoredPoint{
		ID:    "point-1",
		Score: 0.87,
		Payload: map[string]interface{}{
			"memory_id":  "m-1",
			"chunk_text": "we agreed to ship on Friday",
			"timestamp":  "2026-03-01T12:00:00Z",
			"channel":    "chat",
		},
	}
	got := interactionResult(p)
	if got.ID != "m-1" || got.Type != "interaction" || got.Score != 0.87 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Snippet != "we agreed to ship on Friday" {
		t.Fatalf("unexpected snippet %q", got.Snippet)
	}
	if got.Metadata["channel"] != "chat" {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}
}

func TestLessonResult(t *testing.T) {
	p := vectordb.ScoredPoint{
		Score: 0.6,
		Payload: map[string]interface{}{
			"lesson_id":   "l-1",
			"summary":     "always confirm the invoice number",
			"created_at":  "2026-02-10T09:00:00Z",
			"lesson_type": "process",
		},
	}
	got := lessonResult(p)
	if got.ID != "l-1" || got.Type != "lesson" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Metadata["lesson_type"] != "process" {
		t.Fatalf("unexpected metadata %v", got.Metadata)
	}
}

func TestPayloadString(t *testing.T) {
	payload := map[string]interface{}{
		"str": "value",
		"num": 42,
	}
	if got := payloadString(payload, "str"); got != "value" {
		t.Fatalf("expected %q, got %q", "value", got)
	}
	if got := payloadString(payload, "num"); got != "" {
		t.Fatalf("expected empty string for non-string value, got %q", got)
	}
	if got := payloadString(payload, "missing"); got != "" {
		t.Fatalf("expected empty string for missing key, got %q", got)
	}
	if got := payloadString(nil, "any"); got != "" {
		t.Fatalf("expected empty string for nil payload, got %q", got)
	}
}

func TestSnippet(t *testing.T) {
	short := "short text"
	if got := snippet(short); got != short {
		t.Fatalf("expected short text untouched, got %q", got)
	}

	long := strings.Repeat("a", snippetLen+100)
	got := snippet(long)
	if len(got) != snippetLen {
		t.Fatalf("expected %d-char snippet, got %d", snippetLen, len(got))
	}
	if !strings.HasPrefix(long, got) {
		t.Fatal("expected snippet to be a prefix of the source")
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// snippetLen is not a multiple of 3, so a run of 3-byte runes puts
	// the cut mid-rune; the snippet must back off to a rune boundary.
	text := strings.Repeat("日", snippetLen)
	got := snippet(text)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8, got %q", got)
	}
	if len(got) == 0 || len(got) > snippetLen {
		t.Fatalf("expected a truncated snippet within %d bytes, got %d", snippetLen, len(got))
	}
	if !strings.HasSuffix(got, "日") {
		t.Fatalf("expected snippet to end on a whole rune, got %q", got)
	}
}

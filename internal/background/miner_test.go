package background

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/llm"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"name":"x"}`, `{"name":"x"}`},
		{"```json\n{\"name\":\"x\"}\n```", `{"name":"x"}`},
		{"```\n{}\n```", "{}"},
		{"  \n```json\n[]\n```\n  ", "[]"},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Fatalf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("short", 10); got != "short" {
		t.Fatalf("expected short text untouched, got %q", got)
	}
	long := strings.Repeat("a", 50)
	if got := excerpt(long, 10); got != long[:10] {
		t.Fatalf("expected 10-char excerpt, got %q", got)
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// The cut falls mid-rune; the excerpt must back off to the last
	// rune boundary instead of emitting a broken sequence.
	text := strings.Repeat("日", 20)
	got := excerpt(text, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8, got %q", got)
	}
	if got != strings.Repeat("日", 3) {
		t.Fatalf("expected 3 whole runes, got %q", got)
	}
}

func TestClusterRefsRecoversFullRef(t *testing.T) {
	cluster := db.EntityCluster{EntityType: "Contact", EntityID: "c-1"}
	memories := []db.Memory{{
		Entities: db.EntityRefs{
			{EntityType: "Organization", EntityID: "o-9", Name: "Acme"},
			{EntityType: "Contact", EntityID: "c-1", Name: "Ada", Role: "primary"},
		},
	}}

	got := clusterRefs(cluster, memories)
	want := db.EntityRefs{{EntityType: "Contact", EntityID: "c-1", Name: "Ada", Role: "primary"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected full reference recovered, got %+v", got)
	}
}

func TestClusterRefsFallback(t *testing.T) {
	cluster := db.EntityCluster{EntityType: "Contact", EntityID: "c-2"}
	got := clusterRefs(cluster, nil)
	want := db.EntityRefs{{EntityType: "Contact", EntityID: "c-2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected synthesized reference, got %+v", got)
	}
}

func TestMinerSkipsEntityWithRecentLesson(t *testing.T) {
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

	clusters := sqlmock.NewRows([]string{"entity_type", "entity_id", "cnt"}).
		AddRow("Contact", "c-1", 12)
	mock.ExpectQuery(`HAVING COUNT`).WillReturnRows(clusters)

	prompt := sqlmock.NewRows([]string{"id", "prompt_type", "name", "prompt_text", "is_active"}).
		AddRow("p-1", db.TaskLessonExtraction, "Miner", "Distill {entity}:\n{interactions}", true)
	mock.ExpectQuery(`FROM memory_system_prompts`).WillReturnRows(prompt)

	recent := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`FROM memory_lessons l`).WillReturnRows(recent)

	// A cluster that already produced a lesson in the window must not
	// reach the model or insert anything.
	var llmCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		llmCalls.Add(1)
		http.Error(w, "unexpected call", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	miner := NewMiner(store, llm.NewClient(llm.Config{BaseURL: srv.URL}, zap.NewNop()), nil, zap.NewNop())
	if err := miner.Run(context.Background(), &db.Settings{AutoLessonThreshold: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := llmCalls.Load(); n != 0 {
		t.Fatalf("expected no model calls for a deduplicated cluster, got %d", n)
	}
}

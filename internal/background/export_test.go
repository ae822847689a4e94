package background

import (
	"strings"
	"testing"
	"time"

	"github.com/openclaw/memoryd/internal/db"
)

func TestRenderDay(t *testing.T) {
	memories := []db.Memory{
		{
			ID:          "m-1",
			Channel:     "email",
			Timestamp:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			SummaryText: "Confirmed the Q2 invoice schedule.",
			RawText:     "Full email body here.",
			Entities: db.EntityRefs{
				{EntityType: "Contact", Name: "Ada", Role: "primary"},
			},
		},
	}

	out := renderDay("2026-03-01", memories)

	for _, want := range []string{
		"# Memories - 2026-03-01",
		"## 09:30 - Email",
		"**Summary:** Confirmed the Q2 invoice schedule.",
		"**Entities:** Ada (Contact)",
		"```\nFull email body here.\n```",
		"---",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderDayTruncatesRawText(t *testing.T) {
	memories := []db.Memory{{
		Channel:   "chat",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		RawText:   strings.Repeat("x", rawTextExcerpt+100),
	}}

	out := renderDay("2026-03-01", memories)
	if !strings.Contains(out, strings.Repeat("x", rawTextExcerpt)+"...") {
		t.Fatal("expected raw text truncated with ellipsis")
	}
	if strings.Contains(out, strings.Repeat("x", rawTextExcerpt+1)) {
		t.Fatal("expected no more than the excerpt length of raw text")
	}
}

func TestRenderLessons(t *testing.T) {
	lessons := []db.Lesson{{
		Name:      "Confirm invoice numbers",
		Body:      "Always cross-check the invoice number before replying.",
		CreatedAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}}

	out := renderLessons("Process", lessons)
	for _, want := range []string{
		"# Process Lessons",
		"## Confirm invoice numbers",
		"Always cross-check the invoice number before replying.",
		"*Created: 2026-02-10*",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderIndex(t *testing.T) {
	out := renderIndex(12, 3, 40)
	for _, want := range []string{
		"# Memory System Export",
		"- **Days with memories:** 12",
		"- **Lesson types:** 3",
		"- **Total lessons:** 40",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q", want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"email", "Email"},
		{"slack thread", "Slack Thread"},
		{"", ""},
		{"  padded  ", "Padded"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Fatalf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

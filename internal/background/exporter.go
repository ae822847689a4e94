package background

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/metrics"
)

const (
	exportDays      = 30
	rawTextExcerpt  = 500
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Exporter writes the markdown snapshot tree: per-day memory logs,
// per-type lesson files, and an index. Each run overwrites the target
// files, so the export is idempotent.
type Exporter struct {
	store  *db.Client
	logger *zap.Logger
}

// NewExporter creates a snapshot exporter.
func NewExporter(store *db.Client, logger *zap.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// Run exports the snapshot to the configured sync path. The sync_type
// setting only distinguishes how the target directory is consumed
// downstream; both values write to the filesystem.
func (e *Exporter) Run(ctx context.Context, settings *db.Settings) error {
	if settings.OpenclawSyncPath == "" {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return apperr.E(apperr.KindInput, "sync path not configured")
	}

	base := settings.OpenclawSyncPath
	memoriesDir := filepath.Join(base, "memories")
	lessonsDir := filepath.Join(base, "lessons")
	for _, dir := range []string{base, memoriesDir, lessonsDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			metrics.ExportRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to create export dir: %w", err)
		}
	}

	dates, err := e.store.MemoryDates(ctx, exportDays)
	if err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return err
	}
	for _, d := range dates {
		memories, err := e.store.MemoriesOnDate(ctx, d.Date)
		if err != nil {
			metrics.ExportRuns.WithLabelValues("error").Inc()
			return err
		}
		path := filepath.Join(memoriesDir, d.Date+".md")
		if err := os.WriteFile(path, []byte(renderDay(d.Date, memories)), filePermissions); err != nil {
			metrics.ExportRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	lessons, err := e.store.ListApprovedLessons(ctx)
	if err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return err
	}
	byType := map[string][]db.Lesson{}
	var typeOrder []string
	for _, l := range lessons {
		if _, seen := byType[l.LessonType]; !seen {
			typeOrder = append(typeOrder, l.LessonType)
		}
		byType[l.LessonType] = append(byType[l.LessonType], l)
	}
	for _, lessonType := range typeOrder {
		filename := strings.ReplaceAll(strings.ToLower(lessonType), " ", "_") + ".md"
		path := filepath.Join(lessonsDir, filename)
		if err := os.WriteFile(path, []byte(renderLessons(lessonType, byType[lessonType])), filePermissions); err != nil {
			metrics.ExportRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	index := renderIndex(len(dates), len(typeOrder), len(lessons))
	if err := os.WriteFile(filepath.Join(base, "README.md"), []byte(index), filePermissions); err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write index: %w", err)
	}

	metrics.ExportRuns.WithLabelValues("ok").Inc()
	e.logger.Info("Snapshot export completed",
		zap.String("path", base),
		zap.Int("days", len(dates)),
		zap.Int("lessons", len(lessons)))
	return nil
}

func renderDay(date string, memories []db.Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Memories - %s\n\n", date)

	for _, m := range memories {
		fmt.Fprintf(&b, "## %s - %s\n\n", m.Timestamp.Format("15:04"), titleCase(m.Channel))

		if m.SummaryText != "" {
			fmt.Fprintf(&b, "**Summary:** %s\n\n", m.SummaryText)
		}
		if len(m.Entities) > 0 {
			parts := make([]string, 0, len(m.Entities))
			for _, ent := range m.Entities {
				parts = append(parts, fmt.Sprintf("%s (%s)", ent.Name, ent.EntityType))
			}
			fmt.Fprintf(&b, "**Entities:** %s\n\n", strings.Join(parts, ", "))
		}

		raw := m.RawText
		ellipsis := ""
		if len(raw) > rawTextExcerpt {
			raw = excerpt(raw, rawTextExcerpt)
			ellipsis = "..."
		}
		fmt.Fprintf(&b, "```\n%s%s\n```\n\n", raw, ellipsis)
		b.WriteString("---\n\n")
	}
	return b.String()
}

func renderLessons(lessonType string, lessons []db.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Lessons\n\n", lessonType)

	for _, l := range lessons {
		fmt.Fprintf(&b, "## %s\n\n", l.Name)
		fmt.Fprintf(&b, "%s\n\n", l.Body)
		fmt.Fprintf(&b, "*Created: %s*\n\n", l.CreatedAt.Format("2006-01-02"))
		b.WriteString("---\n\n")
	}
	return b.String()
}

func renderIndex(days, lessonTypes, totalLessons int) string {
	var b strings.Builder
	b.WriteString("# Memory System Export\n\n")
	fmt.Fprintf(&b, "*Last updated: %s*\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("## Structure\n\n")
	b.WriteString("- `memories/` - Daily memory logs\n")
	b.WriteString("- `lessons/` - Curated lessons by type\n\n")
	b.WriteString("## Stats\n\n")
	fmt.Fprintf(&b, "- **Days with memories:** %d\n", days)
	fmt.Fprintf(&b, "- **Lesson types:** %d\n", lessonTypes)
	fmt.Fprintf(&b, "- **Total lessons:** %d\n", totalLessons)
	return b.String()
}

// titleCase capitalizes the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

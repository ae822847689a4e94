package background

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/ingest"
	"github.com/openclaw/memoryd/internal/llm"
	"github.com/openclaw/memoryd/internal/metrics"
)

const (
	miningWindow      = 7 * 24 * time.Hour
	minerInteractions = 10
	minerSummaryLen   = 200
)

// Miner distills draft lessons from entity clusters with enough
// recent interaction volume. Clustering and dedup are structural over
// the entity references, so stored JSON key order is irrelevant.
type Miner struct {
	store    *db.Client
	client   *llm.Client
	ingestor *ingest.Service
	logger   *zap.Logger
}

// NewMiner creates a lesson miner.
func NewMiner(store *db.Client, client *llm.Client, ingestor *ingest.Service, logger *zap.Logger) *Miner {
	return &Miner{store: store, client: client, ingestor: ingestor, logger: logger}
}

// Run mines at most one lesson per qualifying entity cluster.
func (m *Miner) Run(ctx context.Context, settings *db.Settings) error {
	since := time.Now().UTC().Add(-miningWindow)

	clusters, err := m.store.EntityClusters(ctx, since, settings.AutoLessonThreshold)
	if err != nil {
		return err
	}

	prompt, err := m.store.GetActivePrompt(ctx, db.TaskLessonExtraction)
	if err != nil {
		// No template, nothing to mine with.
		m.logger.Warn("Lesson mining skipped, no extraction prompt", zap.Error(err))
		return nil
	}

	mined := 0
	for _, cluster := range clusters {
		created, err := m.mineCluster(ctx, cluster, prompt.PromptText, since)
		if err != nil {
			m.logger.Warn("Cluster mining failed",
				zap.String("entity", cluster.EntityID),
				zap.Error(err))
			continue
		}
		if created {
			mined++
		}
	}

	if mined > 0 {
		m.logger.Info("Lesson mining completed",
			zap.Int("clusters", len(clusters)),
			zap.Int("lessons_created", mined))
	}
	return nil
}

func (m *Miner) mineCluster(ctx context.Context, cluster db.EntityCluster, template string, since time.Time) (bool, error) {
	exists, err := m.store.HasRecentLessonForEntity(ctx, cluster.EntityID, since)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	memories, err := m.store.MemoriesForEntity(ctx, cluster.EntityID, since, minerInteractions)
	if err != nil {
		return false, err
	}
	if len(memories) == 0 {
		return false, nil
	}

	var parts []string
	sourceIDs := make([]string, 0, len(memories))
	for _, mem := range memories {
		text := mem.SummaryText
		if text == "" {
			text = excerpt(mem.RawText, 300)
		}
		parts = append(parts, fmt.Sprintf("[%s - %s]\n%s",
			mem.Channel, mem.Timestamp.Format("2006-01-02"), text))
		sourceIDs = append(sourceIDs, mem.ID)
	}

	prompt := strings.ReplaceAll(template, "{entity}", cluster.EntityID)
	prompt = strings.ReplaceAll(prompt, "{interactions}", strings.Join(parts, "\n\n"))

	response, err := m.client.Complete(ctx, llm.TaskOptions{MaxTokens: 500}, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return false, err
	}

	var extracted struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal([]byte(stripFence(response)), &extracted); err != nil {
		return false, fmt.Errorf("unparseable lesson JSON: %w", err)
	}
	if extracted.Name == "" {
		extracted.Name = "Untitled Lesson"
	}
	if extracted.Type == "" {
		extracted.Type = "Other"
	}

	now := time.Now().UTC()
	lesson := &db.Lesson{
		ID:              uuid.New().String(),
		LessonType:      extracted.Type,
		Name:            extracted.Name,
		Body:            extracted.Body,
		Summary:         excerpt(extracted.Body, minerSummaryLen),
		Status:          db.LessonStatusDraft,
		RelatedEntities: clusterRefs(cluster, memories),
		SourceMemoryIDs: sourceIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.InsertLesson(ctx, lesson); err != nil {
		return false, err
	}

	m.ingestor.EmbedLesson(ctx, lesson)
	metrics.LessonsMined.Inc()
	m.logger.Info("Auto-mined lesson",
		zap.String("lesson_id", lesson.ID),
		zap.String("name", lesson.Name),
		zap.String("entity", cluster.EntityID))
	return true, nil
}

// clusterRefs recovers the full entity reference from the source
// memories; the cluster key only carries the type and id.
func clusterRefs(cluster db.EntityCluster, memories []db.Memory) db.EntityRefs {
	key := cluster.EntityType + ":" + cluster.EntityID
	for _, mem := range memories {
		for _, ref := range mem.Entities {
			if ref.Key() == key {
				return db.EntityRefs{ref}
			}
		}
	}
	return db.EntityRefs{{EntityType: cluster.EntityType, EntityID: cluster.EntityID}}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// excerpt truncates to at most n bytes without splitting a UTF-8
// sequence.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

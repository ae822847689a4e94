// Package retriever implements hybrid search over the vector
// collections with a relational fallback for admin callers.
package retriever

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/embeddings"
	"github.com/openclaw/memoryd/internal/metrics"
	"github.com/openclaw/memoryd/internal/vectordb"
)

const snippetLen = 200

// Query is one search invocation.
type Query struct {
	Query string
	// Types selects which collections to hit: interactions, lessons,
	// or both (the default).
	Types      string
	SharedOnly bool
	EntityType string
	Channel    string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// Result is one search hit.
type Result struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // interaction | lesson
	Score     float64                `json:"score"`
	Snippet   string                 `json:"snippet"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Response wraps the merged result list.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Retriever performs semantic and fallback search.
type Retriever struct {
	store    *db.Client
	embedder *embeddings.Service
	vectors  *vectordb.Client
	logger   *zap.Logger
}

// New creates a retriever.
func New(store *db.Client, embedder *embeddings.Service, vectors *vectordb.Client, logger *zap.Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, vectors: vectors, logger: logger}
}

// Search embeds the query, fans out across the selected collections,
// and merges hits by score. When embedding fails, admin callers fall
// back to relational substring search; agents get an empty result set.
func (r *Retriever) Search(ctx context.Context, agentID string, isAdmin bool, q Query) (*Response, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Types == "" {
		q.Types = "both"
	}

	principal := "agent"
	if isAdmin {
		principal = "admin"
	}

	vec, err := r.embedder.GenerateEmbedding(ctx, q.Query, "")
	if err != nil || len(vec) == 0 {
		if isAdmin {
			metrics.SearchesTotal.WithLabelValues(principal, "fallback").Inc()
			return r.relationalFallback(ctx, q)
		}
		r.logger.Warn("Query embedding failed, returning empty result set",
			zap.Error(err))
		metrics.SearchesTotal.WithLabelValues(principal, "empty").Inc()
		return &Response{Results: []Result{}, Total: 0, Query: q.Query}, nil
	}
	metrics.SearchesTotal.WithLabelValues(principal, "semantic").Inc()

	filter := buildFilter(q)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	searchCollection := func(collection string, convert func(vectordb.ScoredPoint) Result) {
		defer wg.Done()
		hits, err := r.vectors.Search(ctx, collection, vec, q.Limit, filter)
		if err != nil {
			r.logger.Warn("Vector search failed",
				zap.String("collection", collection),
				zap.Error(err))
			return
		}
		mu.Lock()
		for _, h := range hits {
			results = append(results, convert(h))
		}
		mu.Unlock()
	}

	if q.Types == "both" || q.Types == "interactions" {
		collection := vectordb.CollectionInteractions
		if q.SharedOnly {
			collection = vectordb.CollectionInteractionsShared
		}
		wg.Add(1)
		go searchCollection(collection, interactionResult)
	}
	if q.Types == "both" || q.Types == "lessons" {
		collection := vectordb.CollectionLessons
		if q.SharedOnly {
			collection = vectordb.CollectionLessonsShared
		}
		wg.Add(1)
		go searchCollection(collection, lessonResult)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	if results == nil {
		results = []Result{}
	}

	r.store.Audit(ctx, agentID, db.AuditActionSearch, "", "",
		db.JSONB{"query": q.Query, "results_count": len(results)})

	return &Response{Results: results, Total: len(results), Query: q.Query}, nil
}

// relationalFallback serves admin searches when the embedding provider
// is down. Substring match on raw and summary text, newest first.
func (r *Retriever) relationalFallback(ctx context.Context, q Query) (*Response, error) {
	memories, err := r.store.SearchMemoriesLike(ctx, q.Query, q.Limit, 0)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(memories))
	for _, m := range memories {
		text := m.SummaryText
		if text == "" {
			text = m.RawText
		}
		results = append(results, Result{
			ID:        m.ID,
			Type:      "interaction",
			Score:     0,
			Snippet:   snippet(text),
			Timestamp: m.Timestamp.Format(time.RFC3339),
			Metadata:  map[string]interface{}{"channel": m.Channel},
		})
	}
	return &Response{Results: results, Total: len(results), Query: q.Query}, nil
}

// Timeline returns memories citing the entity, newest first.
func (r *Retriever) Timeline(ctx context.Context, entityType, entityID string, f db.MemoryFilter) ([]db.Memory, int, error) {
	return r.store.Timeline(ctx, entityType, entityID, f)
}

func buildFilter(q Query) map[string]interface{} {
	fb := vectordb.NewFilter()
	if q.EntityType != "" {
		fb.Match("entities[].entity_type", q.EntityType)
	}
	if q.Channel != "" {
		fb.Match("channel", q.Channel)
	}
	fb.TimeRange("timestamp", q.Since, q.Until)
	return fb.Build()
}

func interactionResult(p vectordb.ScoredPoint) Result {
	return Result{
		ID:        payloadString(p.Payload, "memory_id"),
		Type:      "interaction",
		Score:     p.Score,
		Snippet:   snippet(payloadString(p.Payload, "chunk_text")),
		Timestamp: payloadString(p.Payload, "timestamp"),
		Metadata:  map[string]interface{}{"channel": payloadString(p.Payload, "channel")},
	}
}

func lessonResult(p vectordb.ScoredPoint) Result {
	return Result{
		ID:        payloadString(p.Payload, "lesson_id"),
		Type:      "lesson",
		Score:     p.Score,
		Snippet:   snippet(payloadString(p.Payload, "summary")),
		Timestamp: payloadString(p.Payload, "created_at"),
		Metadata:  map[string]interface{}{"lesson_type": payloadString(p.Payload, "lesson_type")},
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// snippet truncates to at most snippetLen bytes, backing off so a
// multibyte rune is never cut in half.
func snippet(text string) string {
	if len(text) <= snippetLen {
		return text
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

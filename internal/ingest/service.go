// Package ingest implements the interaction write path: parse
// attachments, enrich, chunk, embed, persist, index. The stage order
// is load-bearing; later stages consume earlier outputs, and vector
// upserts only happen after the relational transaction commits.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/chunking"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/embeddings"
	"github.com/openclaw/memoryd/internal/enricher"
	"github.com/openclaw/memoryd/internal/llm"
	"github.com/openclaw/memoryd/internal/metrics"
	"github.com/openclaw/memoryd/internal/parser"
	"github.com/openclaw/memoryd/internal/vectordb"
)

// Attachment is one uploaded file.
type Attachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// Request carries everything an agent submits for one interaction.
type Request struct {
	Channel     string
	Text        string
	Entities    []db.EntityRef
	Metadata    db.JSONB
	Attachments []Attachment
}

// Result is what the caller gets back after a successful ingest.
type Result struct {
	Memory *db.Memory
	// VectorIndexed is false when embedding or upsert failed; the
	// memory is durable but only reachable through relational search.
	VectorIndexed bool
}

// Service runs the ingest pipeline.
type Service struct {
	store    *db.Client
	parser   *parser.Parser
	enricher *enricher.Enricher
	redactor *llm.Redactor
	embedder *embeddings.Service
	vectors  *vectordb.Client
	logger   *zap.Logger
}

// NewService wires the pipeline stages together.
func NewService(store *db.Client, p *parser.Parser, e *enricher.Enricher, r *llm.Redactor, emb *embeddings.Service, v *vectordb.Client, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		parser:   p,
		enricher: e,
		redactor: r,
		embedder: emb,
		vectors:  v,
		logger:   logger,
	}
}

// Ingest stores one interaction. agentID is the authenticated caller,
// recorded in the audit trail.
func (s *Service) Ingest(ctx context.Context, agentID string, req Request) (*Result, error) {
	start := time.Now()
	result, err := s.ingest(ctx, agentID, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IngestsTotal.WithLabelValues(req.Channel, status).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	return result, err
}

func (s *Service) ingest(ctx context.Context, agentID string, req Request) (*Result, error) {
	if req.Channel == "" {
		return nil, apperr.Field(apperr.KindInput, "channel", "channel is required")
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	memoryID := uuid.New().String()
	now := time.Now().UTC()

	// Parse attachments and build the composite text. A parse failure
	// for one file keeps its document row with empty text.
	composite := req.Text
	docs := make([]db.MemoryDocument, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		parsed := s.parser.Parse(ctx, att.Content, att.Filename, att.MimeType)
		docs = append(docs, db.MemoryDocument{
			ID:         uuid.New().String(),
			MemoryID:   memoryID,
			Filename:   att.Filename,
			FileType:   att.MimeType,
			FileSize:   int64(len(att.Content)),
			ParsedText: parsed.Text,
			CreatedAt:  now,
		})
		if parsed.Text != "" {
			composite += fmt.Sprintf("\n\n---\n[Document: %s]\n%s", att.Filename, parsed.Text)
		}
	}

	// Enrich. Summary failures degrade to empty, not to a 5xx; the raw
	// interaction is worth keeping either way.
	summary, err := s.enricher.Summarize(ctx, composite)
	if err != nil {
		s.logger.Warn("Summarization failed, storing without summary",
			zap.String("memory_id", memoryID),
			zap.Error(err))
		summary = ""
	}

	entities := req.Entities
	if len(entities) == 0 {
		entities = s.enricher.ExtractEntities(ctx, composite)
	}

	// Chunk and batch-embed the composite.
	chunks := chunking.Split(composite, settings.ChunkSize, settings.ChunkOverlap)
	vecs := s.embedChunks(ctx, memoryID, chunks)

	// Shared projection, when PII scrubbing is on. A redaction outage
	// withholds the projection entirely: the private memory still
	// lands, but unscrubbed text must never reach a shared surface.
	var (
		scrubbedText    string
		scrubbedSummary string
		scrubbedChunks  []string
		scrubbedVecs    [][]float32
		sharedID        string
		shareable       bool
	)
	if settings.PIIScrubbingEnabled {
		scrubbedText, shareable = s.redactor.Redact(ctx, composite)
		if shareable && summary != "" {
			scrubbedSummary, shareable = s.redactor.Redact(ctx, summary)
		}
		if shareable {
			scrubbedChunks = chunking.Split(scrubbedText, settings.ChunkSize, settings.ChunkOverlap)
			scrubbedVecs = s.embedChunks(ctx, memoryID, scrubbedChunks)
		} else {
			s.logger.Warn("Redaction unavailable, withholding shared projection",
				zap.String("memory_id", memoryID))
		}
	}

	memory := &db.Memory{
		ID:           memoryID,
		Timestamp:    now,
		Channel:      req.Channel,
		RawText:      req.Text,
		SummaryText:  summary,
		HasDocuments: len(docs) > 0,
		IsShared:     false,
		Entities:     entities,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Relational side, one transaction. Failure aborts the request
	// before any vector point exists.
	err = s.store.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := db.InsertMemoryTx(tx, memory); err != nil {
			return err
		}
		for i := range docs {
			if err := db.InsertDocumentTx(tx, &docs[i]); err != nil {
				return err
			}
		}
		if settings.PIIScrubbingEnabled && settings.AutoShareScrubbed && shareable {
			sharedID = uuid.New().String()
			shared := &db.SharedMemory{
				ID:               sharedID,
				OriginalMemoryID: memoryID,
				Timestamp:        now,
				Channel:          req.Channel,
				ScrubbedText:     scrubbedText,
				SummaryText:      scrubbedSummary,
				HasDocuments:     len(docs) > 0,
				Entities:         entities,
				Metadata:         req.Metadata,
				CreatedAt:        now,
			}
			return db.InsertSharedMemoryTx(tx, shared)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "ingest transaction failed", err)
	}

	// Vector side, after commit. Failures here leave the memory
	// durable but unindexed; callers see the soft flag.
	indexed := s.upsertPoints(ctx, vectordb.CollectionInteractions, memoryID, "",
		memory, chunks, vecs, false)
	if sharedID != "" {
		s.upsertPoints(ctx, vectordb.CollectionInteractionsShared, sharedID, memoryID,
			memory, scrubbedChunks, scrubbedVecs, true)
	}

	s.store.Audit(ctx, agentID, db.AuditActionIngest, "memory", memoryID,
		db.JSONB{"channel": req.Channel})

	return &Result{Memory: memory, VectorIndexed: indexed}, nil
}

// embedChunks batch-embeds chunks, degrading to no vectors on
// provider failure.
func (s *Service) embedChunks(ctx context.Context, memoryID string, chunks []string) [][]float32 {
	if len(chunks) == 0 {
		return nil
	}
	vecs, err := s.embedder.GenerateBatchEmbeddings(ctx, chunks, "")
	if err != nil {
		s.logger.Warn("Embedding failed, memory will not be vector-indexed",
			zap.String("memory_id", memoryID),
			zap.Int("chunks", len(chunks)),
			zap.Error(err))
		return nil
	}
	return vecs
}

// upsertPoints writes one point per (chunk, embedding) pair. Point ids
// embed the chunk index so ordering is recoverable.
func (s *Service) upsertPoints(ctx context.Context, collection, ownerID, originalID string, m *db.Memory, chunks []string, vecs [][]float32, shared bool) bool {
	if len(vecs) == 0 {
		return false
	}

	points := make([]vectordb.Point, 0, len(chunks))
	for i, chunk := range chunks {
		if i >= len(vecs) || len(vecs[i]) == 0 {
			continue
		}
		payload := map[string]interface{}{
			"memory_id":   ownerID,
			"chunk_index": i,
			"chunk_text":  chunk,
			"channel":     m.Channel,
			"timestamp":   m.Timestamp.Format(time.RFC3339),
			"entities":    m.Entities,
			"is_shared":   shared,
		}
		if originalID != "" {
			payload["original_memory_id"] = originalID
		}
		points = append(points, vectordb.Point{
			ID:      fmt.Sprintf("%s_%d", ownerID, i),
			Vector:  vecs[i],
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return false
	}

	if err := s.vectors.Upsert(ctx, collection, points); err != nil {
		s.logger.Error("Vector upsert failed after commit",
			zap.String("collection", collection),
			zap.String("memory_id", ownerID),
			zap.Error(err))
		return false
	}
	return true
}

// DeleteMemory removes a memory, its documents, and its vector points.
func (s *Service) DeleteMemory(ctx context.Context, agentID, memoryID string) error {
	mem, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMemory(ctx, memoryID); err != nil {
		return err
	}

	// Compensating vector delete, matched on payload since the chunk
	// count is unknown here.
	filter := vectordb.NewFilter().Match("memory_id", memoryID).Build()
	if err := s.vectors.DeleteByFilter(ctx, vectordb.CollectionInteractions, filter); err != nil {
		s.logger.Warn("Vector cleanup failed for deleted memory",
			zap.String("memory_id", memoryID),
			zap.Error(err))
	}

	s.store.Audit(ctx, agentID, db.AuditActionMemoryDelete, "memory", memoryID,
		db.JSONB{"channel": mem.Channel})
	return nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_ingests_total",
			Help: "Total number of interaction ingests",
		},
		[]string{"channel", "status"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memoryd_ingest_duration_seconds",
			Help:    "End-to-end ingest pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DocumentParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_document_parse_failures_total",
			Help: "Attachment parses that degraded to empty text",
		},
		[]string{"mime_family"},
	)

	// Enrichment metrics
	RedactionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoryd_redaction_failures_total",
			Help: "Redaction calls that failed open (original text returned)",
		},
	)

	EntityExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoryd_entity_extraction_failures_total",
			Help: "Entity extraction responses that failed JSON parsing",
		},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_embedding_requests_total",
			Help: "Embedding provider requests by outcome",
		},
		[]string{"model", "status"},
	)

	EmbeddingBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memoryd_embedding_batch_size",
			Help:    "Number of texts per batch embedding call",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	// Vector store metrics
	VectorUpsertFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_vector_upsert_failures_total",
			Help: "Post-commit vector upserts that failed (memory durable, not indexed)",
		},
		[]string{"collection"},
	)

	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_vector_searches_total",
			Help: "Vector store searches by collection and outcome",
		},
		[]string{"collection", "status"},
	)

	// Retrieval metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_searches_total",
			Help: "Search requests by principal type and mode",
		},
		[]string{"principal", "mode"},
	)

	// Gate metrics
	RateLimitTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoryd_rate_limit_trips_total",
			Help: "Requests rejected by the per-agent rate limiter",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_auth_failures_total",
			Help: "Authentication failures by credential type",
		},
		[]string{"credential"},
	)

	// Background loop metrics
	LessonsMined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memoryd_lessons_mined_total",
			Help: "Draft lessons created by the miner",
		},
	)

	ExportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoryd_export_runs_total",
			Help: "Snapshot export runs by outcome",
		},
		[]string{"status"},
	)

	BackgroundActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memoryd_background_activity_duration_seconds",
			Help:    "Duration of each background loop activity",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"activity"},
	)
)

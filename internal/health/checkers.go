package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCheckTimeout = 5 * time.Second

	// Latency above this marks a dependency degraded rather than down.
	slowThreshold = 100 * time.Millisecond
)

// PostgresChecker probes the relational store.
type PostgresChecker struct {
	db *sqlx.DB
}

// NewPostgresChecker creates a Postgres health checker.
func NewPostgresChecker(db *sqlx.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (p *PostgresChecker) Name() string           { return "postgres" }
func (p *PostgresChecker) IsCritical() bool       { return true }
func (p *PostgresChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (p *PostgresChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "Postgres ping failed",
			Error:   err.Error(),
		}
	}
	if time.Since(start) > slowThreshold {
		return CheckResult{Status: StatusDegraded, Message: "Postgres responding slowly"}
	}
	return CheckResult{Status: StatusHealthy, Message: "Postgres healthy"}
}

// RedisChecker probes the embedding cache. The cache is optional, so
// failures degrade rather than fail readiness.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return false }
func (r *RedisChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "Redis ping failed",
			Error:   err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "Redis healthy"}
}

// QdrantChecker probes the vector store over its HTTP API. Vector
// search degrades to relational fallback when Qdrant is down, so the
// check is non-critical.
type QdrantChecker struct {
	baseURL    string
	httpClient *http.Client
}

// NewQdrantChecker creates a Qdrant health checker. baseURL is the
// vector client's base, e.g. "http://qdrant:6333".
func NewQdrantChecker(baseURL string) *QdrantChecker {
	return &QdrantChecker{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultCheckTimeout},
	}
}

func (q *QdrantChecker) Name() string           { return "qdrant" }
func (q *QdrantChecker) IsCritical() bool       { return false }
func (q *QdrantChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (q *QdrantChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/collections", nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "Qdrant unreachable",
			Error:   err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Qdrant returned status %d", resp.StatusCode),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "Qdrant healthy"}
}

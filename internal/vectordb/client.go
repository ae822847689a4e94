// Package vectordb is a minimal Qdrant HTTP client scoped to the four
// memory collections. The vector store is a secondary index; callers
// treat upsert failures as soft and fall back to relational search.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/metrics"
)

// Collection names. Private collections hold full-fidelity chunks;
// shared collections hold the redacted projections.
const (
	CollectionInteractions       = "memory_interactions"
	CollectionInteractionsShared = "memory_interactions_shared"
	CollectionLessons            = "memory_lessons"
	CollectionLessonsShared      = "memory_lessons_shared"
)

// Collections lists every collection the service provisions at boot.
var Collections = []string{
	CollectionInteractions,
	CollectionInteractionsShared,
	CollectionLessons,
	CollectionLessonsShared,
}

// Config holds Qdrant connection settings.
type Config struct {
	Host      string
	Port      int
	Dimension int
	Timeout   time.Duration
}

// Client talks to Qdrant over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	base string
	log  *zap.Logger
}

// NewClient creates a Qdrant client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		base: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		log:  logger,
	}
}

// BaseURL returns the Qdrant endpoint, used by health checks.
func (c *Client) BaseURL() string { return c.base }

// Point is one stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type searchRequest struct {
	Vector      []float32              `json:"vector"`
	Limit       int                    `json:"limit"`
	WithPayload bool                   `json:"with_payload"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []ScoredPoint `json:"result"`
	Status string        `json:"status"`
}

// EnsureCollection creates the collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.base, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "qdrant unreachable", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.cfg.Dimension,
			"distance": "Cosine",
		},
	}
	buf, _ := json.Marshal(body)
	req, err = http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err = c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "qdrant create collection failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Ef(apperr.KindUpstream, "qdrant create collection %s status %d", name, resp.StatusCode)
	}

	c.log.Info("Vector collection created",
		zap.String("collection", name),
		zap.Int("dimension", c.cfg.Dimension))
	return nil
}

// EnsureCollections provisions all memory collections.
func (c *Client) EnsureCollections(ctx context.Context) error {
	for _, name := range Collections {
		if err := c.EnsureCollection(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Upsert inserts or updates points in a collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	buf, _ := json.Marshal(map[string]interface{}{"points": points})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VectorUpsertFailures.WithLabelValues(collection).Inc()
		return apperr.Wrap(apperr.KindUpstream, "qdrant upsert failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.VectorUpsertFailures.WithLabelValues(collection).Inc()
		return apperr.Ef(apperr.KindUpstream, "qdrant upsert status %d", resp.StatusCode)
	}
	return nil
}

// Search runs a filtered similarity query and returns scored hits.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
	buf, _ := json.Marshal(searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
		Filter:      filter,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VectorSearches.WithLabelValues(collection, "error").Inc()
		return nil, apperr.Wrap(apperr.KindUpstream, "qdrant search failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.VectorSearches.WithLabelValues(collection, "error").Inc()
		return nil, apperr.Ef(apperr.KindUpstream, "qdrant search status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metrics.VectorSearches.WithLabelValues(collection, "error").Inc()
		return nil, apperr.Wrap(apperr.KindUpstream, "qdrant search decode failed", err)
	}
	metrics.VectorSearches.WithLabelValues(collection, "ok").Inc()
	return sr.Result, nil
}

// DeleteByFilter removes every point whose payload matches the filter.
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	if filter == nil {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete", c.base, collection)
	buf, _ := json.Marshal(map[string]interface{}{"filter": filter})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "qdrant delete failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Ef(apperr.KindUpstream, "qdrant delete status %d", resp.StatusCode)
	}
	return nil
}

// DeletePoints removes points by id.
func (c *Client) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete", c.base, collection)
	buf, _ := json.Marshal(map[string]interface{}{"points": ids})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "qdrant delete failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Ef(apperr.KindUpstream, "qdrant delete status %d", resp.StatusCode)
	}
	return nil
}

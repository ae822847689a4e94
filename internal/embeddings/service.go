// Package embeddings generates text embeddings through an
// OpenAI-compatible provider with two cache tiers in front of it.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/metrics"
)

// Config holds embedding provider configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	CacheTTL     time.Duration
	MaxLRU       int
}

// Service provides embedding generation with caching.
type Service struct {
	cfg   Config
	http  *http.Client
	cache Cache
	lru   *LocalLRU
}

// NewService creates an embedding service. cache may be nil when no
// Redis tier is available; the in-process LRU always runs.
func NewService(cfg Config, cache Cache) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "text-embedding-3-small"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxLRU == 0 {
		cfg.MaxLRU = 2048
	}
	return &Service{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache,
		lru:   NewLocalLRU(cfg.MaxLRU),
	}
}

type embedRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// GenerateEmbedding returns the vector for a single text.
func (s *Service) GenerateEmbedding(ctx context.Context, text, model string) ([]float32, error) {
	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}
	key := MakeKey(m, text)

	// LRU first
	if v, ok := s.lru.Get(ctx, key); ok {
		metrics.EmbeddingRequests.WithLabelValues(m, "lru_hit").Inc()
		return v, nil
	}
	// Redis next
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, key); ok {
			s.lru.Set(ctx, key, v, 30*time.Minute)
			metrics.EmbeddingRequests.WithLabelValues(m, "cache_hit").Inc()
			return v, nil
		}
	}

	vectors, err := s.callProvider(ctx, m, text)
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues(m, "error").Inc()
		return nil, err
	}
	if len(vectors) == 0 {
		metrics.EmbeddingRequests.WithLabelValues(m, "empty").Inc()
		return nil, apperr.E(apperr.KindUpstream, "no embeddings returned")
	}
	metrics.EmbeddingRequests.WithLabelValues(m, "ok").Inc()

	out := vectors[0]
	s.lru.Set(ctx, key, out, 30*time.Minute)
	if s.cache != nil {
		s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
	}
	return out, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts in a
// single provider call, filling cached entries locally first.
func (s *Service) GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}

	results := make([][]float32, len(texts))
	uncachedTexts := []string{}
	uncachedIndices := []int{}

	for i, text := range texts {
		key := MakeKey(m, text)

		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.EmbeddingRequests.WithLabelValues(m, "lru_hit").Inc()
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, 30*time.Minute)
				metrics.EmbeddingRequests.WithLabelValues(m, "cache_hit").Inc()
				continue
			}
		}

		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	metrics.EmbeddingBatchSize.Observe(float64(len(uncachedTexts)))

	vectors, err := s.callProvider(ctx, m, uncachedTexts)
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues(m, "error").Inc()
		return nil, err
	}
	if len(vectors) != len(uncachedTexts) {
		return nil, apperr.Ef(apperr.KindUpstream,
			"embedding provider returned %d vectors for %d texts", len(vectors), len(uncachedTexts))
	}
	metrics.EmbeddingRequests.WithLabelValues(m, "batch_ok").Inc()

	for i, out := range vectors {
		idx := uncachedIndices[i]
		results[idx] = out

		key := MakeKey(m, uncachedTexts[i])
		s.lru.Set(ctx, key, out, 30*time.Minute)
		if s.cache != nil {
			s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
		}
	}
	return results, nil
}

// callProvider posts to the /embeddings endpoint. input is a string or
// a []string; responses come back ordered by index.
func (s *Service) callProvider(ctx context.Context, model string, input interface{}) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "embedding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.Ef(apperr.KindUpstream, "embedding provider returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "failed to decode embedding response", err)
	}

	out := make([][]float32, len(er.Data))
	for _, d := range er.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	return out, nil
}

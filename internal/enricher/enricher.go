// Package enricher produces summaries and entity mentions for
// incoming text using operator-editable prompt templates.
package enricher

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/llm"
	"github.com/openclaw/memoryd/internal/metrics"
)

// maxPromptChars caps how much text reaches a prompt template. Long
// composites are summarized from their head; the full text is still
// chunked and embedded.
const maxPromptChars = 4000

const fallbackSummaryPrompt = "Summarize this in 1-2 sentences:\n\n{text}"

// PromptSource provides the active prompt template and model
// parameters for a task type.
type PromptSource interface {
	GetActivePrompt(ctx context.Context, promptType string) (*db.SystemPrompt, error)
	GetActiveLLMConfig(ctx context.Context, taskType string) (*db.LLMTaskConfig, error)
}

// Enricher runs summarization and entity extraction.
type Enricher struct {
	client  *llm.Client
	prompts PromptSource
	logger  *zap.Logger
}

// New creates an enricher.
func New(client *llm.Client, prompts PromptSource, logger *zap.Logger) *Enricher {
	return &Enricher{client: client, prompts: prompts, logger: logger}
}

// Summarize produces a short summary of text. Empty input yields an
// empty summary without a provider call.
func (e *Enricher) Summarize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}

	template := fallbackSummaryPrompt
	if p, err := e.prompts.GetActivePrompt(ctx, db.TaskSummarization); err == nil {
		template = p.PromptText
	}

	prompt := interpolate(template, "{text}", text)
	opts := e.taskOptions(ctx, db.TaskSummarization, 200)
	return e.client.Summarize(ctx, prompt, opts)
}

// ExtractEntities asks the LLM for entity mentions in text. A missing
// template or an unparseable response yields an empty list; extraction
// is best-effort and never blocks ingestion.
func (e *Enricher) ExtractEntities(ctx context.Context, text string) []db.EntityRef {
	if text == "" {
		return nil
	}

	p, err := e.prompts.GetActivePrompt(ctx, db.TaskEntityExtraction)
	if err != nil {
		return nil
	}

	prompt := interpolate(p.PromptText, "{text}", text)
	opts := e.taskOptions(ctx, db.TaskEntityExtraction, 500)
	response, err := e.client.Complete(ctx, opts, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		metrics.EntityExtractionFailures.Inc()
		e.logger.Warn("Entity extraction call failed", zap.Error(err))
		return nil
	}

	refs, ok := parseEntityResponse(response)
	if !ok {
		metrics.EntityExtractionFailures.Inc()
		e.logger.Warn("Entity extraction returned unparseable JSON",
			zap.String("response_head", head(response, 200)))
		return nil
	}
	return refs
}

// taskOptions resolves model parameters from the admin-managed config
// table, falling back to the given token budget.
func (e *Enricher) taskOptions(ctx context.Context, taskType string, defaultMaxTokens int) llm.TaskOptions {
	opts := llm.TaskOptions{MaxTokens: defaultMaxTokens}
	cfg, err := e.prompts.GetActiveLLMConfig(ctx, taskType)
	if err != nil || cfg == nil {
		return opts
	}
	if cfg.Model != "" {
		opts.Model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		opts.Temperature = cfg.Temperature
	}
	return opts
}

// parseEntityResponse decodes the model's JSON array, tolerating a
// markdown code fence around it.
func parseEntityResponse(response string) ([]db.EntityRef, bool) {
	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw []struct {
		Type string `json:"type"`
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}

	refs := make([]db.EntityRef, 0, len(raw))
	for _, r := range raw {
		if r.Type == "" || r.Name == "" {
			continue
		}
		refs = append(refs, db.EntityRef{
			EntityType: r.Type,
			Name:       r.Name,
			Role:       r.Role,
		})
	}
	return refs, true
}

// interpolate substitutes the placeholder with text, truncated to the
// prompt budget.
func interpolate(template, placeholder, text string) string {
	return strings.ReplaceAll(template, placeholder, head(text, maxPromptChars))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/metrics"
)

// Redactor calls the external PII scrubbing collaborator. It fails
// open for the caller's own storage: on any error the input text comes
// back unchanged so ingestion never blocks, but the failure is
// reported so callers can withhold the unscrubbed text from shared
// surfaces. Operators watch the failure metric.
type Redactor struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRedactor creates a redaction client. An empty baseURL disables
// redaction entirely.
func NewRedactor(baseURL string, timeout time.Duration, logger *zap.Logger) *Redactor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Redactor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a redaction endpoint is configured.
func (r *Redactor) Enabled() bool {
	return r.baseURL != ""
}

type redactRequest struct {
	Text string `json:"text"`
}

type redactResponse struct {
	RedactedText string `json:"redacted_text"`
}

// Redact scrubs PII from text. The original text is always returned
// on failure; the boolean reports whether the result may be treated
// as scrubbed. A disabled redactor passes text through as scrubbed,
// since that is explicit operator configuration rather than an
// outage.
func (r *Redactor) Redact(ctx context.Context, text string) (string, bool) {
	if !r.Enabled() || text == "" {
		return text, true
	}

	payload, err := json.Marshal(redactRequest{Text: text})
	if err != nil {
		r.failOpen("marshal", err)
		return text, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/redact", bytes.NewReader(payload))
	if err != nil {
		r.failOpen("request", err)
		return text, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.failOpen("call", err)
		return text, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.failOpen("status", fmt.Errorf("redaction returned %d", resp.StatusCode))
		return text, false
	}

	var result redactResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		r.failOpen("decode", err)
		return text, false
	}
	if result.RedactedText == "" {
		return text, true
	}
	return result.RedactedText, true
}

func (r *Redactor) failOpen(stage string, err error) {
	metrics.RedactionFailures.Inc()
	r.logger.Warn("Redaction failed, passing text through",
		zap.String("stage", stage),
		zap.Error(err))
}

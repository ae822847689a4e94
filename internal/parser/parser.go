// Package parser extracts text from uploaded attachments. Parsing
// never fails an ingest: unknown formats and broken files come back
// with empty text so the interaction itself is still stored.
package parser

import (
	"context"
	"encoding/base64"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/metrics"
)

// visionPrompt instructs the vision model to transcribe a document.
const visionPrompt = `Extract all text content from this document/image.
Include:
- All readable text
- Table contents (format as markdown tables)
- Any important visual information described in brackets [like this]
- Preserve the document structure with headings and paragraphs

Output the extracted content as clean markdown:`

const mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// VisionClient is the LLM surface the parser needs.
type VisionClient interface {
	ExtractFromImage(ctx context.Context, mimeType, dataB64, prompt string) (string, error)
}

// Result is the outcome of parsing one attachment.
type Result struct {
	Text      string
	Pages     int
	HasImages bool
}

// Parser dispatches attachments by MIME type.
type Parser struct {
	vision VisionClient
	logger *zap.Logger
}

// New creates a document parser.
func New(vision VisionClient, logger *zap.Logger) *Parser {
	return &Parser{vision: vision, logger: logger}
}

// Parse extracts text from a file. The zero Result is the failure
// value; errors are logged and counted, never returned.
func (p *Parser) Parse(ctx context.Context, content []byte, filename, mimeType string) Result {
	switch mimeType {
	case "text/plain", "text/markdown", "text/csv":
		if utf8.Valid(content) {
			return Result{Text: string(content)}
		}
		p.fail(mimeType, filename, "invalid UTF-8")
		return Result{}

	case "application/pdf", "image/png", "image/jpeg", "image/webp", "image/gif":
		dataB64 := base64.StdEncoding.EncodeToString(content)
		text, err := p.vision.ExtractFromImage(ctx, mimeType, dataB64, visionPrompt)
		if err != nil {
			p.fail(mimeType, filename, err.Error())
			return Result{}
		}
		return Result{Text: text, HasImages: true}

	case mimeDocx:
		text, err := parseDocx(content)
		if err != nil {
			p.fail(mimeType, filename, err.Error())
			return Result{}
		}
		return Result{Text: text}
	}

	p.logger.Warn("Unsupported attachment type skipped",
		zap.String("filename", filename),
		zap.String("mime_type", mimeType))
	return Result{}
}

func (p *Parser) fail(mimeType, filename, reason string) {
	metrics.DocumentParseFailures.WithLabelValues(mimeFamily(mimeType)).Inc()
	p.logger.Error("Document parse failed",
		zap.String("filename", filename),
		zap.String("mime_type", mimeType),
		zap.String("reason", reason))
}

func mimeFamily(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return "pdf"
	case mimeDocx:
		return "docx"
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return "image"
	default:
		return "text"
	}
}

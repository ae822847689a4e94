package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubVision struct {
	text string
	err  error

	gotMime string
	gotB64  string
}

func (s *stubVision) ExtractFromImage(_ context.Context, mimeType, dataB64, _ string) (string, error) {
	s.gotMime = mimeType
	s.gotB64 = dataB64
	return s.text, s.err
}

func TestParsePlainText(t *testing.T) {
	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), []byte("hello world"), "note.txt", "text/plain")
	if got.Text != "hello world" {
		t.Fatalf("expected raw text back, got %q", got.Text)
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), []byte{0xff, 0xfe, 0xfd}, "broken.txt", "text/plain")
	if got.Text != "" {
		t.Fatalf("expected empty text for invalid UTF-8, got %q", got.Text)
	}
}

func TestParseImageUsesVision(t *testing.T) {
	vision := &stubVision{text: "extracted markdown"}
	p := New(vision, zap.NewNop())

	content := []byte{0x89, 0x50, 0x4e, 0x47}
	got := p.Parse(context.Background(), content, "scan.png", "image/png")

	if got.Text != "extracted markdown" || !got.HasImages {
		t.Fatalf("unexpected result %+v", got)
	}
	if vision.gotMime != "image/png" {
		t.Fatalf("expected mime forwarded, got %q", vision.gotMime)
	}
	if vision.gotB64 != base64.StdEncoding.EncodeToString(content) {
		t.Fatal("expected content base64-encoded for the vision call")
	}
}

func TestParseVisionFailureDegrades(t *testing.T) {
	p := New(&stubVision{err: errors.New("model offline")}, zap.NewNop())
	got := p.Parse(context.Background(), []byte("%PDF-1.7"), "doc.pdf", "application/pdf")
	if got.Text != "" || got.HasImages {
		t.Fatalf("expected zero result on vision failure, got %+v", got)
	}
}

func TestParseUnsupportedType(t *testing.T) {
	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), []byte("binary"), "tool.exe", "application/octet-stream")
	if got.Text != "" {
		t.Fatalf("expected unsupported type skipped, got %q", got.Text)
	}
}

func TestParseDocx(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
    <p><r></r></p>
  </body>
</document>`
	content := buildDocx(t, docXML)

	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), content, "memo.docx", mimeDocx)

	want := "First paragraph.\n\nSecond paragraph."
	if got.Text != want {
		t.Fatalf("expected %q, got %q", want, got.Text)
	}
}

func TestParseDocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/styles.xml")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("<styles/>"))
	zw.Close()

	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), buf.Bytes(), "memo.docx", mimeDocx)
	if got.Text != "" {
		t.Fatalf("expected empty result for DOCX without document.xml, got %q", got.Text)
	}
}

func TestParseDocxCorrupt(t *testing.T) {
	p := New(&stubVision{}, zap.NewNop())
	got := p.Parse(context.Background(), []byte("not a zip"), "memo.docx", mimeDocx)
	if got.Text != "" {
		t.Fatalf("expected empty result for corrupt DOCX, got %q", got.Text)
	}
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

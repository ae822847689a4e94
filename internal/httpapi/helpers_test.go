package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/auth"
	"github.com/openclaw/memoryd/internal/db"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"status": "ok"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.E(apperr.KindAuth, "invalid key"), http.StatusUnauthorized},
		{apperr.E(apperr.KindRate, "slow down"), http.StatusTooManyRequests},
		{apperr.E(apperr.KindInput, "bad field"), http.StatusBadRequest},
		{apperr.E(apperr.KindNotFound, "missing"), http.StatusNotFound},
		{apperr.E(apperr.KindUpstream, "provider down"), http.StatusBadGateway},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, zap.NewNop(), tt.err)
		if rec.Code != tt.want {
			t.Fatalf("writeError(%v): expected %d, got %d", tt.err, tt.want, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON error body: %v", err)
		}
		if body["error"] == "" {
			t.Fatal("expected error message in body")
		}
	}
}

func TestPrincipalID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := principalID(r); got != "" {
		t.Fatalf("expected empty principal without auth, got %q", got)
	}

	agentCtx := context.WithValue(r.Context(), auth.AgentContextKey, &db.Agent{ID: "a-1"})
	if got := principalID(r.WithContext(agentCtx)); got != "a-1" {
		t.Fatalf("expected agent id, got %q", got)
	}

	adminCtx := context.WithValue(r.Context(), auth.AdminContextKey, &auth.AdminClaims{})
	if got := principalID(r.WithContext(adminCtx)); got != "admin" {
		t.Fatalf("expected admin principal, got %q", got)
	}
}

func TestParseTimeParam(t *testing.T) {
	if got, err := parseTimeParam(""); err != nil || got != nil {
		t.Fatalf("expected nil for empty input, got %v, %v", got, err)
	}

	got, err := parseTimeParam("2026-03-01T12:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}

	got, err = parseTimeParam("2026-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}

	if _, err := parseTimeParam("March 1st"); err == nil {
		t.Fatal("expected error for unparseable input")
	} else if apperr.KindOf(err) != apperr.KindInput {
		t.Fatalf("expected input error kind, got %v", apperr.KindOf(err))
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		url  string
		key  string
		def  int
		want int
	}{
		{"/x?limit=25", "limit", 50, 25},
		{"/x", "limit", 50, 50},
		{"/x?limit=abc", "limit", 50, 50},
		{"/x?limit=-3", "limit", 50, 50},
		{"/x?offset=0", "offset", 10, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.url, nil)
		if got := queryInt(r, tt.key, tt.def); got != tt.want {
			t.Fatalf("queryInt(%q, %q, %d) = %d, want %d", tt.url, tt.key, tt.def, got, tt.want)
		}
	}
}

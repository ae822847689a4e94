package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/memoryd/internal/apperr"
)

func TestGenerateAgentKey(t *testing.T) {
	key, hash, err := generateAgentKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key, "mem_") {
		t.Fatalf("expected mem_ prefix, got %q", key)
	}
	sum := sha256.Sum256([]byte(key))
	if hash != hex.EncodeToString(sum[:]) {
		t.Fatal("expected hash to be the hex SHA-256 of the raw key")
	}

	key2, _, err := generateAgentKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == key2 {
		t.Fatal("expected distinct keys across calls")
	}
}

func TestKeyPreview(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"mem_abcdefghijklmnop", "mem_abc...mnop"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := keyPreview(tt.key); got != tt.want {
			t.Fatalf("keyPreview(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestAdminLoginRoundtrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	admin := NewAdmin(hash, "test-signing-key", time.Hour)

	token, expiresIn, err := admin.Login("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600s expiry, got %d", expiresIn)
	}

	claims, err := admin.VerifyToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAdminLoginWrongPassword(t *testing.T) {
	hash, _ := HashPassword("hunter2")
	admin := NewAdmin(hash, "test-signing-key", time.Hour)

	_, _, err := admin.Login("letmein")
	if err == nil {
		t.Fatal("expected login failure")
	}
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("expected auth error kind, got %v", apperr.KindOf(err))
	}
}

func TestVerifyTokenWrongKey(t *testing.T) {
	hash, _ := HashPassword("hunter2")
	admin := NewAdmin(hash, "key-one", time.Hour)
	other := NewAdmin(hash, "key-two", time.Hour)

	token, _, err := admin.Login("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := other.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure with a different signing key")
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	hash, _ := HashPassword("hunter2")
	admin := NewAdmin(hash, "test-signing-key", time.Nanosecond)

	token, _, err := admin.Login("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := admin.VerifyToken(token); err == nil {
		t.Fatal("expected expired token rejected")
	}
}

func TestVerifyTokenGarbage(t *testing.T) {
	admin := NewAdmin("", "test-signing-key", time.Hour)
	if _, err := admin.VerifyToken("not.a.jwt"); err == nil {
		t.Fatal("expected garbage token rejected")
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Basic abc123", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ExtractBearerToken(tt.header)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("ExtractBearerToken(%q) = %q, %v; want %q", tt.header, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ExtractBearerToken(%q) expected error", tt.header)
		}
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, _ := HashPassword("hunter2")
	admin := NewAdmin(hash, "test-signing-key", time.Hour)
	mw := NewMiddleware(nil, admin)

	var sawAdmin bool
	handler := mw.AdminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAdmin = IsAdmin(r.Context())
	}))

	// Missing header.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/agents", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	// Valid token.
	token, _, err := admin.Login("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d", rec.Code)
	}
	if !sawAdmin {
		t.Fatal("expected admin claims in the request context")
	}
}

func TestAgentAuthMissingKey(t *testing.T) {
	mw := NewMiddleware(nil, NewAdmin("", "k", time.Hour))
	handler := mw.AgentAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without an API key")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "API key is required") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := AgentFromContext(ctx); ok {
		t.Fatal("expected no agent on a bare context")
	}
	if IsAdmin(ctx) {
		t.Fatal("expected no admin on a bare context")
	}

	ctx = context.WithValue(ctx, AdminContextKey, &AdminClaims{Role: "admin"})
	if !IsAdmin(ctx) {
		t.Fatal("expected admin context detected")
	}
}

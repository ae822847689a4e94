package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	client := NewClientFromDB(sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mockDB.Close()
	})
	return client, mock
}

func TestWithTransactionCommit(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE memory_settings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.WithTransaction(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE memory_settings SET chunk_size = 500 WHERE id = 1")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithTransactionRollback(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := client.WithTransaction(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error returned, got %v", err)
	}
}

func TestGetSettings(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{
		"id", "chunk_size", "chunk_overlap", "rate_limit_enabled", "rate_limit_per_minute", "updated_at",
	}).AddRow(1, 500, 50, true, 60, time.Now())
	mock.ExpectQuery("SELECT \\* FROM memory_settings WHERE id = 1").WillReturnRows(rows)

	s, err := client.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ChunkSize != 500 || s.ChunkOverlap != 50 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if !s.RateLimitEnabled || s.RateLimitPerMinute != 60 {
		t.Fatalf("unexpected rate limit settings %+v", s)
	}
}

func TestGetAgentByKeyHashNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT \\* FROM memory_agents WHERE api_key_hash").
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := client.GetAgentByKeyHash(context.Background(), "deadbeef")
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("expected auth error for unknown key, got %v", err)
	}
}

func TestGetAgentByKeyHash(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"id", "name", "api_key_hash", "access_level", "is_active", "created_at"}).
		AddRow("a-1", "scheduler", "deadbeef", "shared", true, time.Now())
	mock.ExpectQuery("SELECT \\* FROM memory_agents WHERE api_key_hash").
		WithArgs("deadbeef").
		WillReturnRows(rows)

	agent, err := client.GetAgentByKeyHash(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent.ID != "a-1" || agent.AccessLevel != "shared" {
		t.Fatalf("unexpected agent %+v", agent)
	}
}

func TestUpdateAgentPartial(t *testing.T) {
	client, mock := newMockClient(t)

	active := false
	mock.ExpectExec("UPDATE memory_agents SET is_active = \\$2 WHERE id = \\$1").
		WithArgs("a-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := client.UpdateAgent(context.Background(), "a-1", &active, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateAgentBothFields(t *testing.T) {
	client, mock := newMockClient(t)

	active := true
	level := "shared"
	mock.ExpectExec("UPDATE memory_agents SET is_active = \\$2, access_level = \\$3 WHERE id = \\$1").
		WithArgs("a-1", true, "shared").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := client.UpdateAgent(context.Background(), "a-1", &active, &level); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateAgentNoFields(t *testing.T) {
	client, _ := newMockClient(t)
	// No expectations set: a no-op patch must not touch the database.
	if err := client.UpdateAgent(context.Background(), "a-1", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateAgentNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	active := false
	mock.ExpectExec("UPDATE memory_agents").
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := client.UpdateAgent(context.Background(), "missing", &active, nil)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

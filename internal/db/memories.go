package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/memoryd/internal/apperr"
)

// InsertMemoryTx inserts a memory row inside an open transaction.
func InsertMemoryTx(tx *sqlx.Tx, m *Memory) error {
	_, err := tx.NamedExec(`
		INSERT INTO memories (id, timestamp, channel, raw_text, summary_text,
			has_documents, is_shared, entities_json, metadata_json, created_at, updated_at)
		VALUES (:id, :timestamp, :channel, :raw_text, :summary_text,
			:has_documents, :is_shared, :entities_json, :metadata_json, :created_at, :updated_at)
	`, m)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// InsertDocumentTx inserts a parsed attachment row inside an open transaction.
func InsertDocumentTx(tx *sqlx.Tx, d *MemoryDocument) error {
	_, err := tx.NamedExec(`
		INSERT INTO memory_documents (id, memory_id, filename, file_type, file_size, parsed_text, created_at)
		VALUES (:id, :memory_id, :filename, :file_type, :file_size, :parsed_text, :created_at)
	`, d)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// InsertSharedMemoryTx inserts the redacted projection inside an open transaction.
func InsertSharedMemoryTx(tx *sqlx.Tx, s *SharedMemory) error {
	_, err := tx.NamedExec(`
		INSERT INTO memories_shared (id, original_memory_id, timestamp, channel, scrubbed_text,
			summary_text, has_documents, entities_json, metadata_json, created_at)
		VALUES (:id, :original_memory_id, :timestamp, :channel, :scrubbed_text,
			:summary_text, :has_documents, :entities_json, :metadata_json, :created_at)
	`, s)
	if err != nil {
		return fmt.Errorf("insert shared memory: %w", err)
	}
	return nil
}

// GetMemory returns a single memory by id.
func (c *Client) GetMemory(ctx context.Context, id string) (*Memory, error) {
	var m Memory
	err := c.db.GetContext(ctx, &m, `SELECT * FROM memories WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Ef(apperr.KindNotFound, "memory %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get memory", err)
	}
	return &m, nil
}

// GetMemoryDocuments returns the documents owned by a memory.
func (c *Client) GetMemoryDocuments(ctx context.Context, memoryID string) ([]MemoryDocument, error) {
	docs := []MemoryDocument{}
	err := c.db.SelectContext(ctx, &docs,
		`SELECT * FROM memory_documents WHERE memory_id = $1 ORDER BY created_at`, memoryID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get memory documents", err)
	}
	return docs, nil
}

// DeleteMemory removes a memory; documents cascade via foreign key.
// Vector points become orphaned until the compensating delete lands.
func (c *Client) DeleteMemory(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete memory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "memory %s not found", id)
	}
	return nil
}

// ListMemoriesBetween returns memories with timestamp in [since, until),
// newest first.
func (c *Client) ListMemoriesBetween(ctx context.Context, since, until time.Time) ([]Memory, error) {
	out := []Memory{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memories WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp DESC`,
		since, until)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list memories", err)
	}
	return out, nil
}

// SearchMemoriesLike is the relational substring fallback over raw and
// summary text. Best effort by design.
func (c *Client) SearchMemoriesLike(ctx context.Context, query string, limit, offset int) ([]Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []Memory{}
	pattern := "%" + query + "%"
	err := c.db.SelectContext(ctx, &out, `
		SELECT * FROM memories
		WHERE raw_text ILIKE $1 OR summary_text ILIKE $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "search memories", err)
	}
	return out, nil
}

// MemoryDate is one calendar day with an interaction count.
type MemoryDate struct {
	Date  string `db:"date"`
	Count int    `db:"cnt"`
}

// MemoryDates returns the most recent days that have memories.
func (c *Client) MemoryDates(ctx context.Context, limit int) ([]MemoryDate, error) {
	if limit <= 0 {
		limit = 30
	}
	out := []MemoryDate{}
	err := c.db.SelectContext(ctx, &out, `
		SELECT to_char(timestamp, 'YYYY-MM-DD') AS date, COUNT(*) AS cnt
		FROM memories
		GROUP BY to_char(timestamp, 'YYYY-MM-DD')
		ORDER BY date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "memory dates", err)
	}
	return out, nil
}

// MemoriesOnDate returns a day's memories in chronological order.
func (c *Client) MemoriesOnDate(ctx context.Context, date string) ([]Memory, error) {
	out := []Memory{}
	err := c.db.SelectContext(ctx, &out, `
		SELECT * FROM memories
		WHERE to_char(timestamp, 'YYYY-MM-DD') = $1
		ORDER BY timestamp
	`, date)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "memories on date", err)
	}
	return out, nil
}

// Timeline returns memories whose entity list references the given
// entity, newest first.
func (c *Client) Timeline(ctx context.Context, entityType, entityID string, f MemoryFilter) ([]Memory, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `entities_json @> $1`
	ref := fmt.Sprintf(`[{"entity_type": %q, "entity_id": %q}]`, entityType, entityID)
	args := []interface{}{ref}
	idx := 2

	if f.Channel != nil {
		where += fmt.Sprintf(` AND channel = $%d`, idx)
		args = append(args, *f.Channel)
		idx++
	}
	if f.Since != nil {
		where += fmt.Sprintf(` AND timestamp >= $%d`, idx)
		args = append(args, *f.Since)
		idx++
	}
	if f.Until != nil {
		where += fmt.Sprintf(` AND timestamp <= $%d`, idx)
		args = append(args, *f.Until)
		idx++
	}

	var total int
	if err := c.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM memories WHERE `+where, args...); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "timeline count", err)
	}

	query := fmt.Sprintf(`SELECT * FROM memories WHERE %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		where, idx, idx+1)
	args = append(args, limit, f.Offset)

	out := []Memory{}
	if err := c.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "timeline query", err)
	}
	return out, total, nil
}

// EntityCluster is one entity with its recent interaction volume.
type EntityCluster struct {
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
	Count      int    `db:"cnt"`
}

// EntityClusters groups recent memories by structural entity key.
// The key is derived from the reference fields, not from serialized
// JSON equality, so key order in stored blobs does not matter.
func (c *Client) EntityClusters(ctx context.Context, since time.Time, threshold int) ([]EntityCluster, error) {
	out := []EntityCluster{}
	err := c.db.SelectContext(ctx, &out, `
		SELECT elem->>'entity_type' AS entity_type,
		       COALESCE(NULLIF(elem->>'entity_id', ''), elem->>'name') AS entity_id,
		       COUNT(*) AS cnt
		FROM memories, jsonb_array_elements(entities_json) AS elem
		WHERE timestamp >= $1
		GROUP BY 1, 2
		HAVING COUNT(*) >= $2
		ORDER BY cnt DESC
		LIMIT 10
	`, since, threshold)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "entity clusters", err)
	}
	return out, nil
}

// MemoriesForEntity returns up to limit recent memories citing the
// given entity id or name.
func (c *Client) MemoriesForEntity(ctx context.Context, entityID string, since time.Time, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	out := []Memory{}
	err := c.db.SelectContext(ctx, &out, `
		SELECT DISTINCT m.* FROM memories m, jsonb_array_elements(m.entities_json) AS elem
		WHERE m.timestamp >= $1
		  AND COALESCE(NULLIF(elem->>'entity_id', ''), elem->>'name') = $2
		ORDER BY m.timestamp DESC
		LIMIT $3
	`, since, entityID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "memories for entity", err)
	}
	return out, nil
}

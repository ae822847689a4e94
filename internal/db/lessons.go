package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openclaw/memoryd/internal/apperr"
)

// InsertLesson inserts a lesson row.
func (c *Client) InsertLesson(ctx context.Context, l *Lesson) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_lessons (id, lesson_type, name, body, summary, status,
			is_shared, related_entities_json, source_memory_ids_json, created_at, updated_at)
		VALUES (:id, :lesson_type, :name, :body, :summary, :status,
			:is_shared, :related_entities_json, :source_memory_ids_json, :created_at, :updated_at)
	`, l)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "insert lesson", err)
	}
	return nil
}

// GetLesson returns a single lesson by id.
func (c *Client) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	var l Lesson
	err := c.db.GetContext(ctx, &l, `SELECT * FROM memory_lessons WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Ef(apperr.KindNotFound, "lesson %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get lesson", err)
	}
	return &l, nil
}

// LessonFilter narrows lesson listings.
type LessonFilter struct {
	Status     *string
	LessonType *string
	Limit      int
	Offset     int
}

// ListLessons returns lessons newest first with optional status/type filters.
func (c *Client) ListLessons(ctx context.Context, f LessonFilter) ([]Lesson, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "TRUE"
	args := []interface{}{}
	idx := 1
	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.LessonType != nil {
		where += fmt.Sprintf(" AND lesson_type = $%d", idx)
		args = append(args, *f.LessonType)
		idx++
	}

	var total int
	if err := c.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM memory_lessons WHERE `+where, args...); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "count lessons", err)
	}

	query := fmt.Sprintf(`SELECT * FROM memory_lessons WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, idx, idx+1)
	args = append(args, limit, f.Offset)

	out := []Lesson{}
	if err := c.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "list lessons", err)
	}
	return out, total, nil
}

// UpdateLesson applies the mutable lesson fields and bumps updated_at.
func (c *Client) UpdateLesson(ctx context.Context, l *Lesson) error {
	l.UpdatedAt = time.Now().UTC()
	res, err := c.db.NamedExecContext(ctx, `
		UPDATE memory_lessons
		SET lesson_type = :lesson_type, name = :name, body = :body, summary = :summary,
		    status = :status, is_shared = :is_shared,
		    related_entities_json = :related_entities_json,
		    source_memory_ids_json = :source_memory_ids_json,
		    updated_at = :updated_at
		WHERE id = :id
	`, l)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update lesson", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "lesson %s not found", l.ID)
	}
	return nil
}

// DeleteLesson removes a lesson; the shared projection cascades.
func (c *Client) DeleteLesson(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memory_lessons WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete lesson", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "lesson %s not found", id)
	}
	return nil
}

// InsertSharedLesson inserts the PII-stripped lesson projection.
func (c *Client) InsertSharedLesson(ctx context.Context, s *SharedLesson) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_lessons_shared (id, original_lesson_id, lesson_type, name,
			pii_stripped_body, summary, related_entities_json, created_at)
		VALUES (:id, :original_lesson_id, :lesson_type, :name,
			:pii_stripped_body, :summary, :related_entities_json, :created_at)
	`, s)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "insert shared lesson", err)
	}
	return nil
}

// ListApprovedLessons returns approved lessons grouped for export.
func (c *Client) ListApprovedLessons(ctx context.Context) ([]Lesson, error) {
	out := []Lesson{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_lessons WHERE status = $1 ORDER BY lesson_type, created_at`,
		LessonStatusApproved)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list approved lessons", err)
	}
	return out, nil
}

// HasRecentLessonForEntity reports whether a lesson citing the entity
// was created after the cutoff. Used by the miner for dedup; the check
// is structural over related_entities_json, not string equality on the
// serialized blob.
func (c *Client) HasRecentLessonForEntity(ctx context.Context, entityID string, since time.Time) (bool, error) {
	var n int
	err := c.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM memory_lessons l, jsonb_array_elements(l.related_entities_json) AS elem
		WHERE l.created_at >= $1
		  AND COALESCE(NULLIF(elem->>'entity_id', ''), elem->>'name') = $2
	`, since, entityID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "recent lesson check", err)
	}
	return n > 0, nil
}

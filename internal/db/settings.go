package db

import (
	"context"
	"time"

	"github.com/openclaw/memoryd/internal/apperr"
)

// GetSettings returns the singleton settings row. Readers always see
// the latest committed value; there is no process-wide cached copy.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := c.db.GetContext(ctx, &s, `SELECT * FROM memory_settings WHERE id = 1`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get settings", err)
	}
	return &s, nil
}

// UpdateSettings replaces the tunable fields of the singleton row.
func (c *Client) UpdateSettings(ctx context.Context, s *Settings) error {
	s.ID = 1
	s.UpdatedAt = time.Now().UTC()
	_, err := c.db.NamedExecContext(ctx, `
		UPDATE memory_settings SET
			chunk_size = :chunk_size,
			chunk_overlap = :chunk_overlap,
			auto_lesson_enabled = :auto_lesson_enabled,
			auto_lesson_threshold = :auto_lesson_threshold,
			lesson_approval_required = :lesson_approval_required,
			pii_scrubbing_enabled = :pii_scrubbing_enabled,
			auto_share_scrubbed = :auto_share_scrubbed,
			openclaw_sync_enabled = :openclaw_sync_enabled,
			openclaw_sync_path = :openclaw_sync_path,
			openclaw_sync_type = :openclaw_sync_type,
			openclaw_sync_frequency = :openclaw_sync_frequency,
			rate_limit_enabled = :rate_limit_enabled,
			rate_limit_per_minute = :rate_limit_per_minute,
			default_agent_access = :default_agent_access,
			updated_at = :updated_at
		WHERE id = 1
	`, s)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update settings", err)
	}
	return nil
}

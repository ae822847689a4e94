package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/memoryd/internal/apperr"
)

// Configuration-table CRUD for the admin surface. These tables change
// rarely; no caching layer sits in front of them.

func (c *Client) ListEntityTypes(ctx context.Context) ([]EntityType, error) {
	out := []EntityType{}
	err := c.db.SelectContext(ctx, &out, `SELECT * FROM memory_entity_types ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list entity types", err)
	}
	return out, nil
}

func (c *Client) CreateEntityType(ctx context.Context, et *EntityType) error {
	if et.ID == "" {
		et.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	et.CreatedAt = now
	et.UpdatedAt = now
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_entity_types (id, name, description, icon, created_at, updated_at)
		VALUES (:id, :name, :description, :icon, :created_at, :updated_at)
	`, et)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "create entity type", err)
	}
	return nil
}

func (c *Client) DeleteEntityType(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memory_entity_types WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete entity type", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "entity type %s not found", id)
	}
	return nil
}

func (c *Client) ListEntitySubtypes(ctx context.Context, entityTypeID string) ([]EntitySubtype, error) {
	out := []EntitySubtype{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_entity_subtypes WHERE entity_type_id = $1 ORDER BY name`, entityTypeID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list entity subtypes", err)
	}
	return out, nil
}

func (c *Client) CreateEntitySubtype(ctx context.Context, st *EntitySubtype) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	st.CreatedAt = time.Now().UTC()
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_entity_subtypes (id, entity_type_id, name, description, created_at)
		VALUES (:id, :entity_type_id, :name, :description, :created_at)
	`, st)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "create entity subtype", err)
	}
	return nil
}

func (c *Client) DeleteEntitySubtype(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memory_entity_subtypes WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete entity subtype", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "entity subtype %s not found", id)
	}
	return nil
}

func (c *Client) ListLessonTypes(ctx context.Context) ([]LessonType, error) {
	out := []LessonType{}
	err := c.db.SelectContext(ctx, &out, `SELECT * FROM memory_lesson_types ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list lesson types", err)
	}
	return out, nil
}

func (c *Client) CreateLessonType(ctx context.Context, lt *LessonType) error {
	if lt.ID == "" {
		lt.ID = uuid.New().String()
	}
	lt.CreatedAt = time.Now().UTC()
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_lesson_types (id, name, description, color, created_at)
		VALUES (:id, :name, :description, :color, :created_at)
	`, lt)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "create lesson type", err)
	}
	return nil
}

func (c *Client) DeleteLessonType(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memory_lesson_types WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete lesson type", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "lesson type %s not found", id)
	}
	return nil
}

func (c *Client) ListChannelTypes(ctx context.Context) ([]ChannelType, error) {
	out := []ChannelType{}
	err := c.db.SelectContext(ctx, &out, `SELECT * FROM memory_channel_types ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list channel types", err)
	}
	return out, nil
}

func (c *Client) CreateChannelType(ctx context.Context, ch *ChannelType) error {
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	ch.CreatedAt = time.Now().UTC()
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_channel_types (id, name, description, icon, created_at)
		VALUES (:id, :name, :description, :icon, :created_at)
	`, ch)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "create channel type", err)
	}
	return nil
}

func (c *Client) DeleteChannelType(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM memory_channel_types WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete channel type", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "channel type %s not found", id)
	}
	return nil
}

// ChannelExists reports whether the channel tag is configured.
func (c *Client) ChannelExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM memory_channel_types WHERE name = $1`, name)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "channel lookup", err)
	}
	return n > 0, nil
}

// GetActivePrompt returns the active prompt template for a task type.
func (c *Client) GetActivePrompt(ctx context.Context, promptType string) (*SystemPrompt, error) {
	var p SystemPrompt
	err := c.db.GetContext(ctx, &p, `
		SELECT * FROM memory_system_prompts
		WHERE prompt_type = $1 AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1
	`, promptType)
	if err == sql.ErrNoRows {
		return nil, apperr.Ef(apperr.KindNotFound, "no active prompt for %s", promptType)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get prompt", err)
	}
	return &p, nil
}

func (c *Client) ListSystemPrompts(ctx context.Context) ([]SystemPrompt, error) {
	out := []SystemPrompt{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_system_prompts ORDER BY prompt_type, updated_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list prompts", err)
	}
	return out, nil
}

func (c *Client) UpsertSystemPrompt(ctx context.Context, p *SystemPrompt) error {
	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.ID == "" {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		_, err := c.db.NamedExecContext(ctx, `
			INSERT INTO memory_system_prompts (id, prompt_type, name, prompt_text, is_active, created_at, updated_at)
			VALUES (:id, :prompt_type, :name, :prompt_text, :is_active, :created_at, :updated_at)
		`, p)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, "insert prompt", err)
		}
		return nil
	}
	res, err := c.db.NamedExecContext(ctx, `
		UPDATE memory_system_prompts
		SET name = :name, prompt_text = :prompt_text, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update prompt", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "prompt %s not found", p.ID)
	}
	return nil
}

// SeedSystemPrompt installs a prompt template for a task type when none
// is active yet. Reapplying an already-seeded file is a no-op, so the
// hot-reload path can call this on every change event.
func (c *Client) SeedSystemPrompt(ctx context.Context, promptType, name, text string) error {
	_, err := c.GetActivePrompt(ctx, promptType)
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return err
	}
	return c.UpsertSystemPrompt(ctx, &SystemPrompt{
		PromptType: promptType,
		Name:       name,
		PromptText: text,
		IsActive:   true,
	})
}

// GetActiveLLMConfig returns the model parameters for a task type, or
// nil when none is configured (callers fall back to static defaults).
func (c *Client) GetActiveLLMConfig(ctx context.Context, taskType string) (*LLMTaskConfig, error) {
	var cfg LLMTaskConfig
	err := c.db.GetContext(ctx, &cfg, `
		SELECT * FROM memory_llm_configs
		WHERE task_type = $1 AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1
	`, taskType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get llm config", err)
	}
	return &cfg, nil
}

func (c *Client) ListLLMConfigs(ctx context.Context) ([]LLMTaskConfig, error) {
	out := []LLMTaskConfig{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_llm_configs ORDER BY task_type, updated_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list llm configs", err)
	}
	return out, nil
}

func (c *Client) UpsertLLMConfig(ctx context.Context, cfg *LLMTaskConfig) error {
	now := time.Now().UTC()
	cfg.UpdatedAt = now
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
		cfg.CreatedAt = now
		_, err := c.db.NamedExecContext(ctx, `
			INSERT INTO memory_llm_configs (id, task_type, model, max_tokens, temperature, is_active, created_at, updated_at)
			VALUES (:id, :task_type, :model, :max_tokens, :temperature, :is_active, :created_at, :updated_at)
		`, cfg)
		if err != nil {
			return apperr.Wrap(apperr.KindPersistence, "insert llm config", err)
		}
		return nil
	}
	res, err := c.db.NamedExecContext(ctx, `
		UPDATE memory_llm_configs
		SET model = :model, max_tokens = :max_tokens, temperature = :temperature,
		    is_active = :is_active, updated_at = :updated_at
		WHERE id = :id
	`, cfg)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update llm config", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "llm config %s not found", cfg.ID)
	}
	return nil
}

// Stats returns aggregate counts for the admin dashboard.
func (c *Client) Stats(ctx context.Context) (*SystemStats, error) {
	var s SystemStats
	err := c.db.GetContext(ctx, &s, `
		SELECT
			(SELECT COUNT(*) FROM memories) AS total_memories,
			(SELECT COUNT(*) FROM memory_documents) AS total_documents,
			(SELECT COUNT(*) FROM memory_lessons) AS total_lessons,
			(SELECT COUNT(*) FROM memory_lessons WHERE status = 'approved') AS approved_lessons,
			(SELECT COUNT(*) FROM memories_shared) AS shared_memories,
			(SELECT COUNT(*) FROM memory_agents WHERE is_active = TRUE) AS active_agents
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "stats", err)
	}
	return &s, nil
}

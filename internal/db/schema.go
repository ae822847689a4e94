package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memory_entity_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		icon TEXT DEFAULT 'folder',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_entity_subtypes (
		id TEXT PRIMARY KEY,
		entity_type_id TEXT NOT NULL REFERENCES memory_entity_types(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(entity_type_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS memory_lesson_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		color TEXT DEFAULT '#22C55E',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_channel_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		icon TEXT DEFAULT 'message-circle',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		api_key_hash TEXT NOT NULL,
		api_key_preview TEXT NOT NULL,
		access_level TEXT DEFAULT 'private',
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS memory_system_prompts (
		id TEXT PRIMARY KEY,
		prompt_type TEXT NOT NULL,
		name TEXT NOT NULL,
		prompt_text TEXT NOT NULL,
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_llm_configs (
		id TEXT PRIMARY KEY,
		task_type TEXT NOT NULL,
		model TEXT NOT NULL,
		max_tokens INTEGER DEFAULT 500,
		temperature DOUBLE PRECISION DEFAULT 0.3,
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		chunk_size INTEGER DEFAULT 400,
		chunk_overlap INTEGER DEFAULT 80,
		auto_lesson_enabled BOOLEAN DEFAULT TRUE,
		auto_lesson_threshold INTEGER DEFAULT 5,
		lesson_approval_required BOOLEAN DEFAULT TRUE,
		pii_scrubbing_enabled BOOLEAN DEFAULT TRUE,
		auto_share_scrubbed BOOLEAN DEFAULT FALSE,
		openclaw_sync_enabled BOOLEAN DEFAULT FALSE,
		openclaw_sync_path TEXT DEFAULT '',
		openclaw_sync_type TEXT DEFAULT 'filesystem',
		openclaw_sync_frequency INTEGER DEFAULT 5,
		rate_limit_enabled BOOLEAN DEFAULT FALSE,
		rate_limit_per_minute INTEGER DEFAULT 60,
		default_agent_access TEXT DEFAULT 'private',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		channel TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		summary_text TEXT DEFAULT '',
		has_documents BOOLEAN DEFAULT FALSE,
		is_shared BOOLEAN DEFAULT FALSE,
		entities_json JSONB DEFAULT '[]',
		metadata_json JSONB DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_documents (
		id TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		file_type TEXT DEFAULT '',
		file_size BIGINT DEFAULT 0,
		parsed_text TEXT DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memories_shared (
		id TEXT PRIMARY KEY,
		original_memory_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		channel TEXT NOT NULL,
		scrubbed_text TEXT NOT NULL,
		summary_text TEXT DEFAULT '',
		has_documents BOOLEAN DEFAULT FALSE,
		entities_json JSONB DEFAULT '[]',
		metadata_json JSONB DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_lessons (
		id TEXT PRIMARY KEY,
		lesson_type TEXT NOT NULL,
		name TEXT NOT NULL,
		body TEXT NOT NULL,
		summary TEXT DEFAULT '',
		status TEXT DEFAULT 'draft',
		is_shared BOOLEAN DEFAULT FALSE,
		related_entities_json JSONB DEFAULT '[]',
		source_memory_ids_json JSONB DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_lessons_shared (
		id TEXT PRIMARY KEY,
		original_lesson_id TEXT NOT NULL REFERENCES memory_lessons(id) ON DELETE CASCADE,
		lesson_type TEXT NOT NULL,
		name TEXT NOT NULL,
		pii_stripped_body TEXT NOT NULL,
		summary TEXT DEFAULT '',
		related_entities_json JSONB DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memory_audit_log (
		id TEXT PRIMARY KEY,
		agent_id TEXT,
		action TEXT NOT NULL,
		resource_type TEXT,
		resource_id TEXT,
		details_json JSONB DEFAULT '{}',
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_channel ON memories(channel)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_type ON memory_lessons(lesson_type)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_status ON memory_lessons(status)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON memory_audit_log(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_agent ON memory_audit_log(agent_id)`,
}

// Initialize creates the relational layout and seeds default
// configuration rows. Safe to call repeatedly.
func (c *Client) Initialize(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	if err := c.seedDefaults(ctx); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	c.logger.Info("Database schema initialized")
	return nil
}

func (c *Client) seedDefaults(ctx context.Context) error {
	// Settings singleton
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO memory_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return err
	}

	entityTypes := []struct{ name, desc, icon string }{
		{"Contact", "People you interact with", "user"},
		{"Organization", "Companies and institutions", "building"},
		{"Program", "Projects and initiatives", "folder-kanban"},
	}
	for _, et := range entityTypes {
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO memory_entity_types (id, name, description, icon)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), et.name, et.desc, et.icon); err != nil {
			return err
		}
	}

	subtypes := map[string][]string{
		"Contact":      {"Lead", "Partner", "Provider", "Internal", "Other"},
		"Organization": {"Institution", "Partner", "Provider", "School", "Internal", "Other"},
	}
	for parent, names := range subtypes {
		var parentID string
		err := c.db.GetContext(ctx, &parentID,
			`SELECT id FROM memory_entity_types WHERE name = $1`, parent)
		if err != nil {
			c.logger.Warn("Seed parent entity type missing", zap.String("name", parent), zap.Error(err))
			continue
		}
		for _, name := range names {
			if _, err := c.db.ExecContext(ctx,
				`INSERT INTO memory_entity_subtypes (id, entity_type_id, name)
				 VALUES ($1, $2, $3) ON CONFLICT (entity_type_id, name) DO NOTHING`,
				uuid.New().String(), parentID, name); err != nil {
				return err
			}
		}
	}

	lessonTypes := []struct{ name, desc, color string }{
		{"Process", "Workflow and process improvements", "#22C55E"},
		{"Risk", "Risk identification and mitigation", "#EF4444"},
		{"Sales", "Sales insights and strategies", "#3B82F6"},
		{"Product", "Product feedback and ideas", "#8B5CF6"},
		{"Support", "Customer support learnings", "#F59E0B"},
		{"Other", "Miscellaneous learnings", "#6B7280"},
	}
	for _, lt := range lessonTypes {
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO memory_lesson_types (id, name, description, color)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), lt.name, lt.desc, lt.color); err != nil {
			return err
		}
	}

	channels := []struct{ name, desc, icon string }{
		{"email", "Email correspondence", "mail"},
		{"call", "Phone or video calls", "phone"},
		{"meeting", "In-person or virtual meetings", "users"},
		{"chat", "Chat or messaging", "message-circle"},
		{"document", "Document upload or review", "file-text"},
		{"note", "Manual notes", "sticky-note"},
	}
	for _, ch := range channels {
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO memory_channel_types (id, name, description, icon)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), ch.name, ch.desc, ch.icon); err != nil {
			return err
		}
	}

	for _, p := range defaultPrompts {
		var existing int
		err := c.db.GetContext(ctx, &existing,
			`SELECT COUNT(*) FROM memory_system_prompts WHERE prompt_type = $1 AND is_active = TRUE`,
			p.promptType)
		if err != nil {
			return err
		}
		if existing > 0 {
			continue
		}
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO memory_system_prompts (id, prompt_type, name, prompt_text, is_active)
			 VALUES ($1, $2, $3, $4, TRUE)`,
			uuid.New().String(), p.promptType, p.name, p.text); err != nil {
			return err
		}
	}

	return nil
}

var defaultPrompts = []struct {
	promptType string
	name       string
	text       string
}{
	{TaskSummarization, "Default Summarizer", `Summarize the following interaction in 1-2 concise sentences. Focus on the key points, decisions, and action items.

Interaction:
{text}

Summary:`},
	{TaskLessonExtraction, "Default Lesson Extractor", `Analyze the following interactions and extract a lesson learned. The lesson should be actionable and generalizable.

Interactions:
{interactions}

Provide:
1. A short lesson name (5-10 words)
2. The lesson type (Process, Risk, Sales, Product, Support, or Other)
3. A detailed lesson body in Markdown format (2-3 paragraphs)

Format your response as JSON:
{"name": "...", "type": "...", "body": "..."}`},
	{TaskEntityExtraction, "Default Entity Extractor", `Extract any mentioned entities from the following text. Look for people, organizations, and projects/programs.

Text:
{text}

Return a JSON array of entities:
[{"type": "Contact|Organization|Program", "name": "...", "role": "primary|mentioned|cc"}]`},
}

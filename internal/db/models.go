package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// EntityRef is a structural citation embedded in memories and lessons.
// Entities are not first-class rows; references carry ids only.
type EntityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"` // primary, mentioned, cc
}

// Key returns a canonical structural key for clustering and dedup,
// stable under JSON key reordering.
func (e EntityRef) Key() string {
	id := e.EntityID
	if id == "" {
		id = e.Name
	}
	return e.EntityType + ":" + id
}

// EntityRefs is an ordered entity-reference list stored as a JSON column.
type EntityRefs []EntityRef

// Value implements the driver.Valuer interface
func (e EntityRefs) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	return json.Marshal(e)
}

// Scan implements the sql.Scanner interface
func (e *EntityRefs) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into EntityRefs", value)
	}

	return json.Unmarshal(bytes, e)
}

// StringList is a JSON-encoded list of ids (lesson source memories).
type StringList []string

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringList", value)
	}

	return json.Unmarshal(bytes, s)
}

// Memory is one ingested interaction. Immutable after ingest except for
// the is_shared flag.
type Memory struct {
	ID           string     `json:"id" db:"id"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
	Channel      string     `json:"channel" db:"channel"`
	RawText      string     `json:"raw_text" db:"raw_text"`
	SummaryText  string     `json:"summary_text" db:"summary_text"`
	HasDocuments bool       `json:"has_documents" db:"has_documents"`
	IsShared     bool       `json:"is_shared" db:"is_shared"`
	Entities     EntityRefs `json:"entities" db:"entities_json"`
	Metadata     JSONB      `json:"metadata,omitempty" db:"metadata_json"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// MemoryDocument is a parsed attachment owned by a Memory.
type MemoryDocument struct {
	ID         string    `json:"id" db:"id"`
	MemoryID   string    `json:"memory_id" db:"memory_id"`
	Filename   string    `json:"filename" db:"filename"`
	FileType   string    `json:"file_type" db:"file_type"`
	FileSize   int64     `json:"file_size" db:"file_size"`
	ParsedText string    `json:"parsed_text" db:"parsed_text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SharedMemory is the PII-redacted projection of a Memory. The origin
// reference is weak; deleting the origin does not cascade.
type SharedMemory struct {
	ID               string     `json:"id" db:"id"`
	OriginalMemoryID string     `json:"original_memory_id" db:"original_memory_id"`
	Timestamp        time.Time  `json:"timestamp" db:"timestamp"`
	Channel          string     `json:"channel" db:"channel"`
	ScrubbedText     string     `json:"scrubbed_text" db:"scrubbed_text"`
	SummaryText      string     `json:"summary_text" db:"summary_text"`
	HasDocuments     bool       `json:"has_documents" db:"has_documents"`
	Entities         EntityRefs `json:"entities" db:"entities_json"`
	Metadata         JSONB      `json:"metadata,omitempty" db:"metadata_json"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Lesson statuses
const (
	LessonStatusDraft    = "draft"
	LessonStatusApproved = "approved"
	LessonStatusArchived = "archived"
)

// Lesson is a distilled insight created by an agent, an admin, or the miner.
type Lesson struct {
	ID              string     `json:"id" db:"id"`
	LessonType      string     `json:"lesson_type" db:"lesson_type"`
	Name            string     `json:"name" db:"name"`
	Body            string     `json:"body" db:"body"`
	Summary         string     `json:"summary" db:"summary"`
	Status          string     `json:"status" db:"status"`
	IsShared        bool       `json:"is_shared" db:"is_shared"`
	RelatedEntities EntityRefs `json:"related_entities" db:"related_entities_json"`
	SourceMemoryIDs StringList `json:"source_memory_ids" db:"source_memory_ids_json"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// SharedLesson mirrors a Lesson with a PII-stripped body.
type SharedLesson struct {
	ID               string     `json:"id" db:"id"`
	OriginalLessonID string     `json:"original_lesson_id" db:"original_lesson_id"`
	LessonType       string     `json:"lesson_type" db:"lesson_type"`
	Name             string     `json:"name" db:"name"`
	PIIStrippedBody  string     `json:"pii_stripped_body" db:"pii_stripped_body"`
	Summary          string     `json:"summary" db:"summary"`
	RelatedEntities  EntityRefs `json:"related_entities" db:"related_entities_json"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Agent is a credential record for the agent-facing API.
// Agent access levels.
const (
	AccessLevelPrivate = "private"
	AccessLevelShared  = "shared"
)

type Agent struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description" db:"description"`
	APIKeyHash    string     `json:"-" db:"api_key_hash"`
	APIKeyPreview string     `json:"api_key_preview" db:"api_key_preview"`
	AccessLevel   string     `json:"access_level" db:"access_level"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastUsed      *time.Time `json:"last_used,omitempty" db:"last_used"`
}

// AuditRecord is an append-only log entry for privileged operations.
type AuditRecord struct {
	ID           string    `json:"id" db:"id"`
	AgentID      string    `json:"agent_id" db:"agent_id"`
	Action       string    `json:"action" db:"action"`
	ResourceType *string   `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty" db:"resource_id"`
	Details      JSONB     `json:"details,omitempty" db:"details_json"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// Audit actions
const (
	AuditActionIngest        = "ingest_interaction"
	AuditActionSearch        = "search"
	AuditActionLessonCreate  = "create_lesson"
	AuditActionLessonUpdate  = "update_lesson"
	AuditActionLessonDelete  = "delete_lesson"
	AuditActionAgentCreate   = "create_agent"
	AuditActionAgentUpdate   = "update_agent"
	AuditActionMemoryDelete  = "delete_memory"
	AuditActionSettingsWrite = "update_settings"
)

// Settings is the singleton configuration row (id=1).
type Settings struct {
	ID                     int       `json:"-" db:"id"`
	ChunkSize              int       `json:"chunk_size" db:"chunk_size"`
	ChunkOverlap           int       `json:"chunk_overlap" db:"chunk_overlap"`
	AutoLessonEnabled      bool      `json:"auto_lesson_enabled" db:"auto_lesson_enabled"`
	AutoLessonThreshold    int       `json:"auto_lesson_threshold" db:"auto_lesson_threshold"`
	LessonApprovalRequired bool      `json:"lesson_approval_required" db:"lesson_approval_required"`
	PIIScrubbingEnabled    bool      `json:"pii_scrubbing_enabled" db:"pii_scrubbing_enabled"`
	AutoShareScrubbed      bool      `json:"auto_share_scrubbed" db:"auto_share_scrubbed"`
	OpenclawSyncEnabled    bool      `json:"openclaw_sync_enabled" db:"openclaw_sync_enabled"`
	OpenclawSyncPath       string    `json:"openclaw_sync_path" db:"openclaw_sync_path"`
	OpenclawSyncType       string    `json:"openclaw_sync_type" db:"openclaw_sync_type"`
	OpenclawSyncFrequency  int       `json:"openclaw_sync_frequency" db:"openclaw_sync_frequency"`
	RateLimitEnabled       bool      `json:"rate_limit_enabled" db:"rate_limit_enabled"`
	RateLimitPerMinute     int       `json:"rate_limit_per_minute" db:"rate_limit_per_minute"`
	DefaultAgentAccess     string    `json:"default_agent_access" db:"default_agent_access"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// EntityType is a configured entity category (Contact, Organization, ...).
type EntityType struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Icon        string    `json:"icon" db:"icon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// EntitySubtype refines an EntityType (Contact -> Lead, Partner, ...).
type EntitySubtype struct {
	ID           string    `json:"id" db:"id"`
	EntityTypeID string    `json:"entity_type_id" db:"entity_type_id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// LessonType is a configured lesson tag with a display color.
type LessonType struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Color       string    `json:"color" db:"color"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ChannelType is a configured interaction channel tag.
type ChannelType struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Icon        string    `json:"icon" db:"icon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SystemPrompt is an admin-editable prompt template with {placeholder}
// interpolation.
type SystemPrompt struct {
	ID         string    `json:"id" db:"id"`
	PromptType string    `json:"prompt_type" db:"prompt_type"`
	Name       string    `json:"name" db:"name"`
	PromptText string    `json:"prompt_text" db:"prompt_text"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Prompt task types
const (
	TaskSummarization    = "summarization"
	TaskLessonExtraction = "lesson_extraction"
	TaskEntityExtraction = "entity_extraction"
)

// LLMTaskConfig selects the model parameters for a prompt task.
type LLMTaskConfig struct {
	ID          string    `json:"id" db:"id"`
	TaskType    string    `json:"task_type" db:"task_type"`
	Model       string    `json:"model" db:"model"`
	MaxTokens   int       `json:"max_tokens" db:"max_tokens"`
	Temperature float64   `json:"temperature" db:"temperature"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// MemoryFilter provides filtering options for memory queries.
type MemoryFilter struct {
	Channel    *string
	EntityType *string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// SystemStats is the aggregate counts surface for the admin UI.
type SystemStats struct {
	TotalMemories   int `json:"total_memories" db:"total_memories"`
	TotalDocuments  int `json:"total_documents" db:"total_documents"`
	TotalLessons    int `json:"total_lessons" db:"total_lessons"`
	ApprovedLessons int `json:"approved_lessons" db:"approved_lessons"`
	SharedMemories  int `json:"shared_memories" db:"shared_memories"`
	ActiveAgents    int `json:"active_agents" db:"active_agents"`
}

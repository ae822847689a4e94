package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys to env names, e.g. postgres.host ->
// MEMORYD_POSTGRES_HOST.
var envKeyReplacer = strings.NewReplacer(".", "_")

// Config is the static service configuration loaded at startup.
// Runtime-tunable behavior (chunking, mining, sync, rate limits) lives in
// the settings row and is read through the store, not here.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vector    VectorConfig    `mapstructure:"vector"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Redaction RedactionConfig `mapstructure:"redaction"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Export    ExportConfig    `mapstructure:"export"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// ServiceConfig contains basic HTTP server configuration.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	AdminPort       int           `mapstructure:"admin_port"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// PostgresConfig contains relational store connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig contains the embedding-cache Redis settings.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// VectorConfig contains vector store settings.
type VectorConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LLMConfig contains the chat/embedding provider endpoints.
type LLMConfig struct {
	ChatBaseURL       string        `mapstructure:"chat_base_url"`
	EmbeddingsBaseURL string        `mapstructure:"embeddings_base_url"`
	APIKey            string        `mapstructure:"api_key"`
	ChatModel         string        `mapstructure:"chat_model"`
	VisionModel       string        `mapstructure:"vision_model"`
	EmbeddingModel    string        `mapstructure:"embedding_model"`
	ChatTimeout       time.Duration `mapstructure:"chat_timeout"`
	VisionTimeout     time.Duration `mapstructure:"vision_timeout"`
	EmbeddingTimeout  time.Duration `mapstructure:"embedding_timeout"`
	// RequestsPerSecond throttles outbound provider calls (0 = unlimited).
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// RedactionConfig contains the PII redaction collaborator endpoint.
type RedactionConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AdminConfig contains admin-surface credentials.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// PasswordHash is a bcrypt digest of the admin password.
	PasswordHash string        `mapstructure:"password_hash"`
	TokenExpiry  time.Duration `mapstructure:"token_expiry"`
}

// ExportConfig contains the snapshot export target.
type ExportConfig struct {
	Root string `mapstructure:"root"`
}

// SeedConfig points at the hot-reloaded overlay directory holding
// prompt templates and other seed data.
type SeedConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from MEMORYD_CONFIG (YAML, optional) with
// MEMORYD_* environment variable overrides and built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("service.port", 8080)
	v.SetDefault("service.admin_port", 8081)
	v.SetDefault("service.graceful_timeout", 15*time.Second)
	v.SetDefault("service.read_timeout", 30*time.Second)
	v.SetDefault("service.write_timeout", 120*time.Second)

	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "memoryd")
	v.SetDefault("postgres.password", "memoryd")
	v.SetDefault("postgres.database", "memoryd")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_connections", 25)
	v.SetDefault("postgres.idle_connections", 5)
	v.SetDefault("postgres.max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "redis:6379")

	v.SetDefault("vector.host", "qdrant")
	v.SetDefault("vector.port", 6333)
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.timeout", 30*time.Second)

	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.vision_model", "gpt-4o")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.chat_timeout", 60*time.Second)
	v.SetDefault("llm.vision_timeout", 120*time.Second)
	v.SetDefault("llm.embedding_timeout", 30*time.Second)
	v.SetDefault("llm.requests_per_second", 0.0)

	v.SetDefault("redaction.timeout", 30*time.Second)

	v.SetDefault("admin.token_expiry", 12*time.Hour)

	v.SetDefault("export.root", "/data/openclaw")

	v.SetDefault("seed.dir", "/etc/memoryd/seed")

	v.SetEnvPrefix("MEMORYD")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

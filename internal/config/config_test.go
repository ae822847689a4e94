package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, 8081, cfg.Service.AdminPort)
	assert.Equal(t, 15*time.Second, cfg.Service.GracefulTimeout)
	assert.Equal(t, "postgres", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ChatModel)
	assert.Equal(t, 12*time.Hour, cfg.Admin.TokenExpiry)
	assert.Equal(t, "/etc/memoryd/seed", cfg.Seed.Dir)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEMORYD_SERVICE_PORT", "9090")
	t.Setenv("MEMORYD_POSTGRES_HOST", "db.internal")
	t.Setenv("MEMORYD_REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Service.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memoryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  port: 7070
vector:
  dimension: 768
`), 0o644))
	t.Setenv("MEMORYD_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Service.Port)
	assert.Equal(t, 768, cfg.Vector.Dimension)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8081, cfg.Service.AdminPort)
}

func TestLoadConfigFileMissing(t *testing.T) {
	t.Setenv("MEMORYD_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestWatcherLoadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.yaml"), []byte(`
summarization:
  name: Summarizer
  prompt_text: "Summarize: {text}"
`), 0o644))

	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	cfg, ok := w.Get("prompts.yaml")
	require.True(t, ok)
	entry, ok := cfg["summarization"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Summarizer", entry["name"])
}

func TestWatcherNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)

	events := make(chan ChangeEvent, 4)
	w.OnChange("prompts.yaml", func(e ChangeEvent) error {
		events <- e
		return nil
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.yaml"),
		[]byte("summarization:\n  prompt_text: hi\n"), 0o644))

	select {
	case e := <-events:
		assert.Equal(t, "prompts.yaml", e.File)
		assert.Contains(t, e.Config, "summarization")
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change event after writing the file")
	}
}

func TestIsConfigFile(t *testing.T) {
	assert.True(t, isConfigFile("prompts.yaml"))
	assert.True(t, isConfigFile("prompts.yml"))
	assert.True(t, isConfigFile("seed.json"))
	assert.False(t, isConfigFile("README.md"))
	assert.False(t, isConfigFile("prompts.yaml.bak"))
}

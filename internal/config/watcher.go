package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeEvent represents a configuration file change.
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"` // create, modify, delete
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called when a watched file changes.
type ChangeHandler func(event ChangeEvent) error

// Watcher manages file-based configuration overlays (prompt templates,
// seed data) with hot reload.
type Watcher struct {
	dir      string
	configs  map[string]map[string]interface{}
	handlers map[string][]ChangeHandler
	watcher  *fsnotify.Watcher
	started  bool
	stopCh   chan struct{}
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewWatcher creates a watcher over the given directory. The directory
// is created if missing.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		configs:  make(map[string]map[string]interface{}),
		handlers: make(map[string][]ChangeHandler),
		watcher:  fw,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start loads the directory contents and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if err := w.loadAll(); err != nil {
		return fmt.Errorf("failed to load initial configs: %w", err)
	}

	w.mu.Lock()
	w.started = true
	loaded := len(w.configs)
	w.mu.Unlock()

	go w.watchLoop()

	w.logger.Info("Configuration watcher started",
		zap.String("dir", w.dir),
		zap.Int("loaded_files", loaded),
	)
	return nil
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	close(w.stopCh)
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing file watcher", zap.Error(err))
	}
	w.started = false
	return nil
}

// OnChange registers a handler for changes to a specific file.
func (w *Watcher) OnChange(filename string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[filename] = append(w.handlers[filename], handler)
}

// Get returns the current parsed contents of a watched file.
func (w *Watcher) Get(filename string) (map[string]interface{}, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cfg, ok := w.configs[filename]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out, true
}

func (w *Watcher) watchLoop() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isConfigFile(event.Name) {
		return
	}
	filename := filepath.Base(event.Name)

	var action string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		action = "create"
	case event.Op&fsnotify.Write == fsnotify.Write:
		action = "modify"
	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		action = "delete"
	default:
		return
	}

	if action == "delete" {
		w.handleRemoval(filename)
		return
	}

	// Small delay to handle rapid successive writes
	time.Sleep(50 * time.Millisecond)

	if err := w.loadFile(event.Name, action); err != nil {
		w.logger.Error("Failed to load config file",
			zap.String("file", filename),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (w *Watcher) loadAll() error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isConfigFile(path) {
			return nil
		}
		return w.loadFile(path, "initial_load")
	})
}

func (w *Watcher) loadFile(path, action string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	filename := filepath.Base(path)
	cfg := make(map[string]interface{})

	switch filepath.Ext(filename) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", filename, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", filename, err)
		}
	}

	cfgCopy := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		cfgCopy[k] = v
	}

	w.mu.Lock()
	w.configs[filename] = cfg
	handlers := make([]ChangeHandler, len(w.handlers[filename]))
	copy(handlers, w.handlers[filename])
	w.mu.Unlock()

	w.notify(handlers, ChangeEvent{
		File:      filename,
		Action:    action,
		Config:    cfgCopy,
		Timestamp: time.Now(),
	})

	w.logger.Info("Configuration loaded",
		zap.String("file", filename),
		zap.String("action", action),
		zap.Int("keys", len(cfg)),
	)
	return nil
}

func (w *Watcher) handleRemoval(filename string) {
	w.mu.Lock()
	last := w.configs[filename]
	delete(w.configs, filename)
	handlers := make([]ChangeHandler, len(w.handlers[filename]))
	copy(handlers, w.handlers[filename])
	w.mu.Unlock()

	w.notify(handlers, ChangeEvent{
		File:      filename,
		Action:    "delete",
		Config:    last,
		Timestamp: time.Now(),
	})
	w.logger.Info("Configuration file removed", zap.String("file", filename))
}

// notify runs handlers without holding locks; handlers may call back
// into the watcher.
func (w *Watcher) notify(handlers []ChangeHandler, event ChangeEvent) {
	for _, handler := range handlers {
		h := handler
		go func() {
			if err := h(event); err != nil {
				w.logger.Error("Configuration handler error",
					zap.String("file", event.File),
					zap.String("action", event.Action),
					zap.Error(err),
				)
			}
		}()
	}
}

func isConfigFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

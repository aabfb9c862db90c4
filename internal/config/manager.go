package config

import (
	"context"
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

// ChangeEvent describes one load or removal of a watched file
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"` // initial_load, create, modify, delete
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called after a file has been parsed and validated
type ChangeHandler func(event ChangeEvent) error

// Manager watches the YAML files of one directory and hands parsed
// contents to registered handlers.
type Manager struct {
	dir        string
	configs    map[string]map[string]interface{}
	handlers   map[string][]ChangeHandler
	validators map[string]func(map[string]interface{}) error
	watcher    *fsnotify.Watcher
	started    bool
	stopCh     chan struct{}
	logger     *zap.Logger
	mu         sync.RWMutex
	eventMu    sync.Mutex

	// settle absorbs editors that write a file in several steps
	settle time.Duration
}

// NewManager creates a manager for dir. The directory must exist.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("config directory %s is not a directory", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Manager{
		dir:        dir,
		configs:    make(map[string]map[string]interface{}),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]func(map[string]interface{}) error),
		watcher:    watcher,
		stopCh:     make(chan struct{}),
		logger:     logger,
		settle:     50 * time.Millisecond,
	}, nil
}

// Start loads every file once and begins watching. Handlers registered
// before Start see the initial load.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.watcher.Add(m.dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if err := m.loadAll(); err != nil {
		return fmt.Errorf("failed to load initial configs: %w", err)
	}

	m.mu.Lock()
	m.started = true
	loaded := len(m.configs)
	m.mu.Unlock()

	go m.watchLoop()

	m.logger.Info("Configuration manager started",
		zap.String("config_dir", m.dir),
		zap.Int("loaded_configs", loaded),
	)
	return nil
}

// Stop ends the watch loop. It is safe to call more than once.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return m.watcher.Close()
	}
	close(m.stopCh)
	m.started = false
	if err := m.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	m.logger.Info("Configuration manager stopped")
	return nil
}

// RegisterHandler registers a change handler for a file name in the directory
func (m *Manager) RegisterHandler(filename string, handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filename] = append(m.handlers[filename], handler)
}

// RegisterValidator rejects file contents before they reach handlers
func (m *Manager) RegisterValidator(filename string, validator func(map[string]interface{}) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[filename] = validator
}

// GetConfig returns a shallow copy of the last accepted contents of a file
func (m *Manager) GetConfig(filename string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[filename]
	if !ok {
		return nil, false
	}
	return copyMap(cfg), true
}

// ReloadConfig re-reads one file on demand
func (m *Manager) ReloadConfig(filename string) error {
	return m.loadFile(filepath.Join(m.dir, filename), "manual_reload")
}

func (m *Manager) watchLoop() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleWatchEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) handleWatchEvent(event fsnotify.Event) {
	if !isConfigFile(event.Name) {
		return
	}
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	filename := filepath.Base(event.Name)
	var action string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		action = "create"
	case event.Op&fsnotify.Write == fsnotify.Write:
		action = "modify"
	case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
		m.handleFileRemoval(filename)
		return
	default:
		return
	}

	time.Sleep(m.settle)
	if err := m.loadFile(event.Name, action); err != nil {
		m.logger.Error("Failed to load config file",
			zap.String("file", filename),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (m *Manager) loadAll() error {
	return filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != m.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isConfigFile(path) {
			return nil
		}
		return m.loadFile(path, "initial_load")
	})
}

func (m *Manager) loadFile(path, action string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	filename := filepath.Base(path)
	cfg := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", filename, err)
	}

	m.mu.RLock()
	validator := m.validators[filename]
	m.mu.RUnlock()
	if validator != nil {
		if err := validator(cfg); err != nil {
			return fmt.Errorf("configuration validation failed for %s: %w", filename, err)
		}
	}

	m.mu.Lock()
	m.configs[filename] = cfg
	handlers := append([]ChangeHandler(nil), m.handlers[filename]...)
	m.mu.Unlock()

	m.notify(handlers, ChangeEvent{File: filename, Action: action, Config: copyMap(cfg), Timestamp: time.Now()})
	m.logger.Info("Configuration loaded",
		zap.String("filename", filename),
		zap.String("action", action),
		zap.Int("keys", len(cfg)),
	)
	return nil
}

func (m *Manager) handleFileRemoval(filename string) {
	m.mu.Lock()
	last, existed := m.configs[filename]
	delete(m.configs, filename)
	handlers := append([]ChangeHandler(nil), m.handlers[filename]...)
	m.mu.Unlock()
	if !existed {
		return
	}

	m.notify(handlers, ChangeEvent{File: filename, Action: "delete", Config: copyMap(last), Timestamp: time.Now()})
	m.logger.Info("Configuration file removed", zap.String("filename", filename))
}

// notify runs handlers in order without holding locks so a handler may
// call back into the manager.
func (m *Manager) notify(handlers []ChangeHandler, event ChangeEvent) {
	for _, h := range handlers {
		if err := h(event); err != nil {
			m.logger.Error("Configuration handler error",
				zap.String("filename", event.File),
				zap.String("action", event.Action),
				zap.Error(err),
			)
		}
	}
}

func isConfigFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
)

// engineFile is the shape of engines.yaml:
//
//	engines:
//	  perplexity:
//	    endpoint: https://...
//	    api_key: ...
//	    model: sonar-deep-research
type engineFile struct {
	Engines map[string]engines.Config `yaml:"engines"`
}

// EngineStore resolves engine credentials. Values from engines.yaml are
// the base; non-empty {PREFIX}_ENDPOINT, {PREFIX}_API_KEY and
// {PREFIX}_MODEL environment variables win over them. It implements
// engines.ConfigSource and is safe for concurrent use.
type EngineStore struct {
	mu     sync.RWMutex
	file   engines.Configs
	getenv func(string) string
	logger *zap.Logger
}

// NewEngineStore returns a store with no file values
func NewEngineStore(logger *zap.Logger) *EngineStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineStore{file: engines.Configs{}, getenv: os.Getenv, logger: logger}
}

// EngineConfigs returns the resolved configuration of every registered engine
func (s *EngineStore) EngineConfigs() engines.Configs {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(engines.Configs, len(engines.All()))
	for _, e := range engines.All() {
		c := s.file[e.ID]
		endpointKey, apiKeyKey, modelKey := e.EnvKeys()
		if v := strings.TrimSpace(s.getenv(endpointKey)); v != "" {
			c.Endpoint = v
		}
		if v := strings.TrimSpace(s.getenv(apiKeyKey)); v != "" {
			c.APIKey = v
		}
		if v := strings.TrimSpace(s.getenv(modelKey)); v != "" {
			c.Model = v
		}
		out[e.ID] = c
	}
	return out
}

// Replace swaps the file layer
func (s *EngineStore) Replace(file engines.Configs) {
	cp := make(engines.Configs, len(file))
	for k, v := range file {
		cp[k] = v
	}
	s.mu.Lock()
	s.file = cp
	s.mu.Unlock()
}

// HandleChange is a Manager handler for engines.yaml. A deleted file
// clears the file layer, leaving only environment values.
func (s *EngineStore) HandleChange(event ChangeEvent) error {
	if event.Action == "delete" {
		s.Replace(nil)
		s.logger.Info("Engine file removed; using environment only", zap.String("file", event.File))
		return nil
	}
	parsed, err := ParseEngineFile(event.Config)
	if err != nil {
		return err
	}
	s.Replace(parsed)
	s.logger.Info("Engine configuration reloaded",
		zap.String("file", event.File),
		zap.String("action", event.Action),
		zap.Strings("configured", s.EngineConfigs().Configured()),
	)
	return nil
}

// ValidateEngineFile is a Manager validator for engines.yaml
func ValidateEngineFile(raw map[string]interface{}) error {
	_, err := ParseEngineFile(raw)
	return err
}

// ParseEngineFile decodes the generic YAML document into engine configs.
// Unknown engine ids are rejected.
func ParseEngineFile(raw map[string]interface{}) (engines.Configs, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode engine file: %w", err)
	}
	var f engineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode engine file: %w", err)
	}
	out := make(engines.Configs, len(f.Engines))
	for id, c := range f.Engines {
		if _, ok := engines.Lookup(id); !ok {
			return nil, fmt.Errorf("unknown engine %q (known: %s)", id, strings.Join(engines.IDs(), ", "))
		}
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		c.APIKey = strings.TrimSpace(c.APIKey)
		c.Model = strings.TrimSpace(c.Model)
		out[id] = c
	}
	return out, nil
}

// LoadEngineFile reads engines.yaml once. A missing file yields no values.
func LoadEngineFile(path string) (engines.Configs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return engines.Configs{}, nil
		}
		return nil, fmt.Errorf("read engine file: %w", err)
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse engine file %s: %w", path, err)
	}
	return ParseEngineFile(raw)
}

package engines

import "strings"

// Config is the resolved per-run configuration of one engine. Missing
// endpoint or key is an expected state and selects the fallback path.
type Config struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `json:"-" yaml:"api_key" mapstructure:"api_key"`
	Model    string `json:"model,omitempty" yaml:"model" mapstructure:"model"`
}

// Live reports whether both endpoint and credential are present
func (c Config) Live() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.APIKey) != ""
}

// Configs maps engine id to its resolved configuration
type Configs map[string]Config

// For returns the configuration of the given engine, or the zero Config.
func (c Configs) For(id string) Config {
	if c == nil {
		return Config{}
	}
	return c[id]
}

// Configured returns the ids of engines with a live configuration, in dispatch order.
func (c Configs) Configured() []string {
	var ids []string
	for _, e := range catalog {
		if c.For(e.ID).Live() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// ConfigSource supplies the engine configuration for a run
type ConfigSource interface {
	EngineConfigs() Configs
}

// StaticConfigs is a ConfigSource backed by a fixed map
type StaticConfigs Configs

func (s StaticConfigs) EngineConfigs() Configs {
	out := make(Configs, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// EnvKeys returns the environment variable names that configure an engine
func (e Engine) EnvKeys() (endpoint, apiKey, model string) {
	return e.EnvPrefix + "_ENDPOINT", e.EnvPrefix + "_API_KEY", e.EnvPrefix + "_MODEL"
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/tracing"
)

// DefaultPath is used when neither an explicit path nor CONFIG_PATH is set
const DefaultPath = "./config/briefing.yaml"

// EnvPrefix prefixes every environment override, e.g. BRIEFING_CACHE_BACKEND
const EnvPrefix = "BRIEFING"

type ServiceConfig struct {
	HTTPPort    int `mapstructure:"http_port"`
	MetricsPort int `mapstructure:"metrics_port"`
	GRPCPort    int `mapstructure:"grpc_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EnginesConfig struct {
	Timeout                      time.Duration `mapstructure:"timeout"`
	IncludeFallbackDisagreements bool          `mapstructure:"include_fallback_disagreements"`
	// File is resolved against the config directory unless absolute
	File string `mapstructure:"file"`
}

type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Backend    string        `mapstructure:"backend"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// BreakersConfig holds the circuit breaker settings handed to the adapters
// and the Redis cache
type BreakersConfig struct {
	Engine circuitbreaker.Settings
	Redis  circuitbreaker.Settings
}

// Config is the service configuration
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engines  EnginesConfig  `mapstructure:"engines"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Temporal TemporalConfig `mapstructure:"temporal"`

	// Breakers come from CB_ENGINE_* and CB_REDIS_* only
	Breakers BreakersConfig `mapstructure:"-"`

	// Dir is the directory holding the config file; engines.yaml is
	// watched there.
	Dir string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.grpc_port", 50052)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engines.timeout", "90s")
	v.SetDefault("engines.include_fallback_disagreements", false)
	v.SetDefault("engines.file", "engines.yaml")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", "lru")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.max_entries", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "research-briefing")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "research-briefing")
}

// Load reads the config file at path, or CONFIG_PATH, or DefaultPath.
// A missing file is only an error when the path was given explicitly;
// environment overrides and defaults apply either way.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Dir = filepath.Dir(path)
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Breakers = BreakersConfig{
		Engine: circuitbreaker.GetEngineConfig(),
		Redis:  circuitbreaker.GetRedisConfig(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges that would otherwise fail late
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"service.http_port":    c.Service.HTTPPort,
		"service.metrics_port": c.Service.MetricsPort,
		"service.grpc_port":    c.Service.GRPCPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if c.Engines.Timeout <= 0 {
		return fmt.Errorf("engines.timeout must be positive, got %s", c.Engines.Timeout)
	}
	switch c.Cache.Backend {
	case "lru":
	case "redis":
		if c.Cache.Enabled && c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		return errors.New("temporal.task_queue is required when temporal is enabled")
	}
	return nil
}

// EnginesFile returns the path of the engine credentials file
func (c *Config) EnginesFile() string {
	if c.Engines.File == "" || filepath.IsAbs(c.Engines.File) {
		return c.Engines.File
	}
	return filepath.Join(c.Dir, c.Engines.File)
}

// NewLogger builds the process logger from the logging section
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if strings.EqualFold(l.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

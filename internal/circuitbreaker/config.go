package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// Settings is the environment-tunable part of a breaker Config
type Settings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// EngineDefaults are the research engine breaker settings. Engines are slow
// and expensive, so the breaker opens quickly and stays open long enough to
// spare a failing provider.
func EngineDefaults() Settings {
	return Settings{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	}
}

// RedisDefaults are the result-cache Redis breaker settings
func RedisDefaults() Settings {
	return Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

// GetEngineConfig overlays CB_ENGINE_* environment values on EngineDefaults
func GetEngineConfig() Settings { return settingsFromEnv("CB_ENGINE", EngineDefaults()) }

// GetRedisConfig overlays CB_REDIS_* environment values on RedisDefaults
func GetRedisConfig() Settings { return settingsFromEnv("CB_REDIS", RedisDefaults()) }

// ToConfig converts Settings to a breaker Config
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func settingsFromEnv(prefix string, def Settings) Settings {
	return Settings{
		MaxRequests:      getEnvUint32(prefix+"_MAX_REQUESTS", def.MaxRequests),
		Interval:         getEnvDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:          getEnvDuration(prefix+"_TIMEOUT", def.Timeout),
		FailureThreshold: getEnvUint32(prefix+"_FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"_SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

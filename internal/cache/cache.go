package cache

import (
	"container/list"
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

// ResultCache stores live engine results. Implementations are safe for
// concurrent use and never fail a lookup loudly: any error is a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (models.EngineResult, bool)
	Set(ctx context.Context, key string, v models.EngineResult, ttl time.Duration)
}

// Key derives a cache key from everything that shapes a live engine answer,
// including the credential, so a result is only served back to the key that
// fetched it. The key is hashed and never appears in the cache key.
func Key(engineID, endpoint, apiKey, model, question string, subquestions []string) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{engineID, endpoint, apiKey, model, question, strings.Join(subquestions, "\x1f")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "brief:v1:" + engineID + ":" + hex.EncodeToString(h.Sum(nil))
}

// LocalLRU is an in-process LRU with per-entry TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
	now  func() time.Time
}

type lruEntry struct {
	key  string
	data []byte
	exp  time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 256
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity), now: time.Now}
}

func (l *LocalLRU) Get(_ context.Context, key string) (models.EngineResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.m[key]
	if !ok {
		metrics.RecordCacheLookup("lru", false)
		return models.EngineResult{}, false
	}
	ent := el.Value.(lruEntry)
	if !ent.exp.After(l.now()) {
		l.list.Remove(el)
		delete(l.m, key)
		metrics.RecordCacheLookup("lru", false)
		return models.EngineResult{}, false
	}
	var res models.EngineResult
	if err := json.Unmarshal(ent.data, &res); err != nil {
		metrics.RecordCacheLookup("lru", false)
		return models.EngineResult{}, false
	}
	l.list.MoveToFront(el)
	metrics.RecordCacheLookup("lru", true)
	return res, true
}

func (l *LocalLRU) Set(_ context.Context, key string, v models.EngineResult, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, data: data, exp: l.now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if lru := l.list.Back(); lru != nil {
			delete(l.m, lru.Value.(lruEntry).key)
			l.list.Remove(lru)
		}
	}
}

// Len returns the number of entries, expired ones included
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache stores results in Redis behind the circuit-breaker wrapper
type RedisCache struct {
	cli    *circuitbreaker.RedisWrapper
	logger *zap.Logger
}

// NewRedisCache connects to addr and pings once. breaker tunes the Redis
// circuit breaker; the zero value selects its defaults.
func NewRedisCache(ctx context.Context, addr string, breaker circuitbreaker.Settings, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wrapper := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{Addr: addr}), breaker, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := wrapper.Ping(pingCtx).Err(); err != nil {
		_ = wrapper.Close()
		return nil, err
	}
	return &RedisCache{cli: wrapper, logger: logger}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.EngineResult, bool) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("Result cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.RecordCacheLookup("redis", false)
		return models.EngineResult{}, false
	}
	var res models.EngineResult
	if err := json.Unmarshal(b, &res); err != nil {
		r.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = r.cli.Del(ctx, key).Err()
		metrics.RecordCacheLookup("redis", false)
		return models.EngineResult{}, false
	}
	metrics.RecordCacheLookup("redis", true)
	return res, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v models.EngineResult, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.cli.Set(ctx, key, b, ttl).Err(); err != nil {
		r.logger.Debug("Result cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Ping reports whether Redis is reachable through the breaker
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.cli.Close()
}

// CircuitOpen reports whether the Redis breaker is currently rejecting calls
func (r *RedisCache) CircuitOpen() bool {
	return r.cli.IsCircuitBreakerOpen()
}

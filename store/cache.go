package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// ErrCacheMiss is returned by the cache layer when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheConfig configures the Redis read-through cache.
type CacheConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:         "localhost:6379",
		DefaultTTL:   5 * time.Minute,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// CachedStore wraps a ConversationStore with a Redis read-through cache.
// Loads hit Redis first; saves write through to the backing store and
// refresh the cache. A Redis outage degrades to the backing store.
type CachedStore struct {
	inner  ConversationStore
	redis  *redis.Client
	cfg    CacheConfig
	logger *zap.Logger
}

// NewCachedStore connects to Redis and wraps the backing store.
func NewCachedStore(ctx context.Context, inner ConversationStore, cfg CacheConfig, logger *zap.Logger) (*CachedStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultCacheConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		inner:  inner,
		redis:  client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "cached_store")),
	}, nil
}

func cacheKey(id string) string {
	return "parley:conversation:" + id
}

// Load returns the cached aggregate when fresh, falling back to the
// backing store and repopulating the cache on a miss.
func (s *CachedStore) Load(ctx context.Context, id string) (*types.Conversation, error) {
	conv, err := s.getCached(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling through",
			zap.String("conversation_id", id),
			zap.Error(err),
		)
	}

	conv, err = s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, conv)
	return conv, nil
}

// Save writes through to the backing store and refreshes the cache.
func (s *CachedStore) Save(ctx context.Context, conv *types.Conversation) error {
	if err := s.inner.Save(ctx, conv); err != nil {
		return err
	}
	s.setCached(ctx, conv)
	return nil
}

// Delete removes the aggregate from both layers.
func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, cacheKey(id)).Err(); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String("conversation_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// ListByUser bypasses the cache; listings are not cached.
func (s *CachedStore) ListByUser(ctx context.Context, userID string, limit int) ([]*types.Conversation, error) {
	return s.inner.ListByUser(ctx, userID, limit)
}

// Close releases the Redis client. The backing store is owned by the
// caller.
func (s *CachedStore) Close() error {
	return s.redis.Close()
}

func (s *CachedStore) getCached(ctx context.Context, id string) (*types.Conversation, error) {
	val, err := s.redis.Get(ctx, cacheKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var conv types.Conversation
	if err := json.Unmarshal([]byte(val), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached conversation: %w", err)
	}
	return &conv, nil
}

func (s *CachedStore) setCached(ctx context.Context, conv *types.Conversation) {
	data, err := json.Marshal(conv)
	if err != nil {
		s.logger.Error("failed to marshal conversation for cache",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return
	}
	if err := s.redis.Set(ctx, cacheKey(conv.ID), data, s.cfg.DefaultTTL).Err(); err != nil {
		s.logger.Warn("cache write failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
}

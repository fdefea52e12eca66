package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// RegistryConfig tunes the active-conversation registry sweep.
type RegistryConfig struct {
	// InactivityTimeout is how long a conversation may idle before it is
	// marked expired.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout" json:"inactivity_timeout"`
	// GracePeriod is how long an expired conversation lingers before
	// eviction. Persisted state survives eviction; only the in-memory
	// entry goes away.
	GracePeriod time.Duration `yaml:"grace_period" json:"grace_period"`
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// DefaultRegistryConfig returns sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		InactivityTimeout: 30 * time.Minute,
		GracePeriod:       5 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

type registryEntry struct {
	conv    *types.Conversation
	expired bool
}

// Registry holds the active conversations for this process. It replaces
// any notion of a process-wide singleton: it is created once, injected
// where needed, and torn down by cancelling the sweeper's context.
type Registry struct {
	cfg    RegistryConfig
	store  Saver // nil skips persistence on eviction
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates a registry. Call Run to start the expiry sweeper.
func NewRegistry(cfg RegistryConfig, store Saver, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRegistryConfig()
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Registry{
		cfg:     cfg,
		store:   store,
		logger:  logger.With(zap.String("component", "conversation_registry")),
		entries: make(map[string]*registryEntry),
	}
}

// Add registers a conversation as active.
func (r *Registry) Add(conv *types.Conversation) {
	r.mu.Lock()
	r.entries[conv.ID] = &registryEntry{conv: conv}
	r.mu.Unlock()
}

// Get returns the active conversation with the given id. Expired entries
// still within their grace period are revived by activity elsewhere
// (Touch) but are not returned here.
func (r *Registry) Get(id string) (*types.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.expired {
		return nil, false
	}
	return e.conv, true
}

// Remove evicts a conversation, persisting it first when a store is
// configured.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.persist(ctx, e.conv)
}

// Len reports the number of registered conversations, expired included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Run executes the sweep loop until ctx is cancelled. On shutdown every
// remaining conversation is persisted.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.teardown()
			return ctx.Err()
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep marks conversations idle past the inactivity timeout as expired
// and evicts those idle past timeout plus grace period.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	r.mu.Lock()
	var evicted, expired []*types.Conversation
	for id, e := range r.entries {
		idle := e.conv.IdleFor(now)
		switch {
		case idle > r.cfg.InactivityTimeout+r.cfg.GracePeriod:
			delete(r.entries, id)
			evicted = append(evicted, e.conv)
		case idle > r.cfg.InactivityTimeout && !e.expired:
			e.expired = true
			expired = append(expired, e.conv)
		case idle <= r.cfg.InactivityTimeout && e.expired:
			// Activity since the last sweep revives the entry.
			e.expired = false
		}
	}
	r.mu.Unlock()

	for _, conv := range expired {
		r.logger.Info("conversation expired",
			zap.String("conversation_id", conv.ID),
			zap.Duration("idle", conv.IdleFor(now)),
		)
		r.persist(ctx, conv)
	}
	for _, conv := range evicted {
		r.logger.Info("conversation evicted",
			zap.String("conversation_id", conv.ID),
		)
		r.persist(ctx, conv)
	}
}

func (r *Registry) teardown() {
	r.mu.Lock()
	convs := make([]*types.Conversation, 0, len(r.entries))
	for _, e := range r.entries {
		convs = append(convs, e.conv)
	}
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, conv := range convs {
		r.persist(ctx, conv)
	}
	r.logger.Info("registry torn down", zap.Int("persisted", len(convs)))
}

func (r *Registry) persist(ctx context.Context, conv *types.Conversation) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, conv); err != nil {
		r.logger.Error("failed to persist conversation during sweep",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
}

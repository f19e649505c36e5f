package settings

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Store is a best-effort key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Provider holds the live settings. Store failures are logged and swallowed;
// callers always get a usable snapshot.
type Provider struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	current Snapshot
}

// NewProvider starts from defaults until Load is called.
func NewProvider(store Store, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{store: store, logger: logger.Named("settings"), current: Defaults()}
}

// Load reads every key from the store and makes the result current.
func (p *Provider) Load(ctx context.Context) Snapshot {
	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		v, ok, err := p.store.Get(ctx, key)
		if err != nil {
			p.logger.Warn("settings read failed; using default", zap.String("key", key), zap.Error(err))
			continue
		}
		if ok {
			values[key] = v
		}
	}
	snap, err := FromValues(values)
	if err != nil {
		p.logger.Warn("stored settings invalid; defaults substituted", zap.Error(err))
	}
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	return snap
}

// Current returns the live snapshot.
func (p *Provider) Current() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Save validates snap, makes it current and persists it. Only validation
// errors are returned.
func (p *Provider) Save(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()

	values := snap.Values()
	for _, key := range Keys {
		if err := p.store.Set(ctx, key, values[key]); err != nil {
			p.logger.Warn("settings write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

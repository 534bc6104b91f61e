// Package factory resolves backend configurations to initialized storage
// adapters, with one-shot fallback to an alternate backend and a bounded
// cache of live adapters keyed by effective configuration.
package factory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/postgres"
	"github.com/portagedev/portage/pkg/storage/sqlite"
)

// cacheSize bounds the number of live adapters. Two backends times a
// couple of locators is the realistic working set.
const cacheSize = 4

// Factory constructs and caches storage adapters. It is owned by the
// process's composition root and injected where adapters are needed;
// there is no package-level instance.
//
// Concurrent Resolve calls with the same effective configuration are safe
// to race: construction is idempotent and the cache slot is last-writer
// wins. The worst outcome is constructing an adapter twice and evicting
// one, never returning a half-initialized instance.
type Factory struct {
	log     *observability.Logger
	metrics *observability.Metrics
	cache   *lru.Cache[string, storage.Adapter]
}

// New creates a Factory.
func New(log *observability.Logger) *Factory {
	cache, _ := lru.NewWithEvict(cacheSize, func(key string, a storage.Adapter) {
		_ = a.Close()
	})
	return &Factory{log: log, cache: cache}
}

// WithMetrics makes every adapter the factory builds count its storage
// operations against the given sink.
func (f *Factory) WithMetrics(m *observability.Metrics) *Factory {
	f.metrics = m
	return f
}

// Resolve returns an initialized adapter for cfg. A zero-valued cfg is
// filled from the environment. On initialization failure the fallback
// kind, when set and different, is tried once; if both fail a single
// aggregated error names both attempts.
//
// The returned adapter is cached by effective configuration (kind plus
// connection locator). A call with a materially different configuration
// constructs a fresh adapter rather than returning a stale one.
func (f *Factory) Resolve(ctx context.Context, cfg storage.Config) (storage.Adapter, error) {
	if cfg.Kind == "" {
		cfg = storage.FromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if a, ok := f.cache.Get(cfg.EffectiveKey()); ok {
		return a, nil
	}

	adapter, primaryErr := f.build(ctx, cfg)
	if primaryErr == nil {
		f.cache.Add(cfg.EffectiveKey(), adapter)
		return adapter, nil
	}

	if cfg.FallbackKind == "" || cfg.FallbackKind == cfg.Kind {
		return nil, primaryErr
	}

	f.log.WithError(primaryErr).WithField("fallback", cfg.FallbackKind.String()).
		Warnf("backend %s failed to initialize, trying fallback", cfg.Kind)

	fbCfg := cfg
	fbCfg.Kind = cfg.FallbackKind
	fbCfg.FallbackKind = ""
	adapter, fallbackErr := f.build(ctx, fbCfg)
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to initialize %s (%v) and fallback %s (%v)",
			cfg.Kind, primaryErr, cfg.FallbackKind, fallbackErr)
	}

	f.cache.Add(fbCfg.EffectiveKey(), adapter)
	return adapter, nil
}

// build constructs and initializes a single adapter without fallback.
func (f *Factory) build(ctx context.Context, cfg storage.Config) (storage.Adapter, error) {
	var adapter storage.Adapter
	switch cfg.Kind {
	case model.BackendSQLite:
		adapter = sqlite.New(cfg)
	case model.BackendPostgres:
		adapter = postgres.New(cfg)
	default:
		return nil, fmt.Errorf("unknown backend kind: %q", cfg.Kind)
	}

	if err := adapter.Initialize(ctx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("initialize %s adapter: %w", cfg.Kind, err)
	}
	return storage.Instrument(adapter, f.metrics), nil
}

// Reset clears the cache unconditionally, closing every cached adapter.
// Used by tests and by config hot-reload.
func (f *Factory) Reset() {
	f.cache.Purge()
}

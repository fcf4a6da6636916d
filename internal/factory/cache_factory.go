package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/config"
	"github.com/quotevault/quotevault/internal/core"
)

// CacheFactory creates the cache layer components based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateQueryCache creates the query result cache
func (f *CacheFactory) CreateQueryCache(store core.KeyValueStore, conn core.Connectivity) (*cache.QueryCache, error) {
	staleTime, err := f.cfg.GetDuration("cache.stale_time")
	if err != nil {
		return nil, fmt.Errorf("invalid cache stale time: %w", err)
	}
	gcTime, err := f.cfg.GetDuration("cache.gc_time")
	if err != nil {
		return nil, fmt.Errorf("invalid cache gc time: %w", err)
	}
	persistThrottle, err := f.cfg.GetDuration("cache.persist_throttle")
	if err != nil {
		return nil, fmt.Errorf("invalid cache persist throttle: %w", err)
	}

	return cache.NewQueryCache(store, conn, f.logger, cache.Config{
		StaleTime:       staleTime,
		GCTime:          gcTime,
		PersistThrottle: persistThrottle,
		ReadRetries:     f.cfg.GetInt("cache.read_retries"),
	}), nil
}

// CreateQuotePool creates the offline quote pool
func (f *CacheFactory) CreateQuotePool(store core.KeyValueStore) (*cache.QuotePool, error) {
	validity, err := f.cfg.GetDuration("pool.validity")
	if err != nil {
		return nil, fmt.Errorf("invalid pool validity: %w", err)
	}
	return cache.NewQuotePool(store, f.logger, f.cfg.GetPool().MaxQuotes, validity), nil
}

// CreatePrewarm creates the category pre-warm runner
func (f *CacheFactory) CreatePrewarm(gateway core.Gateway, store core.KeyValueStore, conn core.Connectivity) (*cache.Prewarm, error) {
	validity, err := f.cfg.GetDuration("prewarm.validity")
	if err != nil {
		return nil, fmt.Errorf("invalid prewarm validity: %w", err)
	}
	return cache.NewPrewarm(gateway, store, conn, f.logger, f.cfg.GetPrewarm().QuotesPerCategory, validity), nil
}

// GetMutationRetries returns the configured mutation retry count
func (f *CacheFactory) GetMutationRetries() int {
	return f.cfg.GetInt("cache.mutation_retries")
}

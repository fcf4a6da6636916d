package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/config"
	"github.com/quotevault/quotevault/internal/core"
	"github.com/quotevault/quotevault/internal/factory"
	"github.com/quotevault/quotevault/internal/logging"
	"github.com/quotevault/quotevault/internal/ports"
	"github.com/quotevault/quotevault/internal/service"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewGatewayFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewServerFactory); err != nil {
		return nil, err
	}

	// Register session
	if err := container.Provide(auth.NewSession); err != nil {
		return nil, err
	}

	// Register local store
	if err := container.Provide(func(f *factory.StoreFactory) (core.KeyValueStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	// Register backend gateway and connectivity probe
	if err := container.Provide(func(f *factory.GatewayFactory, session *auth.Session) (core.Gateway, error) {
		return f.CreateGateway(session)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.GatewayFactory) (core.Connectivity, error) {
		return f.CreateConnectivity()
	}); err != nil {
		return nil, err
	}

	// Register cache layer
	if err := container.Provide(func(f *factory.CacheFactory, store core.KeyValueStore, conn core.Connectivity) (*cache.QueryCache, error) {
		return f.CreateQueryCache(store, conn)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory, store core.KeyValueStore) (*cache.QuotePool, error) {
		return f.CreateQuotePool(store)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory, gw core.Gateway, store core.KeyValueStore, conn core.Connectivity) (*cache.Prewarm, error) {
		return f.CreatePrewarm(gw, store, conn)
	}); err != nil {
		return nil, err
	}

	// Register identity-scoped cache lifecycle, hooked to auth transitions
	if err := container.Provide(func(
		queries *cache.QueryCache,
		store core.KeyValueStore,
		prewarm *cache.Prewarm,
		session *auth.Session,
		logger *zap.Logger,
	) *cache.Lifecycle {
		lifecycle := cache.NewLifecycle(queries, store, prewarm, logger)
		session.OnChange(lifecycle.Notify)
		return lifecycle
	}); err != nil {
		return nil, err
	}

	// Register quote service
	if err := container.Provide(func(
		gw core.Gateway,
		queries *cache.QueryCache,
		store core.KeyValueStore,
		conn core.Connectivity,
		session *auth.Session,
		pool *cache.QuotePool,
		prewarm *cache.Prewarm,
		lifecycle *cache.Lifecycle,
		logger *zap.Logger,
		f *factory.CacheFactory,
	) *service.Service {
		return service.New(gw, queries, store, conn, session, pool, prewarm, lifecycle, logger, service.Config{
			MutationRetries: f.GetMutationRetries(),
		})
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(f *factory.ServerFactory, svc *service.Service, session *auth.Session) (ports.APIServer, error) {
		return f.CreateAPIServer(svc, session)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

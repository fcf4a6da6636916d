package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/config"
	"github.com/quotevault/quotevault/internal/core"
	"github.com/quotevault/quotevault/internal/factory"
	"github.com/quotevault/quotevault/internal/logging"
	"github.com/quotevault/quotevault/internal/service"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Backend flags
	BaseURL string
	APIKey  string
	Token   string

	// Store flags
	StoreType  string
	SQLitePath string

	// Query flags
	Category string
	Search   string
	Limit    int

	// Output flags
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Backend flags
	flag.StringVar(&flags.BaseURL, "base-url", "http://localhost:54321", "Backend base URL")
	flag.StringVar(&flags.APIKey, "api-key", "", "Backend API key")
	flag.StringVar(&flags.Token, "token", "", "Access token for authenticated operations")

	// Store flags
	flag.StringVar(&flags.StoreType, "store", "memory", "Local store type (memory, sqlite)")
	flag.StringVar(&flags.SQLitePath, "sqlite-path", "quotevault_cache.db", "SQLite store path")

	// Query flags
	flag.StringVar(&flags.Category, "category", "", "Quote category filter")
	flag.StringVar(&flags.Search, "search", "", "Quote text search")
	flag.IntVar(&flags.Limit, "limit", 20, "Maximum quotes to list")

	// Output flags
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
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

	// Register quote service with no identity lifecycle for one-shot runs
	if err := container.Provide(func(
		gw core.Gateway,
		queries *cache.QueryCache,
		store core.KeyValueStore,
		conn core.Connectivity,
		session *auth.Session,
		pool *cache.QuotePool,
		prewarm *cache.Prewarm,
		logger *zap.Logger,
		f *factory.CacheFactory,
	) *service.Service {
		return service.New(gw, queries, store, conn, session, pool, prewarm, nil, logger, service.Config{
			MutationRetries: f.GetMutationRetries(),
		})
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("gateway.base_url", flags.BaseURL)
	v.Set("gateway.api_key", flags.APIKey)

	v.Set("store.type", flags.StoreType)
	v.Set("store.sqlite_path", flags.SQLitePath)

	return config.NewFromViper(v)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
	"github.com/quotevault/quotevault/internal/di"
	"github.com/quotevault/quotevault/internal/ports"
	"github.com/quotevault/quotevault/internal/service"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	server ports.APIServer,
	svc *service.Service,
	queries *cache.QueryCache,
	lifecycle *cache.Lifecycle,
	store core.KeyValueStore,
) error {
	defer logger.Sync()

	ctx := context.Background()

	// Rehydrate the query cache from the local store
	if err := svc.Restore(ctx); err != nil {
		logger.Warn("Failed to restore cached queries", zap.Error(err))
	}

	// Warm the per-category caches if the last warm-up has expired
	if err := svc.PrewarmCaches(ctx); err != nil {
		logger.Warn("Failed to pre-warm caches", zap.Error(err))
	}

	// Start the server
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the server
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop server", zap.Error(err))
	}

	// Stop background cache tasks
	lifecycle.Stop()
	queries.Stop()

	// Close the store if needed
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

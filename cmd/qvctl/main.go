package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
	"github.com/quotevault/quotevault/internal/di"
	"github.com/quotevault/quotevault/internal/service"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: qvctl [flags] <command>\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  quotes      List quotes (use -category, -search, -limit)\n")
	fmt.Fprintf(os.Stderr, "  daily       Show the quote of the day\n")
	fmt.Fprintf(os.Stderr, "  sections    Show per-category quote counts\n")
	fmt.Fprintf(os.Stderr, "  favorites   List favorites (requires -token)\n")
	fmt.Fprintf(os.Stderr, "  collections List collections (requires -token)\n")
	fmt.Fprintf(os.Stderr, "  prewarm     Warm the per-category caches\n")
	fmt.Fprintf(os.Stderr, "  clear       Clear every local cache\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func main() {
	flags := di.ParseFlags()

	command := flag.Arg(0)
	if command == "" {
		usage()
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(
		logger *zap.Logger,
		svc *service.Service,
		session *auth.Session,
		queries *cache.QueryCache,
		store core.KeyValueStore,
	) error {
		defer logger.Sync()
		defer queries.Stop()
		defer func() {
			if closer, ok := store.(interface{ Close() error }); ok {
				closer.Close()
			}
		}()

		ctx := context.Background()

		if flags.Token != "" {
			if _, err := session.SignIn(flags.Token); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
		}

		if err := svc.Restore(ctx); err != nil {
			logger.Warn("Failed to restore cached queries", zap.Error(err))
		}

		return runCommand(ctx, command, flags, svc, queries, store)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(
	ctx context.Context,
	command string,
	flags *di.CLIFlags,
	svc *service.Service,
	queries *cache.QueryCache,
	store core.KeyValueStore,
) error {
	switch command {
	case "quotes":
		filter := core.QuoteFilter{Search: flags.Search}
		if flags.Category != "" {
			category := core.Category(flags.Category)
			if !category.Valid() {
				return fmt.Errorf("unknown category %q", flags.Category)
			}
			filter.Category = category
		}
		quotes, err := svc.ListQuotes(ctx, filter, flags.Limit)
		if err != nil {
			return err
		}
		for _, q := range quotes {
			fmt.Printf("%s\n  -- %s [%s]\n", q.Content, q.Author, q.Category)
		}
		fmt.Printf("\n%d quotes\n", len(quotes))

	case "daily":
		quote, err := svc.DailyQuote(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n  -- %s\n", quote.Content, quote.Author)

	case "sections":
		sections, err := svc.Sections(ctx)
		if err != nil {
			return err
		}
		for _, s := range sections {
			fmt.Printf("%-12s %d\n", s.Category, s.Count)
		}

	case "favorites":
		favorites, err := svc.Favorites(ctx)
		if err != nil {
			return err
		}
		for _, f := range favorites {
			fmt.Printf("%s\n  -- %s\n", f.Content, f.Author)
		}
		fmt.Printf("\n%d favorites\n", len(favorites))

	case "collections":
		collections, err := svc.Collections(ctx)
		if err != nil {
			return err
		}
		for _, c := range collections {
			fmt.Printf("%-30s %d quotes\n", c.Name, c.QuoteCount)
		}

	case "prewarm":
		if err := svc.PrewarmCaches(ctx); err != nil {
			return err
		}
		fmt.Println("Caches warmed")

	case "clear":
		queries.Clear()
		keys, err := store.Keys(ctx, "")
		if err != nil {
			return err
		}
		if err := store.RemoveMany(ctx, keys); err != nil {
			return err
		}
		fmt.Printf("Removed %d cached entries\n", len(keys))

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

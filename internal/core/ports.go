package core

import (
	"context"
)

// Gateway is the single point of contact with the hosted backend. It
// issues filtered and paginated reads and writes for quotes, favorites
// and collections. Implementations never touch local caches.
type Gateway interface {
	// ListQuotes returns quotes matching filter within the page window,
	// newest first.
	ListQuotes(ctx context.Context, filter QuoteFilter, page Page) ([]Quote, error)

	// CountQuotes returns the total number of quotes matching filter.
	CountQuotes(ctx context.Context, filter QuoteFilter) (int, error)

	// GetQuote returns a single quote by id.
	GetQuote(ctx context.Context, quoteID string) (Quote, error)

	// QuotesByAuthor returns every quote by one author, newest first.
	QuotesByAuthor(ctx context.Context, author string) ([]Quote, error)

	// ListFavorites returns the user's favorites joined with quote data,
	// newest first.
	ListFavorites(ctx context.Context, userID string) ([]QuoteWithFavorite, error)

	// CountFavorites returns the user's favorite count.
	CountFavorites(ctx context.Context, userID string) (int, error)

	// GetFavorite returns one favorite edge, or ErrNotFound when the
	// quote is not favorited.
	GetFavorite(ctx context.Context, userID, quoteID string) (Favorite, error)

	// AddFavorite creates a favorite edge. A duplicate edge yields a
	// DuplicateError.
	AddFavorite(ctx context.Context, userID, quoteID string) error

	// RemoveFavorite removes a favorite edge. Removing a missing edge is
	// a no-op.
	RemoveFavorite(ctx context.Context, userID, quoteID string) error

	// ListCollections returns the user's collections with quote counts,
	// most recently updated first.
	ListCollections(ctx context.Context, userID string) ([]CollectionWithCount, error)

	// CreateCollection creates a collection and returns the stored row.
	CreateCollection(ctx context.Context, userID, name, description string) (Collection, error)

	// UpdateCollection updates name and/or description of a collection.
	UpdateCollection(ctx context.Context, collectionID string, name, description *string) (Collection, error)

	// DeleteCollection removes a collection and its membership edges.
	DeleteCollection(ctx context.Context, collectionID string) error

	// ListCollectionQuotes returns the quotes in a collection, most
	// recently added first.
	ListCollectionQuotes(ctx context.Context, collectionID string) ([]Quote, error)

	// AddQuoteToCollection creates a membership edge. A duplicate edge
	// yields a DuplicateError.
	AddQuoteToCollection(ctx context.Context, collectionID, quoteID string) error

	// RemoveQuoteFromCollection removes a membership edge.
	RemoveQuoteFromCollection(ctx context.Context, collectionID, quoteID string) error

	// QuoteCollections returns the user's collections containing a quote.
	QuoteCollections(ctx context.Context, userID, quoteID string) ([]Collection, error)

	// DailyQuote returns the rotation quote for an ISO date (YYYY-MM-DD).
	// ErrNotFound means no rotation row exists for that date.
	DailyQuote(ctx context.Context, date string) (Quote, error)
}

// KeyValueStore is durable key-to-JSON storage surviving process
// restarts. All failures wrap StorageError and callers must treat them
// as non-fatal, continuing with in-memory state only.
type KeyValueStore interface {
	// Get returns the stored value, or ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error

	// Keys lists every stored key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// RemoveMany deletes all given keys.
	RemoveMany(ctx context.Context, keys []string) error
}

// Connectivity reports whether the backend is believed reachable.
// Implementations may cache the probe result briefly.
type Connectivity interface {
	Online(ctx context.Context) bool
}

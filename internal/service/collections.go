package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
)

func collectionsKey() cache.QueryKey { return cache.NewKey("collections") }

func collectionQuotesKey(collectionID string) cache.QueryKey {
	return cache.NewKey("collection-quotes", cache.P(collectionID))
}

func quoteCollectionsKey(quoteID string) cache.QueryKey {
	return cache.NewKey("quote-collections", cache.P(quoteID))
}

// Collections returns the user's collections with quote counts, most
// recently updated first. A warm mirror serves immediately; without
// identity or network the result is empty, never an error.
func (s *Service) Collections(ctx context.Context) ([]core.CollectionWithCount, error) {
	// Hold mirror-seeded reads behind a pending identity clear so the
	// new user never sees the previous user's persisted collections.
	if err := s.queries.WaitReady(ctx); err != nil {
		return nil, err
	}
	if view, ok := s.collections.Load(ctx); ok {
		if err := s.queries.SeedQueryData(collectionsKey(), view, cache.Options{}); err != nil {
			s.logger.Warn("Failed to seed collections query")
		}
	}

	collections, err := cache.Fetch(ctx, s.queries, collectionsKey(), cache.Options{}, s.loadCollections)
	if err != nil {
		if view, ok := s.collections.Load(ctx); ok {
			return view, nil
		}
		if core.IsGateway(err) {
			return []core.CollectionWithCount{}, nil
		}
		return nil, err
	}
	return collections, nil
}

func (s *Service) loadCollections(ctx context.Context) ([]core.CollectionWithCount, error) {
	userID, err := s.session.UserID()
	if err != nil {
		return []core.CollectionWithCount{}, nil
	}
	if !s.online(ctx) {
		view, _ := s.collections.Load(ctx)
		if view == nil {
			view = []core.CollectionWithCount{}
		}
		return view, nil
	}

	collections, err := s.gateway.ListCollections(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.collections.Replace(ctx, collections)
	return collections, nil
}

// CreateCollection creates a collection for the signed-in user. A
// placeholder row appears in the cached list immediately and is
// replaced by the stored row once the backend confirms.
func (s *Service) CreateCollection(ctx context.Context, name, description string) (core.Collection, error) {
	userID, err := s.session.UserID()
	if err != nil {
		return core.Collection{}, err
	}

	placeholder := core.CollectionWithCount{
		Collection: core.Collection{
			ID:          "pending-" + uuid.NewString(),
			UserID:      userID,
			Name:        name,
			Description: description,
			CreatedAt:   s.cfg.Clock(),
			UpdatedAt:   s.cfg.Clock(),
		},
	}

	previous, _ := cache.Get[[]core.CollectionWithCount](s.queries, collectionsKey())
	tx, err := s.queries.Begin(collectionsKey(), append([]core.CollectionWithCount{placeholder}, previous...))
	if err != nil {
		return core.Collection{}, err
	}

	var created core.Collection
	err = s.mutate(ctx, func(ctx context.Context) error {
		var mErr error
		created, mErr = s.gateway.CreateCollection(ctx, userID, name, description)
		return mErr
	})
	if err != nil {
		tx.Abort(err)
		return core.Collection{}, err
	}

	row := core.CollectionWithCount{Collection: created}
	if err := tx.Commit(append([]core.CollectionWithCount{row}, previous...)); err != nil {
		s.logger.Warn("Failed to finalize collection list")
	}

	s.collections.Update(ctx, func(items []core.CollectionWithCount) []core.CollectionWithCount {
		return append([]core.CollectionWithCount{row}, items...)
	})
	s.queries.Invalidate(collectionsKey())
	return created, nil
}

// UpdateCollection renames or redescribes a collection. Nil fields are
// left unchanged.
func (s *Service) UpdateCollection(ctx context.Context, collectionID string, name, description *string) (core.Collection, error) {
	if _, err := s.session.UserID(); err != nil {
		return core.Collection{}, err
	}

	var updated core.Collection
	err := s.mutate(ctx, func(ctx context.Context) error {
		var mErr error
		updated, mErr = s.gateway.UpdateCollection(ctx, collectionID, name, description)
		return mErr
	})
	if err != nil {
		return core.Collection{}, err
	}

	s.collections.Update(ctx, func(items []core.CollectionWithCount) []core.CollectionWithCount {
		for i := range items {
			if items[i].ID == collectionID {
				count := items[i].QuoteCount
				items[i] = core.CollectionWithCount{Collection: updated, QuoteCount: count}
			}
		}
		return items
	})
	s.queries.Invalidate(collectionsKey())
	return updated, nil
}

// DeleteCollection removes a collection, its membership edges and every
// cache that mirrored it.
func (s *Service) DeleteCollection(ctx context.Context, collectionID string) error {
	if _, err := s.session.UserID(); err != nil {
		return err
	}

	err := s.mutate(ctx, func(ctx context.Context) error {
		return s.gateway.DeleteCollection(ctx, collectionID)
	})
	if err != nil {
		return err
	}

	s.collections.Update(ctx, func(items []core.CollectionWithCount) []core.CollectionWithCount {
		out := items[:0]
		for _, it := range items {
			if it.ID != collectionID {
				out = append(out, it)
			}
		}
		return out
	})
	s.dropCollectionMirror(ctx, collectionID)
	s.queries.ResetQueries(collectionQuotesKey(collectionID))
	s.queries.Invalidate(collectionsKey())
	return nil
}

// CollectionQuotes returns the quotes in a collection, most recently
// added first. The cached result never goes stale on its own; membership
// mutations invalidate it explicitly.
func (s *Service) CollectionQuotes(ctx context.Context, collectionID string) ([]core.Quote, error) {
	if err := s.queries.WaitReady(ctx); err != nil {
		return nil, err
	}
	mirror := s.collectionMirror(collectionID)
	if view, ok := mirror.Load(ctx); ok {
		if err := s.queries.SeedQueryData(collectionQuotesKey(collectionID), view, cache.Options{StaleTime: cache.StaleForever}); err != nil {
			s.logger.Warn("Failed to seed collection quotes query")
		}
	}

	quotes, err := cache.Fetch(ctx, s.queries, collectionQuotesKey(collectionID),
		cache.Options{StaleTime: cache.StaleForever},
		func(ctx context.Context) ([]core.Quote, error) {
			if !s.online(ctx) {
				view, _ := mirror.Load(ctx)
				if view == nil {
					view = []core.Quote{}
				}
				return view, nil
			}
			quotes, err := s.gateway.ListCollectionQuotes(ctx, collectionID)
			if err != nil {
				return nil, err
			}
			mirror.Replace(ctx, quotes)
			return quotes, nil
		})
	if err != nil {
		if view, ok := mirror.Load(ctx); ok {
			return view, nil
		}
		if core.IsGateway(err) {
			return []core.Quote{}, nil
		}
		return nil, err
	}
	return quotes, nil
}

// AddQuoteToCollection adds a quote to a collection. Adding a quote
// already present is benign and leaves counts untouched.
func (s *Service) AddQuoteToCollection(ctx context.Context, collectionID, quoteID string) error {
	if _, err := s.session.UserID(); err != nil {
		return err
	}

	err := s.mutate(ctx, func(ctx context.Context) error {
		return s.gateway.AddQuoteToCollection(ctx, collectionID, quoteID)
	})
	if core.IsDuplicate(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if quote, ok := s.pool.Lookup(ctx, quoteID); ok {
		s.collectionMirror(collectionID).Update(ctx, func(items []core.Quote) []core.Quote {
			for _, it := range items {
				if it.ID == quoteID {
					return items
				}
			}
			return append([]core.Quote{quote}, items...)
		})
	}
	s.adjustCollectionCount(ctx, collectionID, 1)
	s.queries.Invalidate(collectionQuotesKey(collectionID))
	s.queries.Invalidate(quoteCollectionsKey(quoteID))
	return nil
}

// RemoveQuoteFromCollection removes a quote from a collection.
func (s *Service) RemoveQuoteFromCollection(ctx context.Context, collectionID, quoteID string) error {
	if _, err := s.session.UserID(); err != nil {
		return err
	}

	err := s.mutate(ctx, func(ctx context.Context) error {
		return s.gateway.RemoveQuoteFromCollection(ctx, collectionID, quoteID)
	})
	if err != nil {
		return err
	}

	s.collectionMirror(collectionID).Update(ctx, func(items []core.Quote) []core.Quote {
		out := items[:0]
		for _, it := range items {
			if it.ID != quoteID {
				out = append(out, it)
			}
		}
		return out
	})
	s.adjustCollectionCount(ctx, collectionID, -1)
	s.queries.Invalidate(collectionQuotesKey(collectionID))
	s.queries.Invalidate(quoteCollectionsKey(quoteID))
	return nil
}

// adjustCollectionCount shifts one collection's quote_count in the
// mirror and the cached list. Counts are adjusted incrementally rather
// than recounted, so they may drift until the next full refresh.
func (s *Service) adjustCollectionCount(ctx context.Context, collectionID string, delta int) {
	bump := func(items []core.CollectionWithCount) []core.CollectionWithCount {
		for i := range items {
			if items[i].ID == collectionID {
				items[i].QuoteCount += delta
				if items[i].QuoteCount < 0 {
					items[i].QuoteCount = 0
				}
			}
		}
		return items
	}
	s.collections.Update(ctx, bump)
	cache.Update(s.queries, collectionsKey(), bump)
}

// QuoteCollections returns the user's collections containing a quote.
// Signed-out users have none.
func (s *Service) QuoteCollections(ctx context.Context, quoteID string) ([]core.Collection, error) {
	return cache.Fetch(ctx, s.queries, quoteCollectionsKey(quoteID), cache.Options{},
		func(ctx context.Context) ([]core.Collection, error) {
			userID, err := s.session.UserID()
			if err != nil {
				return []core.Collection{}, nil
			}
			if !s.online(ctx) {
				return []core.Collection{}, nil
			}
			return s.gateway.QuoteCollections(ctx, userID, quoteID)
		})
}

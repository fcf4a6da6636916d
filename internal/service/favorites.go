package service

import (
	"context"
	"errors"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
)

func favoritesKey() cache.QueryKey { return cache.NewKey("favorites") }

func isFavoriteKey(quoteID string) cache.QueryKey {
	return cache.NewKey("is-favorite", cache.P(quoteID))
}

// Favorites returns the user's favorited quotes, newest first. The
// mirror snapshot is served immediately on a warm start while the
// network refresh runs in the background; without identity or network
// the result is empty, never an error.
func (s *Service) Favorites(ctx context.Context) ([]core.QuoteWithFavorite, error) {
	// The mirror and the seeded snapshot must not be consulted until a
	// pending identity clear has swept the store, or a freshly signed-in
	// user would briefly read their predecessor's persisted favorites.
	if err := s.queries.WaitReady(ctx); err != nil {
		return nil, err
	}
	if view, ok := s.favorites.Load(ctx); ok {
		if err := s.queries.SeedQueryData(favoritesKey(), view, cache.Options{}); err != nil {
			s.logger.Warn("Failed to seed favorites query")
		}
	}

	favorites, err := cache.Fetch(ctx, s.queries, favoritesKey(), cache.Options{}, s.loadFavorites)
	if err != nil {
		// Reads degrade to the best available snapshot.
		if view, ok := s.favorites.Load(ctx); ok {
			return view, nil
		}
		if core.IsGateway(err) {
			return []core.QuoteWithFavorite{}, nil
		}
		return nil, err
	}
	return favorites, nil
}

func (s *Service) loadFavorites(ctx context.Context) ([]core.QuoteWithFavorite, error) {
	userID, err := s.session.UserID()
	if err != nil {
		return []core.QuoteWithFavorite{}, nil
	}
	if !s.online(ctx) {
		view, _ := s.favorites.Load(ctx)
		if view == nil {
			view = []core.QuoteWithFavorite{}
		}
		return view, nil
	}

	favorites, err := s.gateway.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.favorites.Replace(ctx, favorites)
	return favorites, nil
}

// IsFavorite reports whether the user has favorited a quote.
func (s *Service) IsFavorite(ctx context.Context, quoteID string) (core.FavoriteStatus, error) {
	return cache.Fetch(ctx, s.queries, isFavoriteKey(quoteID), cache.Options{},
		func(ctx context.Context) (core.FavoriteStatus, error) {
			userID, err := s.session.UserID()
			if err != nil {
				return core.FavoriteStatus{}, nil
			}
			if !s.online(ctx) {
				return s.mirrorFavoriteStatus(quoteID), nil
			}

			fav, err := s.gateway.GetFavorite(ctx, userID, quoteID)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return core.FavoriteStatus{}, nil
				}
				if core.IsGateway(err) {
					return s.mirrorFavoriteStatus(quoteID), nil
				}
				return core.FavoriteStatus{}, err
			}
			return core.FavoriteStatus{
				IsFavorite: true,
				FavoriteID: fav.UserID + "-" + fav.QuoteID,
			}, nil
		})
}

func (s *Service) mirrorFavoriteStatus(quoteID string) core.FavoriteStatus {
	view, _ := s.favorites.View()
	for _, fav := range view {
		if fav.ID == quoteID {
			return core.FavoriteStatus{IsFavorite: true, FavoriteID: fav.FavoriteID}
		}
	}
	return core.FavoriteStatus{}
}

// AddFavorite favorites a quote. The status flips optimistically
// before the write is dispatched and rolls back on genuine failure; a
// duplicate means the favorite already exists and stands. On success
// the favorites mirror is updated before returning.
func (s *Service) AddFavorite(ctx context.Context, quoteID string) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	tx, err := s.queries.Begin(isFavoriteKey(quoteID), core.FavoriteStatus{IsFavorite: true})
	if err != nil {
		return err
	}

	err = s.mutate(ctx, func(ctx context.Context) error {
		return s.gateway.AddFavorite(ctx, userID, quoteID)
	})
	if err != nil && !core.IsDuplicate(err) {
		tx.Abort(err)
		return err
	}
	if core.IsDuplicate(err) {
		// Already satisfied: keep the optimistic value.
		tx.Abort(err)
	} else if err := tx.Commit(core.FavoriteStatus{IsFavorite: true, FavoriteID: userID + "-" + quoteID}); err != nil {
		s.logger.Warn("Failed to finalize favorite status")
	}

	s.favorites.Update(ctx, func(items []core.QuoteWithFavorite) []core.QuoteWithFavorite {
		for _, it := range items {
			if it.ID == quoteID {
				return items
			}
		}
		quote, ok := s.pool.Lookup(ctx, quoteID)
		if !ok {
			return items
		}
		entry := core.QuoteWithFavorite{
			Quote:      quote,
			FavoriteID: userID + "-" + quoteID,
			IsFavorite: true,
		}
		return append([]core.QuoteWithFavorite{entry}, items...)
	})

	s.queries.Invalidate(favoritesKey())
	s.queries.Invalidate(cache.NewKey("favorites-count"))
	return nil
}

// RemoveFavorite unfavorites a quote. Removing a favorite that is
// already gone is a no-op.
func (s *Service) RemoveFavorite(ctx context.Context, quoteID string) error {
	userID, err := s.session.UserID()
	if err != nil {
		return err
	}

	tx, err := s.queries.Begin(isFavoriteKey(quoteID), core.FavoriteStatus{})
	if err != nil {
		return err
	}

	err = s.mutate(ctx, func(ctx context.Context) error {
		return s.gateway.RemoveFavorite(ctx, userID, quoteID)
	})
	if err != nil {
		tx.Abort(err)
		return err
	}
	if err := tx.Commit(nil); err != nil {
		s.logger.Warn("Failed to finalize favorite status")
	}

	s.favorites.Update(ctx, func(items []core.QuoteWithFavorite) []core.QuoteWithFavorite {
		out := items[:0]
		for _, it := range items {
			if it.ID != quoteID {
				out = append(out, it)
			}
		}
		return out
	})

	s.queries.Invalidate(favoritesKey())
	s.queries.Invalidate(cache.NewKey("favorites-count"))
	return nil
}

// ToggleFavorite flips a quote's favorite state and returns the new
// state.
func (s *Service) ToggleFavorite(ctx context.Context, quoteID string) (bool, error) {
	status, err := s.IsFavorite(ctx, quoteID)
	if err != nil {
		return false, err
	}
	if status.IsFavorite {
		return false, s.RemoveFavorite(ctx, quoteID)
	}
	return true, s.AddFavorite(ctx, quoteID)
}

// FavoritesCount returns the user's favorite count, falling back to
// the mirror size when the backend is unreachable.
func (s *Service) FavoritesCount(ctx context.Context) (int, error) {
	return cache.Fetch(ctx, s.queries, cache.NewKey("favorites-count"), cache.Options{},
		func(ctx context.Context) (int, error) {
			userID, err := s.session.UserID()
			if err != nil {
				return 0, nil
			}
			if !s.online(ctx) {
				view, _ := s.favorites.Load(ctx)
				return len(view), nil
			}
			count, err := s.gateway.CountFavorites(ctx, userID)
			if err != nil {
				if core.IsGateway(err) {
					view, _ := s.favorites.Load(ctx)
					return len(view), nil
				}
				return 0, err
			}
			return count, nil
		})
}

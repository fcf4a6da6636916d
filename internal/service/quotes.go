package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
)

const defaultListLimit = 50

func quotesKey(filter core.QuoteFilter, limit int) cache.QueryKey {
	return cache.NewKey("quotes", optPart(string(filter.Category)), optPart(filter.Search), cache.IntP(limit))
}

func infiniteKey(filter core.QuoteFilter, page int, seed *float64) cache.QueryKey {
	seedPart := cache.Part{}
	if seed != nil {
		seedPart = cache.FloatP(*seed)
	}
	return cache.NewKey("quotes-infinite",
		optPart(string(filter.Category)), optPart(filter.Search), seedPart, cache.IntP(page))
}

// ListQuotes returns up to limit quotes matching filter, newest first.
// Offline it serves the local quote pool (falling back to the pre-warm
// cache for category browses); online results feed the pool. A gateway
// failure degrades to pooled data when any exists.
func (s *Service) ListQuotes(ctx context.Context, filter core.QuoteFilter, limit int) ([]core.Quote, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	quotes, err := cache.Fetch(ctx, s.queries, quotesKey(filter, limit), cache.Options{},
		func(ctx context.Context) ([]core.Quote, error) {
			if !s.online(ctx) {
				return s.offlineQuotes(ctx, filter, limit), nil
			}
			quotes, err := s.gateway.ListQuotes(ctx, filter, core.Page{Count: limit})
			if err != nil {
				return nil, err
			}
			s.pool.Add(ctx, quotes)
			return quotes, nil
		})
	if err != nil {
		if cached := s.offlineQuotes(ctx, filter, limit); len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}
	return quotes, nil
}

func (s *Service) offlineQuotes(ctx context.Context, filter core.QuoteFilter, limit int) []core.Quote {
	quotes := s.pool.Filtered(ctx, filter, limit)
	if len(quotes) == 0 && filter.Category != "" && filter.Search == "" {
		quotes = s.prewarm.CategoryQuotes(ctx, filter.Category)
	}
	return quotes
}

// InfiniteQuotes returns one page for infinite scrolling. With a seed,
// the page offset follows the deterministic random-window formula so
// the shuffle is stable while scrolling.
func (s *Service) InfiniteQuotes(ctx context.Context, filter core.QuoteFilter, page int, seed *float64) ([]core.Quote, error) {
	quotes, err := cache.Fetch(ctx, s.queries, infiniteKey(filter, page, seed), cache.Options{},
		func(ctx context.Context) ([]core.Quote, error) {
			if !s.online(ctx) {
				return pageOf(s.pool.Filtered(ctx, filter, 0), page), nil
			}

			offset := page * core.PageSize
			if seed != nil {
				total, err := s.gateway.CountQuotes(ctx, filter)
				if err != nil {
					return nil, err
				}
				offset = core.RandomOffset(*seed, page, total, core.PageSize)
			}

			quotes, err := s.gateway.ListQuotes(ctx, filter, core.Page{Offset: offset, Count: core.PageSize})
			if err != nil {
				return nil, err
			}
			s.pool.Add(ctx, quotes)
			return quotes, nil
		})
	if err != nil {
		if cached := pageOf(s.pool.Filtered(ctx, filter, 0), page); len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}
	return quotes, nil
}

func pageOf(quotes []core.Quote, page int) []core.Quote {
	start := page * core.PageSize
	if start >= len(quotes) {
		return nil
	}
	end := start + core.PageSize
	if end > len(quotes) {
		end = len(quotes)
	}
	return quotes[start:end]
}

// GetQuote returns one quote by id, serving the pool while offline.
func (s *Service) GetQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	quote, err := cache.Fetch(ctx, s.queries, cache.NewKey("quote", cache.P(quoteID)), cache.Options{},
		func(ctx context.Context) (core.Quote, error) {
			if !s.online(ctx) {
				if q, ok := s.pool.Lookup(ctx, quoteID); ok {
					return q, nil
				}
				return core.Quote{}, core.ErrNotFound
			}
			return s.gateway.GetQuote(ctx, quoteID)
		})
	if err != nil && core.IsGateway(err) {
		if q, ok := s.pool.Lookup(ctx, quoteID); ok {
			return q, nil
		}
	}
	return quote, err
}

// QuotesByAuthor returns every quote by one author, newest first.
func (s *Service) QuotesByAuthor(ctx context.Context, author string) ([]core.Quote, error) {
	return cache.Fetch(ctx, s.queries, cache.NewKey("quotes", cache.P("author"), cache.P(author)), cache.Options{},
		func(ctx context.Context) ([]core.Quote, error) {
			if !s.online(ctx) {
				var out []core.Quote
				for _, q := range s.pool.Quotes(ctx) {
					if q.Author == author {
						out = append(out, q)
					}
				}
				return out, nil
			}
			quotes, err := s.gateway.QuotesByAuthor(ctx, author)
			if err != nil {
				return nil, err
			}
			s.pool.Add(ctx, quotes)
			return quotes, nil
		})
}

// RandomQuotes returns n quotes sampled by random offsets. Results are
// cached briefly so repeated calls within the window are stable.
func (s *Service) RandomQuotes(ctx context.Context, n int) ([]core.Quote, error) {
	if n <= 0 {
		n = 10
	}
	return cache.Fetch(ctx, s.queries, cache.NewKey("quotes", cache.P("random"), cache.IntP(n)),
		cache.Options{StaleTime: 2 * time.Minute},
		func(ctx context.Context) ([]core.Quote, error) {
			if !s.online(ctx) {
				return s.pool.Filtered(ctx, core.QuoteFilter{}, n), nil
			}

			total, err := s.gateway.CountQuotes(ctx, core.QuoteFilter{})
			if err != nil {
				return nil, err
			}
			if total == 0 {
				return []core.Quote{}, nil
			}

			if n > total {
				n = total
			}
			quotes := make([]core.Quote, 0, n)
			for i := 0; i < n; i++ {
				batch, err := s.gateway.ListQuotes(ctx, core.QuoteFilter{}, core.Page{Offset: rand.IntN(total), Count: 1})
				if err != nil {
					return nil, err
				}
				quotes = append(quotes, batch...)
			}
			s.pool.Add(ctx, quotes)
			return quotes, nil
		})
}

// Sections returns per-category quote counts for browse screens,
// preferring the pre-warm snapshot and computing online when cold.
func (s *Service) Sections(ctx context.Context) ([]core.Section, error) {
	return cache.Fetch(ctx, s.queries, cache.NewKey("sections"), cache.Options{},
		func(ctx context.Context) ([]core.Section, error) {
			if cached := s.prewarm.Sections(ctx); len(cached) > 0 {
				return cached, nil
			}
			if !s.online(ctx) {
				return []core.Section{}, nil
			}

			sections := make([]core.Section, 0, len(core.Categories()))
			for _, category := range core.Categories() {
				count, err := s.gateway.CountQuotes(ctx, core.QuoteFilter{Category: category})
				if err != nil {
					return nil, err
				}
				sections = append(sections, core.Section{Category: category, Count: count})
			}
			return sections, nil
		})
}

// RefreshQuotes drops all cached quote lists so the next read fetches
// fresh (or freshly shuffled) results.
func (s *Service) RefreshQuotes() {
	s.queries.ResetQueries(cache.NewKey("quotes"))
	s.queries.ResetQueries(cache.NewKey("quotes-infinite"))
}

// DailyQuote returns the rotation quote for today (UTC), falling back
// to an arbitrary quote when no rotation row exists yet.
func (s *Service) DailyQuote(ctx context.Context) (core.Quote, error) {
	return cache.Fetch(ctx, s.queries, cache.NewKey("daily-quote"), cache.Options{StaleTime: time.Hour},
		func(ctx context.Context) (core.Quote, error) {
			date := s.cfg.Clock().UTC().Format("2006-01-02")
			quote, err := s.gateway.DailyQuote(ctx, date)
			if err == nil {
				return quote, nil
			}
			if !errors.Is(err, core.ErrNotFound) {
				return core.Quote{}, err
			}

			quotes, err := s.gateway.ListQuotes(ctx, core.QuoteFilter{}, core.Page{Count: 1})
			if err != nil || len(quotes) == 0 {
				return core.Quote{}, &core.GatewayError{Op: "daily quote", Message: "could not fetch daily quote"}
			}
			return quotes[0], nil
		})
}

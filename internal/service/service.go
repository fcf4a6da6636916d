// Package service orchestrates the offline-first read and mutation
// paths: every read consults the query cache first, falls back to a
// domain mirror while offline, and every successful mutation updates
// the relevant mirror before returning.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
)

// Config holds service tuning knobs.
type Config struct {
	MutationRetries int // default 1
	Clock           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MutationRetries == 0 {
		c.MutationRetries = 1
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Service is the process-wide entry point for quotes, favorites and
// collections backed by the offline cache stack.
type Service struct {
	gateway core.Gateway
	queries *cache.QueryCache
	store   core.KeyValueStore
	conn    core.Connectivity
	session *auth.Session
	pool    *cache.QuotePool
	prewarm *cache.Prewarm
	logger  *zap.Logger
	cfg     Config

	favorites   *cache.Mirror[core.QuoteWithFavorite]
	collections *cache.Mirror[core.CollectionWithCount]

	cqMu             sync.Mutex
	collectionQuotes map[string]*cache.Mirror[core.Quote]
	lifecycle        *cache.Lifecycle
}

// New wires the service. lifecycle may be nil when identity-scoped
// clearing is handled elsewhere (tests).
func New(
	gateway core.Gateway,
	queries *cache.QueryCache,
	store core.KeyValueStore,
	conn core.Connectivity,
	session *auth.Session,
	pool *cache.QuotePool,
	prewarm *cache.Prewarm,
	lifecycle *cache.Lifecycle,
	logger *zap.Logger,
	cfg Config,
) *Service {
	s := &Service{
		gateway:          gateway,
		queries:          queries,
		store:            store,
		conn:             conn,
		session:          session,
		pool:             pool,
		prewarm:          prewarm,
		logger:           logger,
		cfg:              cfg.withDefaults(),
		favorites:        cache.NewMirror[core.QuoteWithFavorite](cache.FavoritesKey, store, logger),
		collections:      cache.NewMirror[core.CollectionWithCount](cache.CollectionsKey, store, logger),
		collectionQuotes: make(map[string]*cache.Mirror[core.Quote]),
		lifecycle:        lifecycle,
	}
	if lifecycle != nil {
		lifecycle.Track(s.favorites)
		lifecycle.Track(s.collections)
	}
	return s
}

// PrewarmCaches runs the category pre-warm pass if it is due.
func (s *Service) PrewarmCaches(ctx context.Context) error {
	return s.prewarm.Run(ctx)
}

// Restore rehydrates the query cache from the local store.
func (s *Service) Restore(ctx context.Context) error {
	return s.queries.Restore(ctx)
}

// online reports current connectivity; a nil checker means online.
func (s *Service) online(ctx context.Context) bool {
	return s.conn == nil || s.conn.Online(ctx)
}

// mutate runs a gateway write with the mutation retry policy. Only
// gateway failures are retried; duplicates and refusals are final.
// Retries are skipped while offline.
func (s *Service) mutate(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := uint(s.cfg.MutationRetries + 1)
	if !s.online(ctx) {
		attempts = 1
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err != nil && !core.IsGateway(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(attempts))
	return err
}

// collectionMirror returns (creating if needed) the per-collection
// quote mirror.
func (s *Service) collectionMirror(collectionID string) *cache.Mirror[core.Quote] {
	s.cqMu.Lock()
	defer s.cqMu.Unlock()
	m, ok := s.collectionQuotes[collectionID]
	if !ok {
		m = cache.NewMirror[core.Quote](cache.CollectionQuotesKey(collectionID), s.store, s.logger)
		s.collectionQuotes[collectionID] = m
		if s.lifecycle != nil {
			s.lifecycle.Track(m)
		}
	}
	return m
}

func (s *Service) dropCollectionMirror(ctx context.Context, collectionID string) {
	s.cqMu.Lock()
	m, ok := s.collectionQuotes[collectionID]
	delete(s.collectionQuotes, collectionID)
	s.cqMu.Unlock()
	if ok {
		m.Clear(ctx)
	} else if err := s.store.Remove(ctx, cache.CollectionQuotesKey(collectionID)); err != nil {
		s.logger.Warn("Failed to remove collection quotes snapshot",
			zap.String("collection_id", collectionID), zap.Error(err))
	}
}

// optPart maps a filter value to a key part. An empty string means the
// filter is absent, so it folds into the undefined part and shares the
// unfiltered query's cache slot.
func optPart(v string) cache.Part {
	if v == "" {
		return cache.Part{}
	}
	return cache.P(v)
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// StaleForever marks entries that only go stale through explicit
// invalidation, never by age. Used for collection-quote lists.
const StaleForever time.Duration = -1

// NoRetry disables retries for one fetch.
const NoRetry = -1

// persistKey is where the full cache snapshot lives in the local store.
const persistKey = "@quotevault_query_cache"

// LoaderFunc produces a fresh value for a query key.
type LoaderFunc func(ctx context.Context) (any, error)

// Options tune a single fetch. The zero value uses cache defaults.
type Options struct {
	// StaleTime overrides the default stale horizon. StaleForever means
	// the entry is refreshed only after Invalidate.
	StaleTime time.Duration

	// Retries overrides the default read retry count. NoRetry means a
	// single attempt.
	Retries int
}

// Config holds QueryCache tuning knobs.
type Config struct {
	StaleTime       time.Duration // default 5m
	GCTime          time.Duration // default 10m
	PersistThrottle time.Duration // default 1s, minimum gap between snapshot writes
	ReadRetries     int           // default 2
	Clock           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StaleTime == 0 {
		c.StaleTime = 5 * time.Minute
	}
	if c.GCTime == 0 {
		c.GCTime = 10 * time.Minute
	}
	if c.PersistThrottle == 0 {
		c.PersistThrottle = time.Second
	}
	if c.ReadRetries == 0 {
		c.ReadRetries = 2
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type entry struct {
	key       QueryKey
	value     json.RawMessage
	updatedAt time.Time
	staleTime time.Duration
	invalid   bool
	fetching  bool
}

type subscriber struct {
	keyID string
	ch    chan json.RawMessage
}

// QueryCache caches the result of each distinct query, keyed by its
// parameters. Values are held as JSON so the whole cache can be
// snapshotted to the local store and rehydrated after a restart.
type QueryCache struct {
	store  core.KeyValueStore
	conn   core.Connectivity
	logger *zap.Logger
	cfg    Config

	mu      sync.Mutex
	entries map[string]*entry
	subs    []*subscriber

	// pendingClears > 0 means an identity-transition clear is queued or
	// in flight; fetches block on readyCh until it completes.
	pendingClears int
	readyCh       chan struct{}

	dirtyCh chan struct{}
	stopCh  chan struct{}
	stopped sync.Once
}

// NewQueryCache creates a query cache. store may be nil for a purely
// in-memory cache; conn may be nil when connectivity is assumed.
func NewQueryCache(store core.KeyValueStore, conn core.Connectivity, logger *zap.Logger, cfg Config) *QueryCache {
	c := &QueryCache{
		store:   store,
		conn:    conn,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		readyCh: closedChan(),
		dirtyCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	go c.persistLoop()
	go c.gcLoop()

	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Stop stops the background persistence and gc tasks.
func (c *QueryCache) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

// Fetch returns the cached value for key, loading it when absent. A
// fresh cached value is returned without calling loader; a stale one is
// returned immediately while loader runs in the background. On a miss,
// loader runs with the configured retry policy and the result is cached.
func Fetch[T any](ctx context.Context, c *QueryCache, key QueryKey, opts Options, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := c.fetch(ctx, key, opts, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return v, nil
}

// Get returns the current cached value for key without fetching.
func Get[T any](c *QueryCache, key QueryKey) (T, bool) {
	var v T
	raw, ok := c.Raw(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// Update applies fn to the cached value for key, if present. Used for
// derived-view maintenance such as collection quote counts.
func Update[T any](c *QueryCache, key QueryKey, fn func(T) T) {
	var v T
	raw, ok := c.Raw(key)
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	if err := c.SetQueryData(key, fn(v)); err != nil {
		c.logger.Warn("Failed to update cached value", zap.Stringer("key", key), zap.Error(err))
	}
}

func (c *QueryCache) fetch(ctx context.Context, key QueryKey, opts Options, loader LoaderFunc) (json.RawMessage, error) {
	if err := c.WaitReady(ctx); err != nil {
		return nil, err
	}

	id := key.ID()
	c.mu.Lock()
	e, ok := c.entries[id]
	now := c.cfg.Clock()
	if ok && e.staleTime != StaleForever && opts.StaleTime != StaleForever && now.Sub(e.updatedAt) > c.cfg.GCTime {
		// Garbage-collected: treat as a miss.
		delete(c.entries, id)
		ok = false
	}
	if ok {
		val := e.value
		if !e.invalid && !c.isStale(e, now, opts) {
			c.mu.Unlock()
			return val, nil
		}
		// Stale: serve the old value now, refresh in the background.
		if !e.fetching {
			e.fetching = true
			go c.refresh(key, opts, loader)
		}
		c.mu.Unlock()
		return val, nil
	}
	c.mu.Unlock()

	raw, err := c.load(ctx, loader, opts)
	if err != nil {
		return nil, err
	}
	c.setRaw(key, raw, opts)
	return raw, nil
}

func (c *QueryCache) isStale(e *entry, now time.Time, opts Options) bool {
	horizon := e.staleTime
	if opts.StaleTime != 0 {
		horizon = opts.StaleTime
	}
	if horizon == StaleForever {
		return false
	}
	if horizon == 0 {
		horizon = c.cfg.StaleTime
	}
	return now.Sub(e.updatedAt) > horizon
}

// refresh reloads one key in the background. The refresh runs with a
// background context so it completes even if the triggering caller has
// moved on; completion order decides the winner (last write wins).
func (c *QueryCache) refresh(key QueryKey, opts Options, loader LoaderFunc) {
	raw, err := c.load(context.Background(), loader, opts)

	id := key.ID()
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.fetching = false
	}
	c.mu.Unlock()

	if err != nil {
		// Keep serving the old value.
		c.logger.Debug("Background refresh failed", zap.Stringer("key", key), zap.Error(err))
		return
	}
	c.setRaw(key, raw, opts)
}

func (c *QueryCache) load(ctx context.Context, loader LoaderFunc, opts Options) (json.RawMessage, error) {
	attempts := uint(c.cfg.ReadRetries + 1)
	switch {
	case opts.Retries == NoRetry:
		attempts = 1
	case opts.Retries > 0:
		attempts = uint(opts.Retries) + 1
	}
	// Retrying without connectivity is pointless.
	if c.conn != nil && !c.conn.Online(ctx) {
		attempts = 1
	}

	value, err := backoff.Retry(ctx, func() (any, error) {
		v, err := loader(ctx)
		if err != nil && !core.IsGateway(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(attempts))
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query result: %w", err)
	}
	return raw, nil
}

func (c *QueryCache) setRaw(key QueryKey, raw json.RawMessage, opts Options) {
	id := key.ID()
	c.mu.Lock()
	staleTime := opts.StaleTime
	if staleTime == 0 {
		// Rewrites without an explicit horizon keep the entry's current
		// one, so a never-stale entry stays never-stale across
		// SetQueryData and transaction commits.
		if prev, ok := c.entries[id]; ok {
			staleTime = prev.staleTime
		}
	}
	c.entries[id] = &entry{
		key:       key,
		value:     raw,
		updatedAt: c.cfg.Clock(),
		staleTime: staleTime,
	}
	subs := c.matchingSubs(id)
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- raw:
		default:
		}
	}
	c.markDirty()
}

// SetQueryData stores value under key as a fresh entry.
func (c *QueryCache) SetQueryData(key QueryKey, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode query data: %w", err)
	}
	c.setRaw(key, raw, Options{})
	return nil
}

// SeedQueryData stores value under key already marked stale, so the
// next fetch serves it immediately and refreshes in the background.
// Used to warm queries from mirror snapshots on startup. opts carries
// the key's stale horizon, the same one its fetches use. Seeding is
// refused while an identity clear is pending.
func (c *QueryCache) SeedQueryData(key QueryKey, value any, opts Options) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode seed data: %w", err)
	}
	id := key.ID()
	c.mu.Lock()
	if c.pendingClears > 0 {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.entries[id]; ok {
		// Never clobber live data with a snapshot.
		c.mu.Unlock()
		return nil
	}
	c.entries[id] = &entry{
		key:       key,
		value:     raw,
		updatedAt: c.cfg.Clock(),
		staleTime: opts.StaleTime,
		invalid:   true,
	}
	c.mu.Unlock()
	c.markDirty()
	return nil
}

// Raw returns the undecoded cached value for key.
func (c *QueryCache) Raw(key QueryKey) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.ID()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Invalidate marks every entry matching prefix stale without evicting
// its value, so it is still servable while the refetch is in flight.
func (c *QueryCache) Invalidate(prefix QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.invalid = true
		}
	}
}

// ResetQueries drops every entry matching prefix, forcing the next
// fetch to treat it as a miss.
func (c *QueryCache) ResetQueries(prefix QueryKey) {
	c.mu.Lock()
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()
	c.markDirty()
}

// Clear drops all entries. Used on identity transitions.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	c.markDirty()
}

// Len returns the number of live entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe delivers every new value stored under key until cancel is
// called. Slow subscribers miss intermediate values rather than block
// the cache.
func (c *QueryCache) Subscribe(key QueryKey) (<-chan json.RawMessage, func()) {
	s := &subscriber{keyID: key.ID(), ch: make(chan json.RawMessage, 1)}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		for i, cur := range c.subs {
			if cur == s {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}
	return s.ch, cancel
}

func (c *QueryCache) matchingSubs(keyID string) []*subscriber {
	var out []*subscriber
	for _, s := range c.subs {
		if s.keyID == keyID {
			out = append(out, s)
		}
	}
	return out
}

// HoldFetches blocks new fetches until ReleaseFetches. Called by the
// lifecycle manager at the moment an auth transition is observed, so a
// fetch issued for the new identity cannot read pre-clear data.
func (c *QueryCache) HoldFetches() {
	c.mu.Lock()
	c.pendingClears++
	if c.pendingClears == 1 {
		c.readyCh = make(chan struct{})
	}
	c.mu.Unlock()
}

// ReleaseFetches unblocks fetches once a clear has completed.
func (c *QueryCache) ReleaseFetches() {
	c.mu.Lock()
	if c.pendingClears > 0 {
		c.pendingClears--
		if c.pendingClears == 0 {
			close(c.readyCh)
		}
	}
	c.mu.Unlock()
}

// WaitReady blocks while an identity clear is pending. Every fetch
// passes through it; readers that consult other caches before fetching
// (mirror-seeded reads) must call it first, so nothing re-reads
// pre-transition data while the storage sweep is still in flight.
func (c *QueryCache) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pendingClears == 0 {
			c.mu.Unlock()
			return nil
		}
		ready := c.readyCh
		c.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// --- persistence ---

type persistedEntry struct {
	Key       QueryKey        `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
	StaleTime time.Duration   `json:"stale_time,omitempty"`
}

type persistedCache struct {
	Entries []persistedEntry `json:"entries"`
}

func (c *QueryCache) markDirty() {
	select {
	case c.dirtyCh <- struct{}{}:
	default:
	}
}

// persistLoop writes the snapshot at most once per throttle window.
func (c *QueryCache) persistLoop() {
	if c.store == nil {
		return
	}
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.dirtyCh:
		}
		c.persist(context.Background())
		select {
		case <-c.stopCh:
			return
		case <-time.After(c.cfg.PersistThrottle):
		}
	}
}

func (c *QueryCache) persist(ctx context.Context) {
	c.mu.Lock()
	snap := persistedCache{Entries: make([]persistedEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		snap.Entries = append(snap.Entries, persistedEntry{
			Key:       e.key,
			Value:     e.value,
			UpdatedAt: e.updatedAt,
			StaleTime: e.staleTime,
		})
	}
	c.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("Failed to encode cache snapshot", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, persistKey, raw); err != nil {
		// Non-fatal: continue memory-only.
		c.logger.Warn("Failed to persist cache snapshot", zap.Error(err))
	}
}

// Restore rehydrates the cache from the persisted snapshot so a
// restarted process has warm data before any network call completes.
// Restored entries arrive already stale and refresh on first use.
func (c *QueryCache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, persistKey)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}

	var snap persistedCache
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode cache snapshot: %w", err)
	}

	now := c.cfg.Clock()
	restored := 0
	c.mu.Lock()
	for _, pe := range snap.Entries {
		if now.Sub(pe.UpdatedAt) > c.cfg.GCTime && pe.StaleTime != StaleForever {
			continue
		}
		c.entries[pe.Key.ID()] = &entry{
			key:       pe.Key,
			value:     pe.Value,
			updatedAt: pe.UpdatedAt,
			staleTime: pe.StaleTime,
			invalid:   true,
		}
		restored++
	}
	c.mu.Unlock()

	c.logger.Debug("Restored query cache", zap.Int("entries", restored))
	return nil
}

// --- gc ---

func (c *QueryCache) gcLoop() {
	ticker := time.NewTicker(c.cfg.GCTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *QueryCache) collect() {
	now := c.cfg.Clock()
	expired := 0
	c.mu.Lock()
	for id, e := range c.entries {
		if e.staleTime == StaleForever {
			continue
		}
		if now.Sub(e.updatedAt) > c.cfg.GCTime {
			delete(c.entries, id)
			expired++
		}
	}
	c.mu.Unlock()

	if expired > 0 {
		c.logger.Debug("Collected expired cache entries", zap.Int("expired_count", expired))
		c.markDirty()
	}
}

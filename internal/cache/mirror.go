package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// Storage keys for the domain mirrors. The cache_ prefix is shared by
// every mirror so an identity clear can sweep them all.
const (
	MirrorPrefix            = "cache_"
	FavoritesKey            = MirrorPrefix + "favorites"
	CollectionsKey          = MirrorPrefix + "collections"
	CollectionQuotesKeyBase = MirrorPrefix + "collection_quotes_"
)

// CollectionQuotesKey returns the storage key for one collection's
// quote mirror.
func CollectionQuotesKey(collectionID string) string {
	return CollectionQuotesKeyBase + collectionID
}

type mirrorSnapshot[T any] struct {
	Data      []T   `json:"data"`
	Timestamp int64 `json:"timestamp"` // unix milliseconds
}

// Mirror duplicates one server-shaped list into the local store,
// independent of the query cache, to serve immediate reads before a
// network round-trip resolves and to serve reads entirely offline.
//
// Cold (no snapshot) reads return an empty view and never an error.
// Warm reads serve the snapshot with zero latency. Mutations update the
// in-memory view and the persisted snapshot before returning. Storage
// failures are logged and swallowed; the mirror degrades to memory.
type Mirror[T any] struct {
	key    string
	store  core.KeyValueStore
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	loaded bool
	items  []T
	ts     time.Time
}

// NewMirror creates a mirror persisted under key.
func NewMirror[T any](key string, store core.KeyValueStore, logger *zap.Logger) *Mirror[T] {
	return &Mirror[T]{key: key, store: store, logger: logger, now: time.Now}
}

// WithClock replaces the mirror's clock. Intended for tests.
func (m *Mirror[T]) WithClock(now func() time.Time) *Mirror[T] {
	m.now = now
	return m
}

// Load returns the mirrored view, reading the persisted snapshot on
// first use. ok is false when the mirror is cold.
func (m *Mirror[T]) Load(ctx context.Context) ([]T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	if m.items == nil {
		return nil, false
	}
	return append([]T(nil), m.items...), true
}

// View returns the in-memory view without touching storage.
func (m *Mirror[T]) View() ([]T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded || m.items == nil {
		return nil, false
	}
	return append([]T(nil), m.items...), true
}

// Timestamp returns when the snapshot was last replaced.
func (m *Mirror[T]) Timestamp(ctx context.Context) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	return m.ts
}

// Replace overwrites the view and the persisted snapshot with a full
// server result.
func (m *Mirror[T]) Replace(ctx context.Context, items []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if items == nil {
		items = []T{}
	}
	m.loaded = true
	m.items = items
	m.ts = m.now()
	m.persist(ctx)
}

// Update applies fn to the view and persists the result before
// returning, keeping the mutation-then-view ordering synchronous.
func (m *Mirror[T]) Update(ctx context.Context, fn func(items []T) []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded(ctx)
	m.loaded = true
	m.items = fn(m.items)
	if m.items == nil {
		m.items = []T{}
	}
	m.ts = m.now()
	m.persist(ctx)
}

// Reset drops the in-memory view without touching storage. The
// lifecycle manager calls this synchronously at an identity transition;
// the persisted key is swept separately.
func (m *Mirror[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.items = nil
	m.ts = time.Time{}
}

// Clear drops the view and removes the persisted snapshot.
func (m *Mirror[T]) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.items = nil
	m.ts = time.Time{}
	if m.store == nil {
		return
	}
	if err := m.store.Remove(ctx, m.key); err != nil {
		m.logger.Warn("Failed to remove mirror snapshot", zap.String("key", m.key), zap.Error(err))
	}
}

// ensureLoaded reads the persisted snapshot once. Caller holds mu.
func (m *Mirror[T]) ensureLoaded(ctx context.Context) {
	if m.loaded || m.store == nil {
		return
	}
	m.loaded = true

	raw, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			// Storage failure reads as a cache miss.
			m.logger.Warn("Failed to read mirror snapshot", zap.String("key", m.key), zap.Error(err))
		}
		return
	}

	var snap mirrorSnapshot[T]
	if err := json.Unmarshal(raw, &snap); err != nil {
		m.logger.Warn("Corrupt mirror snapshot", zap.String("key", m.key), zap.Error(err))
		return
	}
	m.items = snap.Data
	m.ts = time.UnixMilli(snap.Timestamp)
}

// persist writes the current view. Caller holds mu.
func (m *Mirror[T]) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(mirrorSnapshot[T]{Data: m.items, Timestamp: m.ts.UnixMilli()})
	if err != nil {
		m.logger.Warn("Failed to encode mirror snapshot", zap.String("key", m.key), zap.Error(err))
		return
	}
	if err := m.store.Set(ctx, m.key, raw); err != nil {
		m.logger.Warn("Failed to persist mirror snapshot", zap.String("key", m.key), zap.Error(err))
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"github.com/quotevault/quotevault/internal/core"
)

// PoolKey is where the shared offline quote pool is persisted.
const PoolKey = "@quotevault_cached_quotes"

// DefaultMaxPoolQuotes bounds the pool; the oldest quotes by created_at
// are evicted first.
const DefaultMaxPoolQuotes = 500

type poolSnapshot struct {
	Quotes    []core.Quote `json:"quotes"`
	Timestamp int64        `json:"timestamp"` // unix milliseconds
}

// QuotePool accumulates every quote seen on any online read so quote
// lists keep working offline. Reads outside the validity window come
// back empty; writes merge, dedupe by id and keep the newest max
// entries.
type QuotePool struct {
	store    core.KeyValueStore
	logger   *zap.Logger
	max      int
	validity time.Duration
	now      func() time.Time

	mu sync.Mutex
}

// NewQuotePool creates a pool with the given bound and validity window.
func NewQuotePool(store core.KeyValueStore, logger *zap.Logger, max int, validity time.Duration) *QuotePool {
	if max <= 0 {
		max = DefaultMaxPoolQuotes
	}
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	return &QuotePool{store: store, logger: logger, max: max, validity: validity, now: time.Now}
}

// WithClock replaces the pool's clock. Intended for tests.
func (p *QuotePool) WithClock(now func() time.Time) *QuotePool {
	p.now = now
	return p
}

// Add merges quotes into the pool. An expired existing snapshot is
// discarded rather than merged. Failures are swallowed; the pool is an
// opportunistic cache.
func (p *QuotePool) Add(ctx context.Context, quotes []core.Quote) {
	if len(quotes) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	existing := p.read(ctx)

	seen := make(map[string]int, len(existing)+len(quotes))
	merged := make([]core.Quote, 0, len(existing)+len(quotes))
	for _, q := range existing {
		seen[q.ID] = len(merged)
		merged = append(merged, q)
	}
	for _, q := range quotes {
		if i, ok := seen[q.ID]; ok {
			merged[i] = q
			continue
		}
		seen[q.ID] = len(merged)
		merged = append(merged, q)
	}

	// Newest first; evict from the tail.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > p.max {
		merged = merged[:p.max]
	}

	raw, err := json.Marshal(poolSnapshot{Quotes: merged, Timestamp: p.now().UnixMilli()})
	if err != nil {
		p.logger.Warn("Failed to encode quote pool", zap.Error(err))
		return
	}
	if err := p.store.Set(ctx, PoolKey, raw); err != nil {
		p.logger.Warn("Failed to persist quote pool", zap.Error(err))
	}
}

// Quotes returns the pooled quotes, newest first, or nil when the pool
// is empty or expired.
func (p *QuotePool) Quotes(ctx context.Context) []core.Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read(ctx)
}

// Filtered applies the quote filter to the pooled quotes, for offline
// list reads. Search matches case-insensitively against content or
// author. limit <= 0 means no limit.
func (p *QuotePool) Filtered(ctx context.Context, filter core.QuoteFilter, limit int) []core.Quote {
	quotes := p.Quotes(ctx)

	out := make([]core.Quote, 0, len(quotes))
	matcher := search.New(language.Und, search.IgnoreCase)
	for _, q := range quotes {
		if filter.Category != "" && q.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !matches(matcher, q, filter.Search) {
			continue
		}
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Lookup finds one pooled quote by id.
func (p *QuotePool) Lookup(ctx context.Context, quoteID string) (core.Quote, bool) {
	for _, q := range p.Quotes(ctx) {
		if q.ID == quoteID {
			return q, true
		}
	}
	return core.Quote{}, false
}

// Clear removes the persisted pool.
func (p *QuotePool) Clear(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Remove(ctx, PoolKey); err != nil {
		p.logger.Warn("Failed to clear quote pool", zap.Error(err))
	}
}

// read loads the snapshot if still within the validity window. Caller
// holds mu.
func (p *QuotePool) read(ctx context.Context) []core.Quote {
	raw, err := p.store.Get(ctx, PoolKey)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			p.logger.Warn("Failed to read quote pool", zap.Error(err))
		}
		return nil
	}
	var snap poolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		p.logger.Warn("Corrupt quote pool snapshot", zap.Error(err))
		return nil
	}
	if p.now().Sub(time.UnixMilli(snap.Timestamp)) > p.validity {
		return nil
	}
	return snap.Quotes
}

func matches(m *search.Matcher, q core.Quote, term string) bool {
	if start, _ := m.IndexString(q.Content, term); start >= 0 {
		return true
	}
	start, _ := m.IndexString(q.Author, term)
	return start >= 0
}

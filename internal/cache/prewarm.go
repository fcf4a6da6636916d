package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// Pre-warm storage keys. The @quotevault_ prefix groups them with the
// other app-level cache keys for the full-clear sweep.
const (
	PrewarmKeyPrefix   = "@quotevault_initial_cache_"
	SectionsKey        = "@quotevault_sections_cache"
	PrewarmMarkerKey   = PrewarmKeyPrefix + "last_update"
	DefaultPerCategory = 10
)

// PrewarmCategoryKey returns the storage key for one category's
// pre-warmed quotes.
func PrewarmCategoryKey(c core.Category) string {
	return PrewarmKeyPrefix + string(c)
}

type prewarmSnapshot struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Prewarm proactively fetches the first quotes of every category plus
// per-category counts, at most once per validity window and only with
// confirmed connectivity. It is read-through only; nothing mutates it.
type Prewarm struct {
	gateway     core.Gateway
	store       core.KeyValueStore
	conn        core.Connectivity
	logger      *zap.Logger
	perCategory int
	validity    time.Duration
	now         func() time.Time
}

// NewPrewarm creates the pre-warm cache.
func NewPrewarm(gateway core.Gateway, store core.KeyValueStore, conn core.Connectivity, logger *zap.Logger, perCategory int, validity time.Duration) *Prewarm {
	if perCategory <= 0 {
		perCategory = DefaultPerCategory
	}
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	return &Prewarm{
		gateway:     gateway,
		store:       store,
		conn:        conn,
		logger:      logger,
		perCategory: perCategory,
		validity:    validity,
		now:         time.Now,
	}
}

// WithClock replaces the clock. Intended for tests.
func (p *Prewarm) WithClock(now func() time.Time) *Prewarm {
	p.now = now
	return p
}

// Run populates the pre-warm cache if it is due. Offline, or with a
// still-valid marker, it returns without network calls. Per-category
// failures are logged and skipped; the marker is set once the pass
// finishes.
func (p *Prewarm) Run(ctx context.Context) error {
	if p.conn != nil && !p.conn.Online(ctx) {
		p.logger.Debug("Offline, skipping pre-warm")
		return nil
	}
	if p.fresh(ctx) {
		p.logger.Debug("Pre-warm cache still valid")
		return nil
	}

	p.logger.Info("Starting pre-warm", zap.Int("quotes_per_category", p.perCategory))

	var wg sync.WaitGroup
	for _, category := range core.Categories() {
		wg.Add(1)
		go func(category core.Category) {
			defer wg.Done()
			p.warmCategory(ctx, category)
		}(category)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.warmSections(ctx)
	}()

	wg.Wait()

	if err := p.store.Set(ctx, PrewarmMarkerKey, []byte(strconv.FormatInt(p.now().UnixMilli(), 10))); err != nil {
		p.logger.Warn("Failed to set pre-warm marker", zap.Error(err))
	}
	p.logger.Info("Pre-warm completed")
	return nil
}

func (p *Prewarm) warmCategory(ctx context.Context, category core.Category) {
	quotes, err := p.gateway.ListQuotes(ctx, core.QuoteFilter{Category: category}, core.Page{Count: p.perCategory})
	if err != nil {
		p.logger.Warn("Failed to pre-warm category", zap.String("category", string(category)), zap.Error(err))
		return
	}
	if len(quotes) == 0 {
		return
	}
	p.write(ctx, PrewarmCategoryKey(category), quotes)
	p.logger.Debug("Pre-warmed category", zap.String("category", string(category)), zap.Int("quotes", len(quotes)))
}

func (p *Prewarm) warmSections(ctx context.Context) {
	sections := make([]core.Section, 0, len(core.Categories()))
	for _, category := range core.Categories() {
		count, err := p.gateway.CountQuotes(ctx, core.QuoteFilter{Category: category})
		if err != nil {
			p.logger.Warn("Failed to count category", zap.String("category", string(category)), zap.Error(err))
			return
		}
		sections = append(sections, core.Section{Category: category, Count: count})
	}
	p.write(ctx, SectionsKey, sections)
}

func (p *Prewarm) write(ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("Failed to encode pre-warm data", zap.String("key", key), zap.Error(err))
		return
	}
	snap, err := json.Marshal(prewarmSnapshot{Data: raw, Timestamp: p.now().UnixMilli()})
	if err != nil {
		return
	}
	if err := p.store.Set(ctx, key, snap); err != nil {
		p.logger.Warn("Failed to persist pre-warm data", zap.String("key", key), zap.Error(err))
	}
}

// CategoryQuotes returns the pre-warmed quotes for one category, or
// nil when the category was never warmed.
func (p *Prewarm) CategoryQuotes(ctx context.Context, category core.Category) []core.Quote {
	var quotes []core.Quote
	p.readInto(ctx, PrewarmCategoryKey(category), &quotes)
	return quotes
}

// Sections returns the pre-warmed per-category counts.
func (p *Prewarm) Sections(ctx context.Context) []core.Section {
	var sections []core.Section
	p.readInto(ctx, SectionsKey, &sections)
	return sections
}

func (p *Prewarm) readInto(ctx context.Context, key string, out any) {
	raw, err := p.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			p.logger.Warn("Failed to read pre-warm data", zap.String("key", key), zap.Error(err))
		}
		return
	}
	var snap prewarmSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		p.logger.Warn("Corrupt pre-warm snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	if err := json.Unmarshal(snap.Data, out); err != nil {
		p.logger.Warn("Corrupt pre-warm payload", zap.String("key", key), zap.Error(err))
	}
}

// fresh reports whether the last pre-warm is still within validity.
func (p *Prewarm) fresh(ctx context.Context) bool {
	raw, err := p.store.Get(ctx, PrewarmMarkerKey)
	if err != nil {
		return false
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}
	return p.now().Sub(time.UnixMilli(millis)) < p.validity
}

// Clear removes every pre-warm key including the marker, forcing a
// full pass on the next Run.
func (p *Prewarm) Clear(ctx context.Context) {
	keys := []string{SectionsKey, PrewarmMarkerKey}
	for _, category := range core.Categories() {
		keys = append(keys, PrewarmCategoryKey(category))
	}
	if err := p.store.RemoveMany(ctx, keys); err != nil {
		p.logger.Warn("Failed to clear pre-warm cache", zap.Error(err))
	}
}

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/adapters/netcheck"
	"github.com/quotevault/quotevault/internal/adapters/store"
	"github.com/quotevault/quotevault/internal/core"
)

// prewarmGateway serves canned category pages and counts.
type prewarmGateway struct {
	core.Gateway

	mu        sync.Mutex
	listCalls int
}

func (g *prewarmGateway) ListQuotes(ctx context.Context, filter core.QuoteFilter, page core.Page) ([]core.Quote, error) {
	g.mu.Lock()
	g.listCalls++
	g.mu.Unlock()
	return []core.Quote{{ID: string(filter.Category) + "-1", Category: filter.Category}}, nil
}

func (g *prewarmGateway) CountQuotes(ctx context.Context, filter core.QuoteFilter) (int, error) {
	return 42, nil
}

func (g *prewarmGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

func TestPrewarm_PopulatesEveryCategory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(zap.NewNop())
	gw := &prewarmGateway{}
	p := NewPrewarm(gw, st, nil, zap.NewNop(), 10, 24*time.Hour)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, category := range core.Categories() {
		quotes := p.CategoryQuotes(ctx, category)
		if len(quotes) != 1 || quotes[0].Category != category {
			t.Fatalf("category %s: got %+v, want one warmed quote", category, quotes)
		}
	}

	sections := p.Sections(ctx)
	if len(sections) != len(core.Categories()) {
		t.Fatalf("sections = %+v, want one per category", sections)
	}
	for _, s := range sections {
		if s.Count != 42 {
			t.Fatalf("section %s count = %d, want 42", s.Category, s.Count)
		}
	}
}

func TestPrewarm_SkipsWhileFresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore(zap.NewNop())
	gw := &prewarmGateway{}
	p := NewPrewarm(gw, st, nil, zap.NewNop(), 10, 24*time.Hour).
		WithClock(func() time.Time { return now })

	if err := p.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first := gw.calls()

	// Within the validity window nothing refetches.
	now = now.Add(12 * time.Hour)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if gw.calls() != first {
		t.Fatal("pre-warm refetched while the marker was still valid")
	}

	// Past the window a full pass runs again.
	now = now.Add(13 * time.Hour)
	if err := p.Run(ctx); err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if gw.calls() == first {
		t.Fatal("pre-warm did not refetch after the marker expired")
	}
}

func TestPrewarm_SkipsOffline(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(zap.NewNop())
	gw := &prewarmGateway{}
	p := NewPrewarm(gw, st, netcheck.Static(false), zap.NewNop(), 10, 24*time.Hour)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.calls() != 0 {
		t.Fatal("pre-warm must not fetch while offline")
	}
	if _, err := st.Get(ctx, PrewarmMarkerKey); err == nil {
		t.Fatal("offline run must not set the marker")
	}
}

func TestPrewarm_ClearForcesNextRun(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(zap.NewNop())
	gw := &prewarmGateway{}
	p := NewPrewarm(gw, st, nil, zap.NewNop(), 10, 24*time.Hour)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p.Clear(ctx)

	if len(p.CategoryQuotes(ctx, core.CategoryWisdom)) != 0 {
		t.Fatal("Clear should drop warmed categories")
	}
	first := gw.calls()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run after Clear: %v", err)
	}
	if gw.calls() == first {
		t.Fatal("Run after Clear should do a full pass")
	}
}

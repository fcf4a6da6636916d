package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/adapters/store"
	"github.com/quotevault/quotevault/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, st core.KeyValueStore, clock *fakeClock) *QueryCache {
	t.Helper()
	c := NewQueryCache(st, nil, zap.NewNop(), Config{
		StaleTime:       5 * time.Minute,
		GCTime:          10 * time.Minute,
		PersistThrottle: 10 * time.Millisecond,
		Clock:           clock.Now,
	})
	t.Cleanup(c.Stop)
	return c
}

func TestQueryCache_FreshHitSkipsLoader(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("quotes", P("Motivation"))

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v1", nil
	}

	got, err := Fetch(context.Background(), c, key, Options{}, loader)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Fetch = %q, want v1", got)
	}

	clock.Advance(4 * time.Minute)
	got, err = Fetch(context.Background(), c, key, Options{}, loader)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if got != "v1" {
		t.Fatalf("second Fetch = %q, want v1", got)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestQueryCache_StaleServesOldValueAndRefreshes(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("quotes")

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "v1", nil
		}
		return "v2", nil
	}

	if _, err := Fetch(context.Background(), c, key, Options{}, loader); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	updates, cancel := c.Subscribe(key)
	defer cancel()

	// Past the stale horizon but inside the gc window: the old value is
	// served immediately and a background refresh starts.
	clock.Advance(6 * time.Minute)
	got, err := Fetch(context.Background(), c, key, Options{}, loader)
	if err != nil {
		t.Fatalf("stale Fetch: %v", err)
	}
	if got != "v1" {
		t.Fatalf("stale Fetch = %q, want the old value v1", got)
	}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never landed")
	}

	if v, ok := Get[string](c, key); !ok || v != "v2" {
		t.Fatalf("after refresh Get = %q, %v; want v2, true", v, ok)
	}
}

func TestQueryCache_ExpiredEntryIsAMiss(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("quotes")

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	if _, err := Fetch(context.Background(), c, key, Options{}, loader); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Past the gc window the entry is unusable even as a stale value.
	clock.Advance(11 * time.Minute)
	if _, err := Fetch(context.Background(), c, key, Options{}, loader); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("loader called %d times, want 2", n)
	}
}

func TestQueryCache_StaleForeverNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("collection-quotes", P("c1"))
	opts := Options{StaleTime: StaleForever}

	var calls int32
	loader := func(ctx context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"q"}, nil
	}

	if _, err := Fetch(context.Background(), c, key, opts, loader); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	clock.Advance(48 * time.Hour)
	c.collect()
	if _, err := Fetch(context.Background(), c, key, opts, loader); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestQueryCache_ErrorsAreNotCached(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("quotes")

	boom := errors.New("boom")
	var calls int32
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", boom
	}

	if _, err := Fetch(context.Background(), c, key, Options{}, loader); !errors.Is(err, boom) {
		t.Fatalf("Fetch error = %v, want boom", err)
	}
	// A non-gateway failure is permanent: no retries.
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
	if _, ok := c.Raw(key); ok {
		t.Fatal("failed fetch should not leave a cached value")
	}
}

func TestQueryCache_SeedServesWithoutBlockingRefresh(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("favorites")

	if err := c.SeedQueryData(key, "snapshot", Options{}); err != nil {
		t.Fatalf("SeedQueryData: %v", err)
	}

	updates, cancel := c.Subscribe(key)
	defer cancel()

	loader := func(ctx context.Context) (string, error) { return "live", nil }
	got, err := Fetch(context.Background(), c, key, Options{}, loader)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "snapshot" {
		t.Fatalf("Fetch = %q, want the seeded snapshot", got)
	}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("seeded entry was never refreshed")
	}
	if v, _ := Get[string](c, key); v != "live" {
		t.Fatalf("after refresh Get = %q, want live", v)
	}
}

func TestQueryCache_SeedNeverClobbersLiveData(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("favorites")

	if err := c.SetQueryData(key, "live"); err != nil {
		t.Fatalf("SetQueryData: %v", err)
	}
	if err := c.SeedQueryData(key, "snapshot", Options{}); err != nil {
		t.Fatalf("SeedQueryData: %v", err)
	}
	if v, _ := Get[string](c, key); v != "live" {
		t.Fatalf("Get = %q, want live", v)
	}
}

func TestQueryCache_SeededForeverEntryOutlivesGC(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("collection-quotes", P("col-1"))

	if err := c.SeedQueryData(key, "snapshot", Options{StaleTime: StaleForever}); err != nil {
		t.Fatalf("SeedQueryData: %v", err)
	}
	clock.Advance(time.Hour)
	c.collect()

	if _, ok := c.Raw(key); !ok {
		t.Fatal("seeded never-stale entry was garbage collected")
	}

	loader := func(ctx context.Context) (string, error) {
		return "", errors.New("backend down")
	}
	got, err := Fetch(context.Background(), c, key, Options{StaleTime: StaleForever}, loader)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "snapshot" {
		t.Fatalf("Fetch = %q, want the seeded snapshot", got)
	}
}

func TestQueryCache_SetKeepsForeverHorizon(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("collection-quotes", P("col-1"))

	loader := func(ctx context.Context) (string, error) { return "v1", nil }
	if _, err := Fetch(context.Background(), c, key, Options{StaleTime: StaleForever}, loader); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := c.SetQueryData(key, "v2"); err != nil {
		t.Fatalf("SetQueryData: %v", err)
	}

	clock.Advance(time.Hour)
	c.collect()

	if v, ok := Get[string](c, key); !ok || v != "v2" {
		t.Fatalf("Get = %q, %v, want v2 to survive collection", v, ok)
	}
}

func TestQueryCache_InvalidateTriggersRefetch(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("favorites", P("u1"))

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "v1", nil
		}
		return "v2", nil
	}

	if _, err := Fetch(context.Background(), c, key, Options{}, loader); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	updates, cancel := c.Subscribe(key)
	defer cancel()

	// Bare name invalidation matches every key with that name.
	c.Invalidate(NewKey("favorites"))

	got, err := Fetch(context.Background(), c, key, Options{}, loader)
	if err != nil {
		t.Fatalf("Fetch after invalidate: %v", err)
	}
	if got != "v1" {
		t.Fatalf("invalidated Fetch = %q, want v1 served while refreshing", got)
	}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("invalidated entry was never refetched")
	}
	if v, _ := Get[string](c, key); v != "v2" {
		t.Fatalf("after refetch Get = %q, want v2", v)
	}
}

func TestQueryCache_ResetQueriesDropsMatching(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)

	c.SetQueryData(NewKey("quotes", P("a")), 1)
	c.SetQueryData(NewKey("quotes", P("b")), 2)
	c.SetQueryData(NewKey("favorites"), 3)

	c.ResetQueries(NewKey("quotes"))

	if _, ok := c.Raw(NewKey("quotes", P("a"))); ok {
		t.Fatal("quotes/a should be gone")
	}
	if _, ok := c.Raw(NewKey("quotes", P("b"))); ok {
		t.Fatal("quotes/b should be gone")
	}
	if _, ok := c.Raw(NewKey("favorites")); !ok {
		t.Fatal("favorites should survive")
	}
}

func TestQueryCache_PersistAndRestore(t *testing.T) {
	clock := newFakeClock()
	st := store.NewMemoryStore(zap.NewNop())
	c := newTestCache(t, st, clock)
	key := NewKey("quotes", P("Wisdom"))

	if err := c.SetQueryData(key, "persisted"); err != nil {
		t.Fatalf("SetQueryData: %v", err)
	}

	// Wait for the throttled persister to land the snapshot.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := st.Get(context.Background(), persistKey); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("snapshot never persisted")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Stop()

	restored := newTestCache(t, st, clock)
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if v, ok := Get[string](restored, key); !ok || v != "persisted" {
		t.Fatalf("restored Get = %q, %v; want persisted, true", v, ok)
	}

	// A restored entry serves immediately but refreshes on first fetch.
	updates, cancel := restored.Subscribe(key)
	defer cancel()
	loader := func(ctx context.Context) (string, error) { return "fresh", nil }
	got, err := Fetch(context.Background(), restored, key, Options{}, loader)
	if err != nil {
		t.Fatalf("Fetch after restore: %v", err)
	}
	if got != "persisted" {
		t.Fatalf("Fetch after restore = %q, want persisted", got)
	}
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("restored entry was never refreshed")
	}
}

func TestQueryCache_RestoreSkipsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	st := store.NewMemoryStore(zap.NewNop())
	c := newTestCache(t, st, clock)

	c.SetQueryData(NewKey("old"), "stale")
	c.SetQueryData(NewKey("pinned"), "kept")
	c.mu.Lock()
	c.entries[NewKey("pinned").ID()].staleTime = StaleForever
	c.mu.Unlock()
	c.persist(context.Background())
	c.Stop()

	clock.Advance(11 * time.Minute)
	restored := newTestCache(t, st, clock)
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, ok := restored.Raw(NewKey("old")); ok {
		t.Fatal("entry past the gc window should not restore")
	}
	if _, ok := restored.Raw(NewKey("pinned")); !ok {
		t.Fatal("StaleForever entry should restore regardless of age")
	}
}

func TestQueryCache_HoldFetchesGatesReads(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	key := NewKey("quotes")

	c.HoldFetches()

	done := make(chan string, 1)
	go func() {
		v, _ := Fetch(context.Background(), c, key, Options{}, func(ctx context.Context) (string, error) {
			return "after", nil
		})
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("fetch completed while the gate was up")
	case <-time.After(50 * time.Millisecond):
	}

	c.ReleaseFetches()
	select {
	case v := <-done:
		if v != "after" {
			t.Fatalf("gated fetch = %q, want after", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never resumed after release")
	}
}

func TestQueryCache_HoldFetchesRespectsContext(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, nil, clock)
	c.HoldFetches()
	defer c.ReleaseFetches()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Fetch(ctx, c, NewKey("quotes"), Options{}, func(ctx context.Context) (string, error) {
		return "", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("gated fetch error = %v, want deadline exceeded", err)
	}
}

package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

func TestMemoryStore_GetMissingIsNotFound(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get = %q, want v1", got)
	}

	// Overwrite replaces the value.
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("Get after overwrite = %q, want v2", got)
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	buf := []byte("original")
	s.Set(ctx, "k", buf)
	buf[0] = 'X'

	got, _ := s.Get(ctx, "k")
	if string(got) != "original" {
		t.Fatal("Set should copy the value")
	}

	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatal("Get should return an independent copy")
	}
}

func TestMemoryStore_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	s.Set(ctx, "k", []byte("v"))
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get after Remove = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	s.Set(ctx, "cache_favorites", []byte("a"))
	s.Set(ctx, "cache_collections", []byte("b"))
	s.Set(ctx, "@quotevault_cached_quotes", []byte("c"))

	keys, err := s.Keys(ctx, "cache_")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "cache_collections" || keys[1] != "cache_favorites" {
		t.Fatalf("Keys(cache_) = %v", keys)
	}

	all, err := s.Keys(ctx, "")
	if err != nil {
		t.Fatalf("Keys(\"\"): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Keys(\"\") returned %d keys, want 3", len(all))
	}
}

func TestMemoryStore_RemoveMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zap.NewNop())

	s.Set(ctx, "a", []byte("1"))
	s.Set(ctx, "b", []byte("2"))
	s.Set(ctx, "c", []byte("3"))

	if err := s.RemoveMany(ctx, []string{"a", "b", "missing"}); err != nil {
		t.Fatalf("RemoveMany: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("a should be removed")
	}
	if _, err := s.Get(ctx, "c"); err != nil {
		t.Fatalf("c should remain, got %v", err)
	}
}

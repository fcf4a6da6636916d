package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quotevault/quotevault/internal/cache"
	"github.com/quotevault/quotevault/internal/core"
)

func stubCreateCollection(id string) func(context.Context, string, string, string) (core.Collection, error) {
	return func(ctx context.Context, userID, name, description string) (core.Collection, error) {
		now := time.Now()
		return core.Collection{
			ID:          id,
			UserID:      userID,
			Name:        name,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}
}

func TestCreateCollection_ReplacesPlaceholder(t *testing.T) {
	gw := &fakeGateway{createCollection: stubCreateCollection("col-1")}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")

	created, err := env.svc.CreateCollection(ctx, "Stoics", "morning reading")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if created.ID != "col-1" {
		t.Fatalf("created.ID = %q, want col-1", created.ID)
	}

	cached, ok := cache.Get[[]core.CollectionWithCount](env.queries, collectionsKey())
	if !ok || len(cached) != 1 {
		t.Fatalf("cached list = %+v, want one row", cached)
	}
	if strings.HasPrefix(cached[0].ID, "pending-") {
		t.Fatalf("placeholder id %q survived the commit", cached[0].ID)
	}

	view, ok := env.svc.collections.View()
	if !ok || len(view) != 1 || view[0].ID != "col-1" {
		t.Fatalf("mirror = %+v, want col-1", view)
	}
}

func TestCreateCollection_AbortsOnFailure(t *testing.T) {
	gw := &fakeGateway{
		createCollection: func(ctx context.Context, userID, name, description string) (core.Collection, error) {
			return core.Collection{}, &core.GatewayError{Op: "create collection", Message: "backend down"}
		},
	}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")

	if _, err := env.svc.CreateCollection(ctx, "Stoics", ""); !core.IsGateway(err) {
		t.Fatalf("error = %v, want GatewayError", err)
	}

	if cached, ok := cache.Get[[]core.CollectionWithCount](env.queries, collectionsKey()); ok {
		t.Fatalf("cached list = %+v, want placeholder rolled back", cached)
	}

	collections, err := env.svc.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(collections) != 0 {
		t.Fatalf("collections = %+v, want empty", collections)
	}
}

func TestAddQuoteToCollection_AdjustsCount(t *testing.T) {
	gw := &fakeGateway{
		createCollection: stubCreateCollection("col-1"),
		addQuote:         func(ctx context.Context, collectionID, quoteID string) error { return nil },
		removeQuote:      func(ctx context.Context, collectionID, quoteID string) error { return nil },
	}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")
	env.pool.Add(ctx, []core.Quote{testQuote("q1", time.Minute)})

	if _, err := env.svc.CreateCollection(ctx, "Stoics", ""); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := env.svc.AddQuoteToCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("AddQuoteToCollection: %v", err)
	}

	view, _ := env.svc.collections.View()
	if len(view) != 1 || view[0].QuoteCount != 1 {
		t.Fatalf("mirror = %+v, want count 1", view)
	}

	if err := env.svc.RemoveQuoteFromCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("RemoveQuoteFromCollection: %v", err)
	}
	if err := env.svc.RemoveQuoteFromCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("RemoveQuoteFromCollection: %v", err)
	}

	view, _ = env.svc.collections.View()
	if len(view) != 1 || view[0].QuoteCount != 0 {
		t.Fatalf("mirror = %+v, want count clamped at 0", view)
	}
}

func TestAddQuoteToCollection_DuplicateIsNoOp(t *testing.T) {
	gw := &fakeGateway{
		createCollection: stubCreateCollection("col-1"),
		addQuote: func(ctx context.Context, collectionID, quoteID string) error {
			return &core.DuplicateError{Op: "add collection quote"}
		},
	}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")

	if _, err := env.svc.CreateCollection(ctx, "Stoics", ""); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := env.svc.AddQuoteToCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("duplicate add = %v, want nil", err)
	}

	view, _ := env.svc.collections.View()
	if len(view) != 1 || view[0].QuoteCount != 0 {
		t.Fatalf("mirror = %+v, want count untouched", view)
	}
}

func TestCollectionQuotes_OfflineServesMirror(t *testing.T) {
	gw := &fakeGateway{
		createCollection: stubCreateCollection("col-1"),
		addQuote:         func(ctx context.Context, collectionID, quoteID string) error { return nil },
	}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")
	env.pool.Add(ctx, []core.Quote{testQuote("q1", time.Minute)})

	if _, err := env.svc.CreateCollection(ctx, "Stoics", ""); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := env.svc.AddQuoteToCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("AddQuoteToCollection: %v", err)
	}

	quotes, err := env.svc.CollectionQuotes(ctx, "col-1")
	if err != nil {
		t.Fatalf("CollectionQuotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].ID != "q1" {
		t.Fatalf("quotes = %+v, want mirrored q1", quotes)
	}
}

func TestDeleteCollection_RemovesEverywhere(t *testing.T) {
	gw := &fakeGateway{
		createCollection: stubCreateCollection("col-1"),
		deleteCollection: func(ctx context.Context, collectionID string) error { return nil },
		addQuote:         func(ctx context.Context, collectionID, quoteID string) error { return nil },
	}
	env := newTestEnv(t, gw, false)
	ctx := context.Background()
	signIn(t, env.session, "u1")
	env.pool.Add(ctx, []core.Quote{testQuote("q1", time.Minute)})

	if _, err := env.svc.CreateCollection(ctx, "Stoics", ""); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := env.svc.AddQuoteToCollection(ctx, "col-1", "q1"); err != nil {
		t.Fatalf("AddQuoteToCollection: %v", err)
	}
	if err := env.svc.DeleteCollection(ctx, "col-1"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}

	if view, _ := env.svc.collections.View(); len(view) != 0 {
		t.Fatalf("mirror = %+v, want empty", view)
	}
	if _, err := env.store.Get(ctx, cache.CollectionQuotesKey("col-1")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("collection quotes snapshot error = %v, want ErrNotFound", err)
	}
}

func TestQuoteCollections_SignedOutIsEmpty(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{}, true)

	collections, err := env.svc.QuoteCollections(context.Background(), "q1")
	if err != nil {
		t.Fatalf("QuoteCollections: %v", err)
	}
	if len(collections) != 0 {
		t.Fatalf("collections = %+v, want empty", collections)
	}
}

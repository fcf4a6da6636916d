package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", time.Second, func() string { return "test-token" }, zap.NewNop())
}

func TestListQuotes_FilterAndRangeEncoding(t *testing.T) {
	var gotPath, gotRange, gotOr, gotCategory string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.Header.Get("Range")
		gotOr = r.URL.Query().Get("or")
		gotCategory = r.URL.Query().Get("category")
		w.Write([]byte(`[{"id":"q1","content":"c","author":"a","category":"Wisdom"}]`))
	})

	quotes, err := c.ListQuotes(context.Background(),
		core.QuoteFilter{Category: core.CategoryWisdom, Search: "sea"},
		core.Page{Offset: 40, Count: 20})
	if err != nil {
		t.Fatalf("ListQuotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].ID != "q1" {
		t.Fatalf("quotes = %+v", quotes)
	}

	if gotPath != "/rest/v1/quotes" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotCategory != "eq.Wisdom" {
		t.Fatalf("category param = %q, want eq.Wisdom", gotCategory)
	}
	if gotOr != "(content.ilike.*sea*,author.ilike.*sea*)" {
		t.Fatalf("or param = %q", gotOr)
	}
	if gotRange != "40-59" {
		t.Fatalf("Range = %q, want 40-59", gotRange)
	}
}

func TestListQuotes_AuthHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	})

	if _, err := c.ListQuotes(context.Background(), core.QuoteFilter{}, core.Page{}); err != nil {
		t.Fatalf("ListQuotes: %v", err)
	}
	if gotAPIKey != "test-key" {
		t.Fatalf("apikey = %q", gotAPIKey)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestCountQuotes_ParsesContentRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-24/3573")
	})

	total, err := c.CountQuotes(context.Background(), core.QuoteFilter{})
	if err != nil {
		t.Fatalf("CountQuotes: %v", err)
	}
	if total != 3573 {
		t.Fatalf("total = %d, want 3573", total)
	}
}

func TestAddFavorite_UniqueViolationIsDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	err := c.AddFavorite(context.Background(), "u1", "q1")
	if !core.IsDuplicate(err) {
		t.Fatalf("error = %v, want DuplicateError", err)
	}
}

func TestAddFavorite_ServerErrorIsGatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"backend exploded"}`))
	})

	err := c.AddFavorite(context.Background(), "u1", "q1")
	if !core.IsGateway(err) {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if core.IsDuplicate(err) {
		t.Fatal("plain server error must not read as duplicate")
	}
}

func TestGetQuote_EmptyResultIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	if _, err := c.GetQuote(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestListFavorites_JoinsQuoteRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.u1" {
			t.Errorf("user_id param = %q", got)
		}
		w.Write([]byte(`[
			{"quote_id":"q1","quotes":{"id":"q1","content":"one","author":"A","category":"Love"}},
			{"quote_id":"q2","quotes":{"id":"q2","content":"two","author":"B","category":"Humor"}}
		]`))
	})

	favorites, err := c.ListFavorites(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(favorites) != 2 {
		t.Fatalf("favorites = %+v, want 2", favorites)
	}
	if favorites[0].FavoriteID != "u1-q1" || !favorites[0].IsFavorite {
		t.Fatalf("favorites[0] = %+v", favorites[0])
	}
	if favorites[0].Content != "one" {
		t.Fatalf("joined content = %q", favorites[0].Content)
	}
}

func TestListCollections_CountsFromJoin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"c1","user_id":"u1","name":"First","description":"d","collection_quotes":[{"count":7}]},
			{"id":"c2","user_id":"u1","name":"Second","description":null,"collection_quotes":[]}
		]`))
	})

	collections, err := c.ListCollections(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("collections = %+v", collections)
	}
	if collections[0].QuoteCount != 7 {
		t.Fatalf("c1 count = %d, want 7", collections[0].QuoteCount)
	}
	if collections[1].QuoteCount != 0 {
		t.Fatalf("c2 count = %d, want 0", collections[1].QuoteCount)
	}
	if collections[1].Description != "" {
		t.Fatalf("null description decoded as %q", collections[1].Description)
	}
}

func TestCreateCollection_ReturnsStoredRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.Write([]byte(`[{"id":"c9","user_id":"u1","name":"New","description":"fresh"}]`))
	})

	created, err := c.CreateCollection(context.Background(), "u1", "New", "fresh")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if created.ID != "c9" || created.Name != "New" || created.Description != "fresh" {
		t.Fatalf("created = %+v", created)
	}
}

func TestQuoteCollections_FiltersByOwner(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"collections":{"id":"c1","user_id":"u1","name":"Mine"}},
			{"collections":{"id":"c2","user_id":"other","name":"Theirs"}},
			{"collections":null}
		]`))
	})

	collections, err := c.QuoteCollections(context.Background(), "u1", "q1")
	if err != nil {
		t.Fatalf("QuoteCollections: %v", err)
	}
	if len(collections) != 1 || collections[0].ID != "c1" {
		t.Fatalf("collections = %+v, want only c1", collections)
	}
}

func TestDailyQuote_MissingRotationIsNotFound(t *testing.T) {
	var gotDate string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("date")
		w.Write([]byte(`[]`))
	})

	_, err := c.DailyQuote(context.Background(), "2025-06-01")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if gotDate != "eq.2025-06-01" {
		t.Fatalf("date param = %q", gotDate)
	}
}

func TestDailyQuote_ReturnsJoinedQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":"2025-06-01","quote_id":"q1","quotes":{"id":"q1","content":"today","author":"A","category":"Wisdom"}}]`))
	})

	quote, err := c.DailyQuote(context.Background(), "2025-06-01")
	if err != nil {
		t.Fatalf("DailyQuote: %v", err)
	}
	if quote.ID != "q1" || quote.Content != "today" {
		t.Fatalf("quote = %+v", quote)
	}
}

func TestRangeHeader(t *testing.T) {
	if got := rangeHeader(core.Page{}); got != "" {
		t.Fatalf("zero page = %q, want empty", got)
	}
	if got := rangeHeader(core.Page{Offset: 0, Count: 20}); got != "0-19" {
		t.Fatalf("first page = %q, want 0-19", got)
	}
	if got := rangeHeader(core.Page{Offset: 197, Count: 1}); got != "197-197" {
		t.Fatalf("single row = %q, want 197-197", got)
	}
}

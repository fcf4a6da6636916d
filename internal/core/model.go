package core

import (
	"time"
)

// Category is the fixed set of quote categories served by the backend.
type Category string

const (
	CategoryMotivation Category = "Motivation"
	CategoryLove       Category = "Love"
	CategorySuccess    Category = "Success"
	CategoryWisdom     Category = "Wisdom"
	CategoryHumor      Category = "Humor"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryMotivation,
		CategoryLove,
		CategorySuccess,
		CategoryWisdom,
		CategoryHumor,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryMotivation, CategoryLove, CategorySuccess, CategoryWisdom, CategoryHumor:
		return true
	}
	return false
}

// Quote is a single quote row. Quotes are immutable once created and
// owned by the remote store; local copies are cache mirrors only.
type Quote struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// QuoteWithFavorite is a quote joined with favorite membership for the
// current user.
type QuoteWithFavorite struct {
	Quote
	FavoriteID string `json:"favorite_id"`
	IsFavorite bool   `json:"is_favorite"`
}

// Favorite is the (user, quote) relationship row.
type Favorite struct {
	UserID    string    `json:"user_id"`
	QuoteID   string    `json:"quote_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Collection is a user-owned named group of quotes.
type Collection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectionWithCount carries the derived quote count. The count is
// maintained incrementally by mutations and may drift from server truth
// until the next full refresh.
type CollectionWithCount struct {
	Collection
	QuoteCount int `json:"quote_count"`
}

// CollectionQuote is the collection membership edge, unique per pair.
type CollectionQuote struct {
	CollectionID string    `json:"collection_id"`
	QuoteID      string    `json:"quote_id"`
	AddedAt      time.Time `json:"added_at"`
}

// DailyQuote is the daily rotation row, keyed by ISO date (YYYY-MM-DD).
type DailyQuote struct {
	Date    string `json:"date"`
	QuoteID string `json:"quote_id"`
	Quote   Quote  `json:"quotes"`
}

// Section is a category with its total quote count, used by the
// pre-warm cache to render category browse screens offline.
type Section struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// FavoriteStatus is the answer to "is this quote favorited".
type FavoriteStatus struct {
	IsFavorite bool   `json:"is_favorite"`
	FavoriteID string `json:"favorite_id,omitempty"`
}

// QuoteFilter narrows quote queries. An empty Category means all
// categories; an empty Search means no text filter. Search matches
// case-insensitively against content or author.
type QuoteFilter struct {
	Category Category
	Search   string
}

// Page is an offset+count pagination window.
type Page struct {
	Offset int
	Count  int
}

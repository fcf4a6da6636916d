package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// uniqueViolation is the backend's unique-constraint error code.
const uniqueViolation = "23505"

// Client is the Remote Data Gateway: it translates (table, filter,
// pagination, ordering) descriptions into REST calls against the
// hosted backend's PostgREST-style API. It holds no cache state.
type Client struct {
	baseURL string
	apiKey  string
	token   func() string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a gateway client. token supplies the current session's
// access token for authenticated requests; it may return "".
func New(baseURL, apiKey string, timeout time.Duration, token func() string, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// --- wire rows ---

type favoriteRow struct {
	QuoteID   string     `json:"quote_id"`
	CreatedAt time.Time  `json:"created_at"`
	Quote     core.Quote `json:"quotes"`
}

type collectionRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Counts      []struct {
		Count int `json:"count"`
	} `json:"collection_quotes"`
}

type collectionQuoteRow struct {
	AddedAt time.Time  `json:"added_at"`
	Quote   core.Quote `json:"quotes"`
}

type quoteCollectionRow struct {
	Collection *collectionRow `json:"collections"`
}

type dailyQuoteRow struct {
	Date    string     `json:"date"`
	QuoteID string     `json:"quote_id"`
	Quote   core.Quote `json:"quotes"`
}

func (r collectionRow) toModel() core.Collection {
	c := core.Collection{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Description != nil {
		c.Description = *r.Description
	}
	return c
}

// --- quotes ---

// ListQuotes returns quotes matching filter within the page window,
// newest first.
func (c *Client) ListQuotes(ctx context.Context, filter core.QuoteFilter, page core.Page) ([]core.Quote, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	applyQuoteFilter(q, filter)

	var quotes []core.Quote
	if err := c.get(ctx, "quotes", q, rangeHeader(page), &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// CountQuotes returns the total number of quotes matching filter.
func (c *Client) CountQuotes(ctx context.Context, filter core.QuoteFilter) (int, error) {
	q := url.Values{}
	q.Set("select", "*")
	applyQuoteFilter(q, filter)
	return c.count(ctx, "quotes", q)
}

// GetQuote returns a single quote by id.
func (c *Client) GetQuote(ctx context.Context, quoteID string) (core.Quote, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+quoteID)

	var quotes []core.Quote
	if err := c.get(ctx, "quotes", q, "", &quotes); err != nil {
		return core.Quote{}, err
	}
	if len(quotes) == 0 {
		return core.Quote{}, core.ErrNotFound
	}
	return quotes[0], nil
}

// QuotesByAuthor returns every quote by one author, newest first.
func (c *Client) QuotesByAuthor(ctx context.Context, author string) ([]core.Quote, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("author", "eq."+author)
	q.Set("order", "created_at.desc")

	var quotes []core.Quote
	if err := c.get(ctx, "quotes", q, "", &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// --- favorites ---

// ListFavorites returns the user's favorites joined with quote data,
// newest first.
func (c *Client) ListFavorites(ctx context.Context, userID string) ([]core.QuoteWithFavorite, error) {
	q := url.Values{}
	q.Set("select", "quote_id,created_at,quotes(id,content,author,category,created_at)")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")

	var rows []favoriteRow
	if err := c.get(ctx, "favorites", q, "", &rows); err != nil {
		return nil, err
	}

	favorites := make([]core.QuoteWithFavorite, 0, len(rows))
	for _, row := range rows {
		favorites = append(favorites, core.QuoteWithFavorite{
			Quote:      row.Quote,
			FavoriteID: favoriteID(userID, row.QuoteID),
			IsFavorite: true,
		})
	}
	return favorites, nil
}

// CountFavorites returns the user's favorite count.
func (c *Client) CountFavorites(ctx context.Context, userID string) (int, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	return c.count(ctx, "favorites", q)
}

// GetFavorite returns one favorite edge, or ErrNotFound.
func (c *Client) GetFavorite(ctx context.Context, userID, quoteID string) (core.Favorite, error) {
	q := url.Values{}
	q.Set("select", "user_id,quote_id,created_at")
	q.Set("user_id", "eq."+userID)
	q.Set("quote_id", "eq."+quoteID)

	var rows []core.Favorite
	if err := c.get(ctx, "favorites", q, "", &rows); err != nil {
		return core.Favorite{}, err
	}
	if len(rows) == 0 {
		return core.Favorite{}, core.ErrNotFound
	}
	return rows[0], nil
}

// AddFavorite creates a favorite edge.
func (c *Client) AddFavorite(ctx context.Context, userID, quoteID string) error {
	body := map[string]string{"user_id": userID, "quote_id": quoteID}
	return c.insert(ctx, "favorites", body, nil)
}

// RemoveFavorite removes a favorite edge.
func (c *Client) RemoveFavorite(ctx context.Context, userID, quoteID string) error {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("quote_id", "eq."+quoteID)
	return c.delete(ctx, "favorites", q)
}

// --- collections ---

// ListCollections returns the user's collections with quote counts,
// most recently updated first.
func (c *Client) ListCollections(ctx context.Context, userID string) ([]core.CollectionWithCount, error) {
	q := url.Values{}
	q.Set("select", "id,user_id,name,description,created_at,updated_at,collection_quotes(count)")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "updated_at.desc")

	var rows []collectionRow
	if err := c.get(ctx, "collections", q, "", &rows); err != nil {
		return nil, err
	}

	collections := make([]core.CollectionWithCount, 0, len(rows))
	for _, row := range rows {
		count := 0
		if len(row.Counts) > 0 {
			count = row.Counts[0].Count
		}
		collections = append(collections, core.CollectionWithCount{
			Collection: row.toModel(),
			QuoteCount: count,
		})
	}
	return collections, nil
}

// CreateCollection creates a collection and returns the stored row.
func (c *Client) CreateCollection(ctx context.Context, userID, name, description string) (core.Collection, error) {
	body := map[string]any{"user_id": userID, "name": name}
	if description != "" {
		body["description"] = description
	}

	var rows []collectionRow
	if err := c.insert(ctx, "collections", body, &rows); err != nil {
		return core.Collection{}, err
	}
	if len(rows) == 0 {
		return core.Collection{}, &core.GatewayError{Op: "create collection", Message: "empty insert response"}
	}
	return rows[0].toModel(), nil
}

// UpdateCollection updates name and/or description of a collection.
func (c *Client) UpdateCollection(ctx context.Context, collectionID string, name, description *string) (core.Collection, error) {
	body := map[string]any{"updated_at": time.Now().UTC().Format(time.RFC3339)}
	if name != nil {
		body["name"] = *name
	}
	if description != nil {
		body["description"] = *description
	}

	q := url.Values{}
	q.Set("id", "eq."+collectionID)

	var rows []collectionRow
	if err := c.patch(ctx, "collections", q, body, &rows); err != nil {
		return core.Collection{}, err
	}
	if len(rows) == 0 {
		return core.Collection{}, core.ErrNotFound
	}
	return rows[0].toModel(), nil
}

// DeleteCollection removes a collection; membership edges cascade on
// the backend.
func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	q := url.Values{}
	q.Set("id", "eq."+collectionID)
	return c.delete(ctx, "collections", q)
}

// ListCollectionQuotes returns the quotes in a collection, most
// recently added first.
func (c *Client) ListCollectionQuotes(ctx context.Context, collectionID string) ([]core.Quote, error) {
	q := url.Values{}
	q.Set("select", "added_at,quotes(id,content,author,category,created_at)")
	q.Set("collection_id", "eq."+collectionID)
	q.Set("order", "added_at.desc")

	var rows []collectionQuoteRow
	if err := c.get(ctx, "collection_quotes", q, "", &rows); err != nil {
		return nil, err
	}

	quotes := make([]core.Quote, 0, len(rows))
	for _, row := range rows {
		if row.Quote.ID == "" {
			continue
		}
		quotes = append(quotes, row.Quote)
	}
	return quotes, nil
}

// AddQuoteToCollection creates a membership edge.
func (c *Client) AddQuoteToCollection(ctx context.Context, collectionID, quoteID string) error {
	body := map[string]string{"collection_id": collectionID, "quote_id": quoteID}
	return c.insert(ctx, "collection_quotes", body, nil)
}

// RemoveQuoteFromCollection removes a membership edge.
func (c *Client) RemoveQuoteFromCollection(ctx context.Context, collectionID, quoteID string) error {
	q := url.Values{}
	q.Set("collection_id", "eq."+collectionID)
	q.Set("quote_id", "eq."+quoteID)
	return c.delete(ctx, "collection_quotes", q)
}

// QuoteCollections returns the user's collections containing a quote.
// Membership rows for other users' collections are filtered out
// client-side, matching the backend's row-level access shape.
func (c *Client) QuoteCollections(ctx context.Context, userID, quoteID string) ([]core.Collection, error) {
	q := url.Values{}
	q.Set("select", "collections(id,user_id,name,description,created_at,updated_at)")
	q.Set("quote_id", "eq."+quoteID)

	var rows []quoteCollectionRow
	if err := c.get(ctx, "collection_quotes", q, "", &rows); err != nil {
		return nil, err
	}

	collections := make([]core.Collection, 0, len(rows))
	for _, row := range rows {
		if row.Collection == nil || row.Collection.UserID != userID {
			continue
		}
		collections = append(collections, row.Collection.toModel())
	}
	return collections, nil
}

// --- daily quote ---

// DailyQuote returns the rotation quote for an ISO date (YYYY-MM-DD).
func (c *Client) DailyQuote(ctx context.Context, date string) (core.Quote, error) {
	q := url.Values{}
	q.Set("select", "date,quote_id,quotes(id,content,author,category,created_at)")
	q.Set("date", "eq."+date)

	var rows []dailyQuoteRow
	if err := c.get(ctx, "daily_quotes", q, "", &rows); err != nil {
		return core.Quote{}, err
	}
	if len(rows) == 0 || rows[0].Quote.ID == "" {
		return core.Quote{}, core.ErrNotFound
	}
	return rows[0].Quote, nil
}

// --- request plumbing ---

// applyQuoteFilter encodes the category and search filters. Search is
// a case-insensitive substring match over content OR author.
func applyQuoteFilter(q url.Values, filter core.QuoteFilter) {
	if filter.Category != "" {
		q.Set("category", "eq."+string(filter.Category))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q.Set("or", fmt.Sprintf("(content.ilike.*%s*,author.ilike.*%s*)", s, s))
	}
}

// rangeHeader renders the offset+count window as an HTTP Range header
// value; empty when the whole result is wanted.
func rangeHeader(page core.Page) string {
	if page.Count <= 0 {
		return ""
	}
	return fmt.Sprintf("%d-%d", page.Offset, page.Offset+page.Count-1)
}

func favoriteID(userID, quoteID string) string {
	return userID + "-" + quoteID
}

func (c *Client) get(ctx context.Context, table string, q url.Values, rangeHdr string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, table, q, nil, func(h http.Header) {
		if rangeHdr != "" {
			h.Set("Range", rangeHdr)
			h.Set("Range-Unit", "items")
		}
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.GatewayError{Op: "decode " + table, Err: err}
	}
	return nil
}

// count issues a HEAD request with exact-count preference and parses
// the total out of Content-Range ("0-24/3573").
func (c *Client) count(ctx context.Context, table string, q url.Values) (int, error) {
	resp, err := c.do(ctx, http.MethodHead, table, q, nil, func(h http.Header) {
		h.Set("Prefer", "count=exact")
	})
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	cr := resp.Header.Get("Content-Range")
	idx := strings.LastIndexByte(cr, '/')
	if idx < 0 {
		return 0, &core.GatewayError{Op: "count " + table, Message: "missing Content-Range"}
	}
	total, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return 0, &core.GatewayError{Op: "count " + table, Message: "bad Content-Range " + cr}
	}
	return total, nil
}

func (c *Client) insert(ctx context.Context, table string, body any, out any) error {
	resp, err := c.do(ctx, http.MethodPost, table, nil, body, func(h http.Header) {
		if out != nil {
			h.Set("Prefer", "return=representation")
		}
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.GatewayError{Op: "decode " + table, Err: err}
	}
	return nil
}

func (c *Client) patch(ctx context.Context, table string, q url.Values, body any, out any) error {
	resp, err := c.do(ctx, http.MethodPatch, table, q, body, func(h http.Header) {
		h.Set("Prefer", "return=representation")
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.GatewayError{Op: "decode " + table, Err: err}
	}
	return nil
}

func (c *Client) delete(ctx context.Context, table string, q url.Values) error {
	resp, err := c.do(ctx, http.MethodDelete, table, q, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, table string, q url.Values, body any, decorate func(http.Header)) (*http.Response, error) {
	u := c.baseURL + "/rest/v1/" + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &core.GatewayError{Op: method + " " + table, Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &core.GatewayError{Op: method + " " + table, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
	if decorate != nil {
		decorate(req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.GatewayError{Op: method + " " + table, Err: err}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.statusError(method, table, resp)
	}
	return resp, nil
}

type backendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusError maps an HTTP error response to the error taxonomy. A
// unique violation becomes DuplicateError so callers can treat it as a
// benign no-op.
func (c *Client) statusError(method, table string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var be backendError
	_ = json.Unmarshal(raw, &be)

	if be.Code == uniqueViolation || resp.StatusCode == http.StatusConflict {
		return &core.DuplicateError{Op: method + " " + table}
	}

	msg := be.Message
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	c.logger.Debug("Gateway request failed",
		zap.String("method", method),
		zap.String("table", table),
		zap.Int("status", resp.StatusCode),
		zap.String("message", msg))
	return &core.GatewayError{Op: method + " " + table, Message: msg}
}

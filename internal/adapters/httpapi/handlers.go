package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quotevault/quotevault/internal/core"
)

func writeError(c *gin.Context, err error) {
	switch {
	case core.IsNotAuthenticated(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case core.IsDuplicate(err):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case core.IsGateway(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func quoteFilter(c *gin.Context) (core.QuoteFilter, bool) {
	filter := core.QuoteFilter{Search: c.Query("search")}
	if raw := c.Query("category"); raw != "" {
		category := core.Category(raw)
		if !category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return filter, false
		}
		filter.Category = category
	}
	return filter, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) listQuotes(c *gin.Context) {
	filter, ok := quoteFilter(c)
	if !ok {
		return
	}

	// A page or seed parameter selects the paginated listing.
	if c.Query("page") != "" || c.Query("seed") != "" {
		page := intQuery(c, "page", 0)
		var seed *float64
		if raw := c.Query("seed"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seed"})
				return
			}
			seed = &v
		}
		quotes, err := s.svc.InfiniteQuotes(c.Request.Context(), filter, page, seed)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"quotes": quotes, "page": page})
		return
	}

	quotes, err := s.svc.ListQuotes(c.Request.Context(), filter, intQuery(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (s *Server) dailyQuote(c *gin.Context) {
	quote, err := s.svc.DailyQuote(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) randomQuotes(c *gin.Context) {
	quotes, err := s.svc.RandomQuotes(c.Request.Context(), intQuery(c, "count", 1))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (s *Server) sections(c *gin.Context) {
	sections, err := s.svc.Sections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (s *Server) refreshQuotes(c *gin.Context) {
	s.svc.RefreshQuotes()
	c.Status(http.StatusAccepted)
}

func (s *Server) getQuote(c *gin.Context) {
	quote, err := s.svc.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) quoteCollections(c *gin.Context) {
	collections, err := s.svc.QuoteCollections(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (s *Server) quotesByAuthor(c *gin.Context) {
	quotes, err := s.svc.QuotesByAuthor(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (s *Server) listFavorites(c *gin.Context) {
	favorites, err := s.svc.Favorites(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favorites})
}

func (s *Server) favoritesCount(c *gin.Context) {
	count, err := s.svc.FavoritesCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) favoriteStatus(c *gin.Context) {
	status, err := s.svc.IsFavorite(c.Request.Context(), c.Param("quoteID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) addFavorite(c *gin.Context) {
	if err := s.svc.AddFavorite(c.Request.Context(), c.Param("quoteID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeFavorite(c *gin.Context) {
	if err := s.svc.RemoveFavorite(c.Request.Context(), c.Param("quoteID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleFavorite(c *gin.Context) {
	favorited, err := s.svc.ToggleFavorite(c.Request.Context(), c.Param("quoteID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_favorite": favorited})
}

func (s *Server) listCollections(c *gin.Context) {
	collections, err := s.svc.Collections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

type collectionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) createCollection(c *gin.Context) {
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.Name == nil || *req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	collection, err := s.svc.CreateCollection(c.Request.Context(), *req.Name, description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collection)
}

func (s *Server) updateCollection(c *gin.Context) {
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.Name == nil && req.Description == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	collection, err := s.svc.UpdateCollection(c.Request.Context(), c.Param("id"), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (s *Server) deleteCollection(c *gin.Context) {
	if err := s.svc.DeleteCollection(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) collectionQuotes(c *gin.Context) {
	quotes, err := s.svc.CollectionQuotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (s *Server) addQuoteToCollection(c *gin.Context) {
	if err := s.svc.AddQuoteToCollection(c.Request.Context(), c.Param("id"), c.Param("quoteID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeQuoteFromCollection(c *gin.Context) {
	if err := s.svc.RemoveQuoteFromCollection(c.Request.Context(), c.Param("id"), c.Param("quoteID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type signInRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *Server) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access_token is required"})
		return
	}
	userID, err := s.session.SignIn(req.AccessToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

func (s *Server) signOut(c *gin.Context) {
	s.session.SignOut()
	c.Status(http.StatusNoContent)
}

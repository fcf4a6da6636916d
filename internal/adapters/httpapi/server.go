package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/service"
)

// Server exposes the quote service over HTTP. It is a thin translation
// layer: endpoints map onto service operations, responses are the core
// model types encoded as JSON.
type Server struct {
	svc     *service.Service
	session *auth.Session
	logger  *zap.Logger
	http    *http.Server
}

// Config holds the HTTP listener settings.
type Config struct {
	ListenAddress string
	RateLimit     float64
	RateBurst     int
}

// NewServer builds the server and its route table.
func NewServer(svc *service.Service, session *auth.Session, logger *zap.Logger, cfg Config) *Server {
	s := &Server{
		svc:     svc,
		session: session,
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	if cfg.RateLimit > 0 {
		r.Use(rateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/quotes", s.listQuotes)
		v1.GET("/quotes/daily", s.dailyQuote)
		v1.GET("/quotes/random", s.randomQuotes)
		v1.GET("/quotes/sections", s.sections)
		v1.POST("/quotes/refresh", s.refreshQuotes)
		v1.GET("/quotes/:id", s.getQuote)
		v1.GET("/quotes/:id/collections", s.quoteCollections)
		v1.GET("/authors/:name/quotes", s.quotesByAuthor)

		v1.GET("/favorites", s.listFavorites)
		v1.GET("/favorites/count", s.favoritesCount)
		v1.GET("/favorites/:quoteID", s.favoriteStatus)
		v1.PUT("/favorites/:quoteID", s.addFavorite)
		v1.DELETE("/favorites/:quoteID", s.removeFavorite)
		v1.POST("/favorites/:quoteID/toggle", s.toggleFavorite)

		v1.GET("/collections", s.listCollections)
		v1.POST("/collections", s.createCollection)
		v1.PATCH("/collections/:id", s.updateCollection)
		v1.DELETE("/collections/:id", s.deleteCollection)
		v1.GET("/collections/:id/quotes", s.collectionQuotes)
		v1.PUT("/collections/:id/quotes/:quoteID", s.addQuoteToCollection)
		v1.DELETE("/collections/:id/quotes/:quoteID", s.removeQuoteFromCollection)

		v1.POST("/session", s.signIn)
		v1.DELETE("/session", s.signOut)
	}

	s.http = &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: r,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.http.Addr))
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

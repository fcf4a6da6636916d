package factory

import (
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/adapters/httpapi"
	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/config"
	"github.com/quotevault/quotevault/internal/ports"
	"github.com/quotevault/quotevault/internal/service"
)

// ServerFactory creates the HTTP front end based on configuration
type ServerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServerFactory creates a new server factory
func NewServerFactory(cfg *config.Config, logger *zap.Logger) *ServerFactory {
	return &ServerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAPIServer creates the HTTP server
func (f *ServerFactory) CreateAPIServer(svc *service.Service, session *auth.Session) (ports.APIServer, error) {
	serverCfg := f.cfg.GetServer()
	return httpapi.NewServer(svc, session, f.logger, httpapi.Config{
		ListenAddress: serverCfg.ListenAddress,
		RateLimit:     serverCfg.RateLimit,
		RateBurst:     serverCfg.RateBurst,
	}), nil
}

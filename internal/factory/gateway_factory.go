package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/adapters/gateway"
	"github.com/quotevault/quotevault/internal/adapters/netcheck"
	"github.com/quotevault/quotevault/internal/auth"
	"github.com/quotevault/quotevault/internal/config"
	"github.com/quotevault/quotevault/internal/core"
)

// GatewayFactory creates the remote backend client and its connectivity probe
type GatewayFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGatewayFactory creates a new gateway factory
func NewGatewayFactory(cfg *config.Config, logger *zap.Logger) *GatewayFactory {
	return &GatewayFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates the backend client. The session supplies the
// bearer token for authenticated requests.
func (f *GatewayFactory) CreateGateway(session *auth.Session) (core.Gateway, error) {
	gwCfg := f.cfg.GetGateway()
	if gwCfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway.base_url is required")
	}
	timeout, err := f.cfg.GetDuration("gateway.timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid gateway timeout: %w", err)
	}

	return gateway.New(gwCfg.BaseURL, gwCfg.APIKey, timeout, session.Token, f.logger), nil
}

// CreateConnectivity creates the connectivity probe. The probe URL
// defaults to the gateway base URL.
func (f *GatewayFactory) CreateConnectivity() (core.Connectivity, error) {
	probeURL := f.cfg.GetString("netcheck.probe_url")
	if probeURL == "" {
		probeURL = f.cfg.GetString("gateway.base_url")
	}
	timeout, err := f.cfg.GetDuration("netcheck.timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid netcheck timeout: %w", err)
	}
	ttl, err := f.cfg.GetDuration("netcheck.cache_ttl")
	if err != nil {
		return nil, fmt.Errorf("invalid netcheck cache ttl: %w", err)
	}

	return netcheck.New(probeURL, timeout, ttl, f.logger), nil
}

package netcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker probes backend reachability with a cheap HEAD request. The
// result is cached briefly so hot read paths don't pay a probe per
// call.
type Checker struct {
	probeURL string
	client   *http.Client
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	online  bool
	checked time.Time
}

// New creates a checker probing probeURL.
func New(probeURL string, timeout, ttl time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Checker{
		probeURL: probeURL,
		client:   &http.Client{Timeout: timeout},
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Online reports whether the backend answered a probe within the cache
// window. Any HTTP response counts as reachable; only transport
// failures mean offline.
func (c *Checker) Online(ctx context.Context) bool {
	c.mu.Lock()
	if c.now().Sub(c.checked) < c.ttl {
		online := c.online
		c.mu.Unlock()
		return online
	}
	c.mu.Unlock()

	online := c.probe(ctx)

	c.mu.Lock()
	c.online = online
	c.checked = c.now()
	c.mu.Unlock()
	return online
}

func (c *Checker) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Connectivity probe failed", zap.Error(err))
		return false
	}
	resp.Body.Close()
	return true
}

// Static is a fixed connectivity answer, for tests and forced-offline
// runs.
type Static bool

// Online implements the Connectivity port.
func (s Static) Online(context.Context) bool { return bool(s) }

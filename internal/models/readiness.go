package models

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heimdex/heimdex-analyzer/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// Readiness is the sidecar's report of which models it has loaded.
type Readiness struct {
	Capabilities []string          `json:"capabilities"`
	Models       map[string]string `json:"models,omitempty"`
	ProbedAt     time.Time         `json:"probed_at"`
}

// Has reports whether the sidecar serves the named capability.
func (r *Readiness) Has(name string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Prober fetches a fresh readiness report.
type Prober interface {
	Readiness(ctx context.Context) (*Readiness, error)
}

// Readiness asks the sidecar which capabilities it serves.
func (c *Client) Readiness(ctx context.Context) (*Readiness, error) {
	var out Readiness
	if err := c.do(ctx, http.MethodGet, "/v1/capabilities", "", nil, &out); err != nil {
		return nil, err
	}
	out.ProbedAt = time.Now()
	return &out, nil
}

// WaitReady polls the sidecar with exponential backoff until it answers or
// maxWait elapses. Client errors (4xx) stop the wait immediately.
func WaitReady(ctx context.Context, p Prober, maxWait time.Duration, logger *slog.Logger) (*Readiness, error) {
	logger = logging.OrDiscard(logger)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = maxWait

	var ready *Readiness
	op := func() error {
		r, err := p.Readiness(ctx)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !httpErr.IsRetryable() {
				return backoff.Permanent(err)
			}
			logger.Debug("model sidecar not ready", "error", err)
			return err
		}
		ready = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return ready, nil
}

// ReadinessCache wraps a Prober to cache readiness reports with a TTL, so
// status requests do not hit the sidecar every time.
type ReadinessCache struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Readiness
}

// NewReadinessCache creates a caching wrapper around readiness probes.
func NewReadinessCache(prober Prober, logger *slog.Logger) *ReadinessCache {
	return &ReadinessCache{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logging.OrDiscard(logger),
	}
}

// Seed stores an already fetched report.
func (d *ReadinessCache) Seed(r *Readiness) {
	d.mu.Lock()
	d.cached = r
	d.mu.Unlock()
}

// Get returns the cached report if fresh, otherwise re-probes.
func (d *ReadinessCache) Get(ctx context.Context) (*Readiness, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		r := d.cached
		d.mu.RUnlock()
		return r, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the cached report without probing.
func (d *ReadinessCache) Peek() *Readiness {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *ReadinessCache) Refresh(ctx context.Context) (*Readiness, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.prober.Readiness(ctx)
	if err != nil {
		d.logger.Warn("model sidecar readiness probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale readiness cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = r
	return r, nil
}

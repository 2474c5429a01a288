// Package config implements the Config Loader external collaborator
// (spec.md §4.H): a periodic remote fetch of (tenant, serial) pairs that
// feeds the Device Registry, with a read-through cache throttling
// on-demand refreshes from the intake path.
package config

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jonaohana/vessale/internal/registry"
	"go.uber.org/zap"
)

// DefaultPollInterval is the periodic remote refresh cadence (spec.md §4.H).
const DefaultPollInterval = 5 * time.Minute

// DefaultCacheTTL throttles on-demand refreshes triggered from the intake
// path's administrative-reload button.
const DefaultCacheTTL = 30 * time.Second

// entryWire is the wire shape of one (tenant, serial) pair from the remote
// source.
type entryWire struct {
	Tenant string `json:"tenant"`
	Serial string `json:"serial"`
}

// Loader periodically pulls the tenant/serial mapping from url and applies
// it to reg via ReplaceAll. No pack library performs generic "periodic JSON
// GET"; net/http is used directly (see DESIGN.md for the standard-library
// justification).
type Loader struct {
	url          string
	client       *http.Client
	registry     *registry.Registry
	logger       *zap.Logger
	pollInterval time.Duration
	cacheTTL     time.Duration

	// fallback is used at startup before the first successful fetch, and
	// on every subsequent fetch error (spec.md §4.H).
	fallback []registry.Entry

	mu          sync.Mutex
	lastRefresh time.Time
}

// New constructs a Loader. fallback seeds the registry before the first
// successful remote fetch and is reapplied whenever a fetch fails.
func New(url string, reg *registry.Registry, logger *zap.Logger, fallback []registry.Entry) *Loader {
	l := &Loader{
		url:          url,
		client:       &http.Client{Timeout: 10 * time.Second},
		registry:     reg,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		cacheTTL:     DefaultCacheTTL,
		fallback:     fallback,
	}
	reg.ReplaceAll(fallback)
	return l
}

// Run blocks, refreshing the registry every pollInterval until ctx is
// cancelled. Intended to run in its own goroutine for the process lifetime.
func (l *Loader) Run(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.refresh(ctx)
		}
	}
}

// RequestRefresh triggers an on-demand refresh, throttled by cacheTTL: a
// call within cacheTTL of the last refresh is a no-op, so a burst of intake
// requests cannot each trigger a remote fetch.
func (l *Loader) RequestRefresh(ctx context.Context) {
	l.mu.Lock()
	stale := time.Since(l.lastRefresh) >= l.cacheTTL
	l.mu.Unlock()

	if !stale {
		return
	}
	l.refresh(ctx)
}

func (l *Loader) refresh(ctx context.Context) {
	entries, err := l.fetch(ctx)

	l.mu.Lock()
	l.lastRefresh = time.Now()
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("config fetch failed, retaining last known mapping", zap.Error(errors.Wrap(err, "config loader fetch")))
		l.registry.ReplaceAll(l.fallback)
		return
	}

	l.fallback = entries
	l.registry.ReplaceAll(entries)
}

func (l *Loader) fetch(ctx context.Context) ([]registry.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("config source returned status %d", resp.StatusCode)
	}

	var wire []entryWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	entries := make([]registry.Entry, len(wire))
	for i, w := range wire {
		entries[i] = registry.Entry{Tenant: w.Tenant, Serial: w.Serial}
	}
	return entries, nil
}

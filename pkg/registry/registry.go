// Package registry owns the merged transform catalog. It loads the
// declarations of every source, merges them and swaps in a new immutable
// snapshot, so readers never see a half-built catalog.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/observability"
)

// ErrNotReady is returned by lookups before the first successful load.
var ErrNotReady = errors.New("transform catalog not loaded")

// Snapshot is one merged catalog. It is never modified after creation.
type Snapshot struct {
	Config      catalog.TransformConfig
	Origins     []catalog.Origin
	Diagnostics catalog.Diagnostics
	Index       *catalog.Index
	Loaded      time.Time
}

// Registry merges declarations from its sources.
type Registry struct {
	sources []Source
	logger  *slog.Logger

	// mu serializes reloads; readers use current without locking.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// New creates a Registry. Nothing is loaded until Reload.
func New(logger *slog.Logger, sources ...Source) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{sources: sources, logger: logger}
}

// Reload rebuilds the catalog from all sources. On failure the previous
// snapshot stays in place.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := catalog.NewCombiner(r.logger)
	for _, s := range r.sources {
		decls, err := s.Load(ctx)
		if err != nil {
			observability.CatalogReloadsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("loading transform config: %w", err)
		}
		for _, d := range decls {
			c.AddConfig(d.Config, d.ReadFrom, d.BaseURL)
		}
	}
	res := c.Combine()
	res.Diagnostics.Log(r.logger)

	index := catalog.BuildIndex(res.Config, r.logger)
	index.SetProvenance(res.Origins)
	snap := &Snapshot{
		Config:      res.Config,
		Origins:     res.Origins,
		Diagnostics: res.Diagnostics,
		Index:       index,
		Loaded:      time.Now(),
	}
	r.current.Store(snap)

	observability.CatalogReloadsTotal.WithLabelValues("ok").Inc()
	observability.CatalogTransformers.Set(float64(snap.Index.TransformerCount()))
	for _, d := range res.Diagnostics {
		observability.CatalogDiagnosticsTotal.WithLabelValues(d.Severity.String()).Inc()
	}
	r.logger.Info("transform catalog loaded",
		"transformers", snap.Index.TransformerCount(),
		"pairs", snap.Index.PairCount(),
		"warnings", len(res.Diagnostics.Warnings()),
		"errors", len(res.Diagnostics.Errors()))
	return nil
}

// Run reloads every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("catalog reload failed", "error", err)
			}
		}
	}
}

// Snapshot returns the current catalog, or nil before the first load.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Index returns the current selection index, or nil before the first load.
func (r *Registry) Index() *catalog.Index {
	if snap := r.current.Load(); snap != nil {
		return snap.Index
	}
	return nil
}

// IsReady reports whether a catalog has been loaded.
func (r *Registry) IsReady() bool {
	return r.current.Load() != nil
}

// FindTransformerName selects a transformer from the current catalog.
func (r *Registry) FindTransformerName(source string, size int64, target string, options map[string]string, rendition string) (string, error) {
	snap := r.current.Load()
	if snap == nil {
		return "", ErrNotReady
	}
	return snap.Index.FindTransformerName(source, size, target, options, rendition)
}

// TransformConfig returns the catalog as published for configVersion.
func (r *Registry) TransformConfig(configVersion int) (catalog.TransformConfig, error) {
	snap := r.current.Load()
	if snap == nil {
		return catalog.TransformConfig{}, ErrNotReady
	}
	return catalog.WithCoreVersion(snap.Config, configVersion), nil
}

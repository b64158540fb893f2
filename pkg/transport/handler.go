package transport

import (
	"context"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/probe"
)

// Catalog publishes the merged transform configuration.
type Catalog interface {
	// TransformConfig returns the catalog rendered for the given
	// configVersion. It fails until the first load has succeeded.
	TransformConfig(configVersion int) (catalog.TransformConfig, error)

	// IsReady reports whether a catalog has been loaded.
	IsReady() bool
}

// Dispatcher runs transform requests through the dispatch core.
type Dispatcher interface {
	Handle(ctx context.Context, h dispatch.Hooks) *dispatch.Record

	// Logs returns the recent request log.
	Logs() *dispatch.LogBuffer
}

// Prober answers the readiness and liveness probes. The returned error
// is a *dispatch.TransformError carrying the status to report.
type Prober interface {
	DoTransformOrNothing(ctx context.Context, live bool, d probe.Dispatcher) (string, error)
}

// Compile-time checks for the production implementations.
var (
	_ Dispatcher = (*dispatch.Core)(nil)
	_ Prober     = (*probe.Probe)(nil)
)

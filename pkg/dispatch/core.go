package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
)

// Selector picks the transformer for a request. Both *catalog.Index and
// the registry satisfy it.
type Selector interface {
	FindTransformerName(source string, size int64, target string, options map[string]string, rendition string) (string, error)
}

// Monitor observes every request for the liveness decision.
type Monitor interface {
	IncrementTransformerCount()
	RecordTransformTime(d time.Duration)
}

// Core runs requests against the selector and the loaded implementations.
// It is safe for concurrent use; each Handle call owns its own state.
type Core struct {
	selector Selector
	impls    *Implementations
	monitor  Monitor
	logs     *LogBuffer
	workDir  TempDir
	logger   *slog.Logger

	localBaseURL string
	forwarder    *Forwarder

	seq atomic.Int64
}

// Option configures a Core.
type Option func(*Core)

// WithMonitor reports request counts and transform times to m.
func WithMonitor(m Monitor) Option {
	return func(c *Core) { c.monitor = m }
}

// WithLogBuffer keeps completed records in b.
func WithLogBuffer(b *LogBuffer) Option {
	return func(c *Core) { c.logs = b }
}

// WithWorkDir creates temporary files in dir.
func WithWorkDir(dir string) Option {
	return func(c *Core) { c.workDir = TempDir(dir) }
}

// WithLogger sets the logger for failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// WithLocalBaseURL marks transformers declared at url as the ones this
// process executes. Transformers declared by other engines are forwarded.
func WithLocalBaseURL(url string) Option {
	return func(c *Core) { c.localBaseURL = url }
}

// WithForwarder sends transforms owned by other engines through f.
func WithForwarder(f *Forwarder) Option {
	return func(c *Core) { c.forwarder = f }
}

// New creates a Core.
func New(selector Selector, impls *Implementations, opts ...Option) *Core {
	c := &Core{
		selector: selector,
		impls:    impls,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logs == nil {
		c.logs = NewLogBuffer()
	}
	return c
}

// Logs returns the buffer of recent records.
func (c *Core) Logs() *LogBuffer { return c.logs }

// Handle runs one request through INIT, RESOLVE_TRANSFORM, EXECUTE and
// RESPOND. Failures are delivered to h.OnError, never returned; the
// record describes the outcome either way.
func (c *Core) Handle(ctx context.Context, h Hooks) *Record {
	rec := newRecord(c.logs.next(), h.Shape())
	ctx = withRecord(ctx, rec)
	if c.monitor != nil {
		c.monitor.IncrementTransformerCount()
	}

	x := &exchange{ctx: ctx, core: c, hooks: h, rec: rec}
	if err := c.run(ctx, x); err != nil {
		te := asTransformError(err)
		rec.Err = te
		rec.finish(te.Status, te.Message)
		if te.Status >= 500 {
			c.logger.Error("transform failed", "ref", rec.Reference, "transformer", rec.Transformer,
				"status", te.Status, "error", MessageWithCause("Transform failed", te))
		} else {
			debug.Log("dispatch", "transform rejected", "ref", rec.Reference, "status", te.Status, "error", te.Message)
		}
		h.OnError(ctx, te)
	}

	if c.monitor != nil {
		c.monitor.RecordTransformTime(rec.TransformDuration())
	}
	rec.complete()
	c.logs.Add(rec)
	observability.RecordTransform(rec.Transformer, rec.Shape, rec.StatusCode, rec.Duration(), max(rec.TargetSize, 0))
	debug.Log("dispatch", "request complete", "record", rec.String())
	return rec
}

func (c *Core) run(ctx context.Context, x *exchange) error {
	job, err := x.hooks.Init(ctx, c.seq.Add(1))
	if err != nil {
		return err
	}
	x.job = job
	rec := x.rec
	rec.Reference = job.Reference
	rec.Source = ExtensionForMimetype(job.SourceMimetype)
	rec.SourceSize = job.SourceSize
	rec.Target = ExtensionForTargetMimetype(job.TargetMimetype, job.SourceMimetype)
	options := NormalizeOptions(job.Options)
	rec.Options = FormatOptions(options)
	debug.Log("dispatch", "request", "ref", job.Reference, "shape", x.hooks.Shape(),
		"source", job.SourceMimetype, "target", job.TargetMimetype, "size", job.SourceSize, "options", rec.Options)

	defer x.cleanup()

	in, sourceFile, err := x.hooks.Input(ctx, job)
	if err != nil {
		return err
	}
	x.in, x.callerSource = in, sourceFile

	selector, resolver := c.view()
	name, err := selector.FindTransformerName(job.SourceMimetype, job.SourceSize, job.TargetMimetype, options, "")
	switch {
	case errors.Is(err, catalog.ErrMissingMediaType):
		return BadRequest("%s", err.Error())
	case err != nil:
		return Internal("Transformer selection failed", err)
	case name == "":
		return BadRequest("%s", noTransformsMessage(job.SourceMimetype, job.TargetMimetype, options))
	}
	rec.Transformer = name

	if err := x.openTarget(ctx); err != nil {
		return err
	}
	req := &Request{
		SourceMimetype: job.SourceMimetype,
		TargetMimetype: job.TargetMimetype,
		SourceEncoding: options[OptionSourceEncoding],
		TargetEncoding: options[OptionTargetEncoding],
		Options:        options,
	}
	debug.Log("dispatch", "selected", "ref", job.Reference, "transformer", name)
	if err := c.route(ctx, resolver, name, req, x.in, x, x); err != nil {
		return err
	}
	if !x.fragmentCalled {
		return x.succeed(ctx, nil)
	}
	return nil
}

// Package probe decides whether the engine is ready and alive by running
// a small transform through the dispatch core.
//
// Ready probes transform until the first success. Live probes transform
// only when enabled, and then only during the first few calls and once
// per period afterwards. The first transforms set the normal time; a
// later probe slower than LivenessPercent above it fails. Once the
// engine has served MaxTransforms requests, or any single transform took
// longer than MaxTransformSeconds, every probe reports 429 so that the
// orchestrator replaces the process.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/observability"
)

// AverageOverTransforms is the number of probe transforms, after the
// first, averaged into the normal time.
const AverageOverTransforms = 5

// Config configures the probe transform and the liveness limits.
type Config struct {
	// Source is the content transformed by every probe. SourceName is
	// used as the suffix of its temporary file.
	Source         []byte
	SourceName     string
	SourceMimetype string
	TargetMimetype string
	Options        map[string]string

	// The target must be ExpectedLength bytes, give or take PlusOrMinus.
	ExpectedLength int64
	PlusOrMinus    int64

	LivenessPercent                int
	MaxTransforms                  int64
	MaxTransformSeconds            int64
	LivenessTransformEnabled       bool
	LivenessTransformPeriodSeconds int64

	WorkDir string
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		LivenessPercent:                150,
		MaxTransforms:                  10000,
		MaxTransformSeconds:            900,
		LivenessTransformPeriodSeconds: 600,
	}
}

// Dispatcher runs a probe request. *dispatch.Core satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, h dispatch.Hooks) *dispatch.Record
}

// Probe tracks the probe state. It implements dispatch.Monitor.
type Probe struct {
	cfg              Config
	minExpected      int64
	maxExpected      int64
	maxTransformTime time.Duration
	period           time.Duration
	logger           *slog.Logger
	now              func() time.Time

	// mu serializes probes and guards the fields below.
	mu                sync.Mutex
	probeCount        int64
	transCount        int
	normalTime        int64
	maxTime           int64
	nextTransformTime time.Time

	initialised    atomic.Bool
	readySent      atomic.Bool
	transformCount atomic.Int64
	die            atomic.Bool
}

var _ dispatch.Monitor = (*Probe)(nil)

// New creates a Probe. Non-positive limits fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Probe {
	def := DefaultConfig()
	if cfg.LivenessPercent <= 0 {
		cfg.LivenessPercent = def.LivenessPercent
	}
	if cfg.MaxTransforms <= 0 {
		cfg.MaxTransforms = def.MaxTransforms
	}
	if cfg.MaxTransformSeconds <= 0 {
		cfg.MaxTransformSeconds = def.MaxTransformSeconds
	}
	if cfg.LivenessTransformPeriodSeconds <= 0 {
		cfg.LivenessTransformPeriodSeconds = def.LivenessTransformPeriodSeconds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		cfg:              cfg,
		minExpected:      max(0, cfg.ExpectedLength-cfg.PlusOrMinus),
		maxExpected:      cfg.ExpectedLength + cfg.PlusOrMinus,
		maxTransformTime: time.Duration(cfg.MaxTransformSeconds) * time.Second,
		period:           time.Duration(cfg.LivenessTransformPeriodSeconds) * time.Second,
		logger:           logger,
		now:              time.Now,
		maxTime:          -1,
	}
}

// IncrementTransformerCount counts a request served by the engine.
func (p *Probe) IncrementTransformerCount() {
	observability.ProbeTransformsServed.Set(float64(p.transformCount.Add(1)))
}

// RecordTransformTime marks the engine for replacement when a transform
// ran longer than the configured maximum.
func (p *Probe) RecordTransformTime(d time.Duration) {
	if p.maxTransformTime > 0 && d > p.maxTransformTime {
		if !p.die.Swap(true) {
			p.logger.Warn("transform exceeded the maximum time, requesting replacement",
				"duration", d, "max", p.maxTransformTime)
		}
	}
}

// NormalTime returns the averaged probe transform time.
func (p *Probe) NormalTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.normalTime) * time.Millisecond
}

// DoTransformOrNothing answers a probe, transforming only when needed.
// The returned error is a *dispatch.TransformError carrying the status
// the probe endpoint reports.
func (p *Probe) DoTransformOrNothing(ctx context.Context, live bool, d Dispatcher) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.probeCount++
	if live {
		// An overloaded engine must fail liveness even between probe
		// transforms.
		if err := p.checkMaxTransformTimeAndCount(live); err != nil {
			return "", err
		}
		if !p.cfg.LivenessTransformEnabled {
			return p.doNothing(true), nil
		}
	}
	due := live && p.period > 0 &&
		(p.transCount <= AverageOverTransforms || p.nextTransformTime.Before(p.now()))
	if due || !p.initialised.Load() {
		return p.doTransform(ctx, live, d)
	}
	return p.doNothing(live), nil
}

func (p *Probe) doNothing(live bool) string {
	message := "Success - No transform."
	if !live && !p.readySent.Swap(true) {
		debug.Log("probe", probeMessage(live)+message)
	}
	return message
}

func (p *Probe) doTransform(ctx context.Context, live bool, d Dispatcher) (string, error) {
	if err := p.checkMaxTransformTimeAndCount(live); err != nil {
		return "", err
	}

	start := p.now()
	if !p.nextTransformTime.IsZero() && p.period > 0 {
		for !p.nextTransformTime.After(start) {
			p.nextTransformTime = p.nextTransformTime.Add(p.period)
		}
	}

	source, err := p.writeSource(live)
	if err != nil {
		return "", err
	}
	defer os.Remove(source)
	ext := dispatch.ExtensionForTargetMimetype(p.cfg.TargetMimetype, p.cfg.SourceMimetype)
	target, err := dispatch.TempDir(p.cfg.WorkDir).Create("probe_target_", ext)
	if err != nil {
		return "", &dispatch.TransformError{
			Status:  http.StatusInsufficientStorage,
			Message: p.messagePrefix(live) + "Failed to create the target file",
			Err:     err,
		}
	}
	defer os.Remove(target)

	req := &dispatch.ProbeRequest{
		SourceFile:     source,
		TargetFile:     target,
		SourceMimetype: p.cfg.SourceMimetype,
		TargetMimetype: p.cfg.TargetMimetype,
		Options:        p.cfg.Options,
	}
	d.Handle(ctx, req)
	if _, terr := req.Result(); terr != nil {
		return "", &dispatch.TransformError{
			Status:  terr.Status,
			Message: p.messagePrefix(live) + terr.Message,
			Err:     terr,
		}
	}

	elapsed := p.now().Sub(start).Milliseconds()
	message := fmt.Sprintf("Transform %dms", elapsed)
	if err := p.checkTargetFile(target, live); err != nil {
		return "", err
	}

	p.RecordTransformTime(time.Duration(elapsed) * time.Millisecond)
	p.calculateMaxTime(elapsed, live)

	if p.maxTime >= 0 && elapsed > p.maxTime {
		return "", &dispatch.TransformError{
			Status: http.StatusInternalServerError,
			Message: fmt.Sprintf("%s%s which is more than %d%% slower than the normal value of %dms",
				p.messagePrefix(live), message, p.cfg.LivenessPercent, p.normalTime),
		}
	}

	p.initialised.Store(true)

	if err := p.checkMaxTransformTimeAndCount(live); err != nil {
		return "", err
	}
	return probeMessage(live) + "Success - " + message, nil
}

func (p *Probe) checkMaxTransformTimeAndCount(live bool) error {
	if p.die.Load() {
		return &dispatch.TransformError{
			Status: http.StatusTooManyRequests,
			Message: fmt.Sprintf("%sTransformer requested to die. A transform took longer than %d seconds",
				p.messagePrefix(live), p.cfg.MaxTransformSeconds),
		}
	}
	if p.cfg.MaxTransforms > 0 && p.transformCount.Load() > p.cfg.MaxTransforms {
		return &dispatch.TransformError{
			Status: http.StatusTooManyRequests,
			Message: fmt.Sprintf("%sTransformer requested to die. It has performed more than %d transformations",
				p.messagePrefix(live), p.cfg.MaxTransforms),
		}
	}
	return nil
}

func (p *Probe) writeSource(live bool) (string, error) {
	f, err := os.CreateTemp(p.cfg.WorkDir, "probe_source_*_"+p.cfg.SourceName)
	if err != nil {
		return "", &dispatch.TransformError{
			Status:  http.StatusInsufficientStorage,
			Message: p.messagePrefix(live) + "Failed to store the source file",
			Err:     err,
		}
	}
	_, err = f.Write(p.cfg.Source)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", &dispatch.TransformError{
			Status:  http.StatusInsufficientStorage,
			Message: p.messagePrefix(live) + "Failed to store the source file",
			Err:     err,
		}
	}
	return f.Name(), nil
}

func (p *Probe) checkTargetFile(target string, live bool) error {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return &dispatch.TransformError{
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("%sTarget File %q did not exist", probeMessage(live), target),
			Err:     err,
		}
	}
	length := info.Size()
	if length < p.minExpected || length > p.maxExpected {
		return &dispatch.TransformError{
			Status: http.StatusInternalServerError,
			Message: fmt.Sprintf("%sTarget File %q was the wrong size (%d). Needed to be between %d and %d",
				probeMessage(live), target, length, p.minExpected, p.maxExpected),
		}
	}
	return nil
}

// calculateMaxTime averages the first transforms, ignoring the first
// one, into the normal time.
func (p *Probe) calculateMaxTime(elapsed int64, live bool) {
	if p.transCount > AverageOverTransforms {
		return
	}
	message := fmt.Sprintf("%sSuccess - Transform %dms", p.messagePrefix(live), elapsed)
	p.transCount++
	if p.transCount > 1 {
		n := int64(p.transCount)
		p.normalTime = (p.normalTime*(n-2) + elapsed) / (n - 1)
		p.maxTime = p.normalTime * int64(p.cfg.LivenessPercent+100) / 100
		observability.ProbeNormalTime.Set(float64(p.normalTime) / 1000)

		if (!live && !p.readySent.Swap(true)) || p.transCount > AverageOverTransforms {
			p.nextTransformTime = p.now().Add(p.period)
			debug.Log("probe", message, "normal_ms", p.normalTime, "liveness_percent", p.cfg.LivenessPercent, "max_ms", p.maxTime)
		}
	} else if !live && !p.readySent.Swap(true) {
		debug.Log("probe", message)
	}
}

func (p *Probe) messagePrefix(live bool) string {
	return fmt.Sprintf("%d %s", p.probeCount, probeMessage(live))
}

func probeMessage(live bool) string {
	if live {
		return "Live Probe: "
	}
	return "Ready Probe: "
}

package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ProbeRequest adapts a health probe transform. Both files belong to the
// caller and are never deleted.
type ProbeRequest struct {
	SourceFile     string
	TargetFile     string
	SourceMimetype string
	TargetMimetype string
	Options        map[string]string

	output *Output
	err    *TransformError
}

var _ Hooks = (*ProbeRequest)(nil)

func (p *ProbeRequest) Shape() string { return ShapeProbe }

func (p *ProbeRequest) Init(_ context.Context, seq int64) (*Job, error) {
	info, err := os.Stat(p.SourceFile)
	if err != nil {
		return nil, wrap("Failed to read the probe source", err)
	}
	return &Job{
		Reference:      fmt.Sprintf("p%d", seq),
		SourceMimetype: p.SourceMimetype,
		TargetMimetype: p.TargetMimetype,
		SourceSize:     info.Size(),
		Options:        p.Options,
	}, nil
}

func (p *ProbeRequest) Input(_ context.Context, _ *Job) (io.ReadCloser, string, error) {
	f, err := os.Open(p.SourceFile)
	if err != nil {
		return nil, "", wrap("Failed to read the probe source", err)
	}
	return f, p.SourceFile, nil
}

func (p *ProbeRequest) Target(_ context.Context, _ *Job, _ TempDir) (string, bool, error) {
	return p.TargetFile, false, nil
}

func (p *ProbeRequest) OnSuccess(_ context.Context, out *Output) error {
	p.output = out
	return nil
}

func (p *ProbeRequest) OnError(_ context.Context, err *TransformError) {
	p.err = err
}

// Result returns the target on success or the failure.
func (p *ProbeRequest) Result() (*Output, *TransformError) {
	return p.output, p.err
}

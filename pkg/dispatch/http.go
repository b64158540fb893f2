package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rhuss/wandel/pkg/catalog"
)

// HTTPRequest adapts a synchronous multipart upload. The target file
// outlives Handle so it can be streamed as the response; call Close once
// it has been sent.
type HTTPRequest struct {
	SourceMimetype string
	TargetMimetype string

	// Options holds every other form field, including directAccessUrl.
	Options map[string]string

	// File is the uploaded part. It may be nil when a direct access URL
	// is given.
	File    io.ReadCloser
	Fetcher *Fetcher

	target string
	output *Output
	err    *TransformError
}

var _ Hooks = (*HTTPRequest)(nil)

func (h *HTTPRequest) Shape() string { return ShapeHTTP }

func (h *HTTPRequest) Init(_ context.Context, seq int64) (*Job, error) {
	return &Job{
		Reference:      fmt.Sprintf("e%d", seq),
		SourceMimetype: h.SourceMimetype,
		TargetMimetype: h.TargetMimetype,
		SourceSize:     -1,
		Options:        h.Options,
	}, nil
}

func (h *HTTPRequest) Input(ctx context.Context, _ *Job) (io.ReadCloser, string, error) {
	if u := strings.TrimSpace(h.Options[catalog.DirectAccessURL]); u != "" {
		if h.File != nil {
			h.File.Close()
			h.File = nil
		}
		in, err := h.Fetcher.Fetch(ctx, u)
		return in, "", err
	}
	if h.File == nil {
		return nil, "", BadRequest("Required request part 'file' is not present")
	}
	return h.File, "", nil
}

func (h *HTTPRequest) Target(_ context.Context, job *Job, dir TempDir) (string, bool, error) {
	path, err := dir.Create("target_", ExtensionForTargetMimetype(job.TargetMimetype, job.SourceMimetype))
	if err != nil {
		return "", false, err
	}
	h.target = path
	return path, false, nil
}

func (h *HTTPRequest) OnSuccess(_ context.Context, out *Output) error {
	h.output = out
	return nil
}

func (h *HTTPRequest) OnError(_ context.Context, err *TransformError) {
	h.err = err
}

// Result returns the target on success or the failure.
func (h *HTTPRequest) Result() (*Output, *TransformError) {
	return h.output, h.err
}

// Filename is the attachment name of the result, e.g. "transform.pdf".
func (h *HTTPRequest) Filename() string {
	return "transform." + ExtensionForTargetMimetype(h.TargetMimetype, h.SourceMimetype)
}

// Close deletes the target file.
func (h *HTTPRequest) Close() error {
	if h.target == "" {
		return nil
	}
	err := os.Remove(h.target)
	h.target = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

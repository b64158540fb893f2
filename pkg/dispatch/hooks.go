package dispatch

import (
	"context"
	"io"
	"net/http"
	"os"
)

// Shapes name the supported request shapes in records and metrics.
const (
	ShapeHTTP    = "http"
	ShapeMessage = "message"
	ShapeProbe   = "probe"
)

// Job is what a request shape hands the core after INIT.
type Job struct {
	// Reference identifies the request in logs, e.g. "e12" or a requestId.
	Reference      string
	SourceMimetype string
	TargetMimetype string

	// SourceSize is -1 when unknown.
	SourceSize int64

	// Options are the options as received, before normalization.
	Options map[string]string

	// Fragments allows the implementation to respond with fragments.
	Fragments bool
}

// Output describes a target ready to be returned to the caller.
type Output struct {
	Job         *Job
	Transformer string
	Path        string
	Length      int64

	// Fragment is the index of the fragment, or nil for a single result.
	Fragment *int
}

// Hooks adapts one request shape to the core. The core calls Init,
// Input and Target in that order, then either OnSuccess (once, or once
// per fragment) or OnError.
type Hooks interface {
	Shape() string

	// Init validates the request. seq is a process-wide request number.
	Init(ctx context.Context, seq int64) (*Job, error)

	// Input opens the source. A non-empty sourceFile is a file the caller
	// already has, which CreateSourceFile returns without copying.
	Input(ctx context.Context, job *Job) (in io.ReadCloser, sourceFile string, err error)

	// Target returns the file the result is written to. When owned is set
	// the core deletes it during cleanup.
	Target(ctx context.Context, job *Job, dir TempDir) (path string, owned bool, err error)

	// OnSuccess delivers a completed target. An error fails the request.
	OnSuccess(ctx context.Context, out *Output) error

	// OnError reports a failed request. It must not fail itself.
	OnError(ctx context.Context, err *TransformError)
}

// TempDir is the directory temporary files are created in. The empty
// value uses os.TempDir.
type TempDir string

// Create creates an empty file named prefix*.ext and returns its path.
func (d TempDir) Create(prefix, ext string) (string, error) {
	f, err := d.open(prefix, ext)
	if err != nil {
		return "", err
	}
	return f.Name(), f.Close()
}

func (d TempDir) open(prefix, ext string) (*os.File, error) {
	pattern := prefix + "*"
	if ext != "" {
		pattern += "." + ext
	}
	return os.CreateTemp(string(d), pattern)
}

// noSpace reports a temporary file that could not be written.
func noSpace(message string, err error) *TransformError {
	return &TransformError{Status: http.StatusInsufficientStorage, Message: message, Err: err}
}

package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/rhuss/wandel/pkg/debug"
)

// exchange holds the state of one request inside Core.Handle. It is the
// Manager and the output writer given to the implementation.
type exchange struct {
	ctx   context.Context
	core  *Core
	hooks Hooks
	rec   *Record
	job   *Job

	in           io.ReadCloser
	callerSource string
	sourcePath   string
	sourceCalled bool

	targetPath   string
	targetOwned  bool
	targetCalled bool
	file         *os.File
	buf          *bufio.Writer
	written      int64

	fragmentCalled  bool
	noMoreFragments bool
}

var _ Manager = (*exchange)(nil)

func (x *exchange) Write(p []byte) (int, error) {
	n, err := x.buf.Write(p)
	x.written += int64(n)
	return n, err
}

func (x *exchange) CreateSourceFile() (string, error) {
	if x.sourceCalled {
		return "", Internal("createSourceFile has already been called", nil)
	}
	x.sourceCalled = true
	if x.callerSource != "" {
		return x.callerSource, nil
	}

	ext := ExtensionForMimetype(x.job.SourceMimetype)
	f, err := x.core.workDir.open("source_", ext)
	if err != nil {
		return "", noSpace("Failed to store the source file", err)
	}
	x.sourcePath = f.Name()
	size, err := io.Copy(f, x.in)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", noSpace("Failed to store the source file", err)
	}
	x.rec.sourceStored(ext, size)
	debug.Log("dispatch", "source file created", "ref", x.job.Reference, "path", x.sourcePath, "size", size)
	return x.sourcePath, nil
}

func (x *exchange) CreateTargetFile() (string, error) {
	if x.targetCalled {
		return "", Internal("createTargetFile has already been called", nil)
	}
	x.targetCalled = true
	return x.targetPath, nil
}

func (x *exchange) RespondWithFragment(index *int, finished bool) (io.Writer, error) {
	if !x.job.Fragments {
		return nil, Internal("Fragments may only be sent with asynchronous requests. This is a synchronous "+
			x.hooks.Shape()+" request", nil)
	}
	if index == nil && !x.fragmentCalled {
		return nil, Internal("No fragments were produced", nil)
	}
	if index != nil && x.noMoreFragments {
		return nil, Internal("Final fragment already sent", nil)
	}

	if index != nil {
		if err := x.succeed(x.ctx, index); err != nil {
			return nil, err
		}
	}
	x.fragmentCalled = true
	x.noMoreFragments = x.noMoreFragments || index == nil || finished
	if x.noMoreFragments {
		return nil, nil
	}

	x.removeTarget()
	if err := x.openTarget(x.ctx); err != nil {
		return nil, err
	}
	x.targetCalled = false
	return x, nil
}

// openTarget asks the hooks for a target file and opens it for writing.
func (x *exchange) openTarget(ctx context.Context) error {
	path, owned, err := x.hooks.Target(ctx, x.job, x.core.workDir)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			return err
		}
		return noSpace("Failed to create the target file", err)
	}
	x.targetPath, x.targetOwned = path, owned

	f, err := os.Create(path)
	if err != nil {
		return noSpace("Failed to create the target file", err)
	}
	x.file = f
	x.buf = bufio.NewWriter(f)
	x.written = 0
	return nil
}

func (x *exchange) closeTarget() error {
	if x.file == nil {
		return nil
	}
	err := x.buf.Flush()
	if cerr := x.file.Close(); err == nil {
		err = cerr
	}
	x.file = nil
	return err
}

func (x *exchange) removeTarget() {
	if err := x.closeTarget(); err != nil {
		x.core.logger.Warn("closing target file", "ref", x.job.Reference, "error", err)
	}
	if x.targetOwned && x.targetPath != "" {
		x.remove(x.targetPath)
	}
	x.targetPath = ""
}

// outputLength is the size of the target. Implementations that wrote the
// file themselves did not go through the byte counter.
func (x *exchange) outputLength() (int64, error) {
	if !x.targetCalled {
		return x.written, nil
	}
	info, err := os.Stat(x.targetPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// succeed hands the current target to the hooks.
func (x *exchange) succeed(ctx context.Context, fragment *int) error {
	if err := x.closeTarget(); err != nil {
		return Resource("Failed to write the target file", err)
	}
	length, err := x.outputLength()
	if err != nil {
		return Internal("Failed to read the target file", err)
	}
	x.rec.TargetSize = length

	out := &Output{
		Job:         x.job,
		Transformer: x.rec.Transformer,
		Path:        x.targetPath,
		Length:      length,
		Fragment:    fragment,
	}
	if err := x.hooks.OnSuccess(ctx, out); err != nil {
		return err
	}
	x.rec.finish(http.StatusOK, "Success")
	return nil
}

// cleanup releases everything the request opened. Caller-supplied and
// unowned files are left in place.
func (x *exchange) cleanup() {
	if err := x.closeTarget(); err != nil {
		x.core.logger.Warn("closing target file", "ref", x.job.Reference, "error", err)
	}
	if x.in != nil {
		if err := x.in.Close(); err != nil {
			debug.Log("dispatch", "closing source", "ref", x.job.Reference, "error", err)
		}
	}
	if x.sourcePath != "" {
		x.remove(x.sourcePath)
	}
	if x.targetOwned && x.targetPath != "" {
		x.remove(x.targetPath)
	}
}

func (x *exchange) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		x.core.logger.Warn("deleting temporary file", "path", path, "error", err)
	}
}

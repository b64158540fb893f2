package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/debug"
)

// Resolver describes catalog transformers by name. *catalog.Index
// satisfies it.
type Resolver interface {
	Origin(name string) (catalog.Origin, bool)
	Options(name string) catalog.OptionGroup
}

// indexed is implemented by selectors that swap their index on reload,
// such as the registry.
type indexed interface {
	Index() *catalog.Index
}

// view pins the catalog used for one request, so that selection and
// execution agree even if the registry reloads in between.
func (c *Core) view() (Selector, Resolver) {
	if s, ok := c.selector.(indexed); ok {
		if x := s.Index(); x != nil {
			return x, x
		}
	}
	r, _ := c.selector.(Resolver)
	return c.selector, r
}

// isLocal reports whether transformers declared at baseURL run in this
// process. Without a configured local address everything is local.
func (c *Core) isLocal(baseURL string) bool {
	return baseURL == "" || c.localBaseURL == "" || baseURL == c.localBaseURL
}

// route runs the named transformer: pipelines step by step, failovers
// member by member, local transformers in process and the rest on the
// engine that declared them.
func (c *Core) route(ctx context.Context, res Resolver, name string, req *Request, in io.Reader, out io.Writer, m Manager) error {
	var o catalog.Origin
	if res != nil {
		o, _ = res.Origin(name)
	}
	switch {
	case o.Transformer.IsPipeline():
		return c.runPipeline(ctx, res, o.Transformer, req, in, out, m)
	case o.Transformer.IsFailover():
		return c.runFailover(ctx, res, o.Transformer, req, in, out, m)
	}

	if c.isLocal(o.Provenance.BaseURL) {
		if impl, ok := c.impls.Lookup(name); ok {
			debug.Log("dispatch", "transform", "transformer", name,
				"source", req.SourceMimetype, "target", req.TargetMimetype)
			return impl.Transform(ctx, req, in, out, m)
		}
	} else if c.forwarder != nil {
		debug.Log("dispatch", "forward", "transformer", name, "engine", o.Provenance.BaseURL)
		var group catalog.OptionGroup
		if res != nil {
			group = res.Options(name)
		}
		return c.forwarder.Forward(ctx, o.Provenance.BaseURL, group, req, in, out)
	}
	return Internal(fmt.Sprintf("Transformer %s not found", name), ErrMissingImplementation)
}

func (c *Core) runPipeline(ctx context.Context, res Resolver, t catalog.Transformer, req *Request, in io.Reader, out io.Writer, m Manager) error {
	var stages []*stage
	defer func() {
		for _, st := range stages {
			st.remove()
		}
	}()

	source := req.SourceMimetype
	sourceFile := m.CreateSourceFile
	for i, step := range t.Pipeline {
		if i == len(t.Pipeline)-1 {
			hop := req.hop(source, req.TargetMimetype, i == 0, true)
			err := c.route(ctx, res, step.TransformerName, hop, in, out, &relay{Manager: m, source: sourceFile})
			if err != nil {
				return wrap(fmt.Sprintf("Pipeline step %s of %s failed", step.TransformerName, t.Name), err)
			}
			return nil
		}

		target := ""
		if step.TargetMediaType != nil {
			target = *step.TargetMediaType
		}
		st, err := c.newStage(ExtensionForMimetype(target), sourceFile)
		if err != nil {
			return err
		}
		stages = append(stages, st)

		hop := req.hop(source, target, i == 0, false)
		err = c.route(ctx, res, step.TransformerName, hop, in, st, st)
		if cerr := st.close(); err == nil && cerr != nil {
			err = Resource("Failed to write an intermediate file", cerr)
		}
		if err != nil {
			return wrap(fmt.Sprintf("Pipeline step %s of %s failed", step.TransformerName, t.Name), err)
		}
		debug.Log("dispatch", "pipeline step done", "pipeline", t.Name, "step", step.TransformerName, "target", target)

		f, err := os.Open(st.path)
		if err != nil {
			return Internal("Failed to read an intermediate file", err)
		}
		defer f.Close()
		in, source = f, target
		sourceFile = st.reuse()
	}
	return nil
}

func (c *Core) runFailover(ctx context.Context, res Resolver, t catalog.Transformer, req *Request, _ io.Reader, out io.Writer, m Manager) error {
	path, err := m.CreateSourceFile()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range t.Failover {
		err := c.attempt(ctx, res, name, req, path, out)
		if err == nil {
			return nil
		}
		c.logger.Warn("failover transformer failed", "failover", t.Name, "transformer", name,
			"error", MessageWithCause("Transform failed", err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Internal(fmt.Sprintf("Failover transformer %s failed", t.Name), errors.Join(errs...))
}

// attempt runs one failover member from the stored source. Its result is
// only copied to out once it has succeeded.
func (c *Core) attempt(ctx context.Context, res Resolver, name string, req *Request, source string, out io.Writer) error {
	in, err := os.Open(source)
	if err != nil {
		return Internal("Failed to read the source file", err)
	}
	defer in.Close()

	st, err := c.newStage(ExtensionForMimetype(req.TargetMimetype), func() (string, error) { return source, nil })
	if err != nil {
		return err
	}
	defer st.remove()

	err = c.route(ctx, res, name, req, in, st, st)
	if cerr := st.close(); err == nil && cerr != nil {
		err = Resource("Failed to write an intermediate file", cerr)
	}
	if err != nil {
		return err
	}

	result, err := os.Open(st.path)
	if err != nil {
		return Internal("Failed to read an intermediate file", err)
	}
	defer result.Close()
	if _, err := io.Copy(out, result); err != nil {
		return Resource("Failed to write the target file", err)
	}
	return nil
}

// hop narrows a request to one pipeline step. Encodings only apply at the
// ends of the pipeline.
func (r *Request) hop(source, target string, first, last bool) *Request {
	h := *r
	h.SourceMimetype, h.TargetMimetype = source, target
	if !first {
		h.SourceEncoding = ""
	}
	if !last {
		h.TargetEncoding = ""
	}
	return &h
}

// stage collects the output of an intermediate step in a temporary file.
// It is the Manager and the writer given to that step.
type stage struct {
	core   *Core
	path   string
	file   *os.File
	buf    *bufio.Writer
	source func() (string, error)

	sourceCalled bool
	targetCalled bool
}

var _ Manager = (*stage)(nil)

func (c *Core) newStage(ext string, source func() (string, error)) (*stage, error) {
	f, err := c.workDir.open("step_", ext)
	if err != nil {
		return nil, noSpace("Failed to create an intermediate file", err)
	}
	return &stage{core: c, path: f.Name(), file: f, buf: bufio.NewWriter(f), source: source}, nil
}

func (s *stage) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *stage) CreateSourceFile() (string, error) {
	if s.sourceCalled {
		return "", Internal("createSourceFile has already been called", nil)
	}
	s.sourceCalled = true
	return s.source()
}

func (s *stage) CreateTargetFile() (string, error) {
	if s.targetCalled {
		return "", Internal("createTargetFile has already been called", nil)
	}
	s.targetCalled = true
	return s.path, nil
}

func (s *stage) RespondWithFragment(*int, bool) (io.Writer, error) {
	return nil, Internal("Fragments may not be sent by an intermediate transform", nil)
}

// reuse returns the stage output as the source file of the next step.
func (s *stage) reuse() func() (string, error) {
	return func() (string, error) { return s.path, nil }
}

func (s *stage) close() error {
	if s.file == nil {
		return nil
	}
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *stage) remove() {
	if err := s.close(); err != nil {
		s.core.logger.Warn("closing intermediate file", "path", s.path, "error", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.core.logger.Warn("deleting temporary file", "path", s.path, "error", err)
	}
}

// relay is the Manager of the last pipeline step: the target and any
// fragments go to the request, the source comes from the previous step.
type relay struct {
	Manager
	source func() (string, error)
	called bool
}

func (r *relay) CreateSourceFile() (string, error) {
	if r.called {
		return "", Internal("createSourceFile has already been called", nil)
	}
	r.called = true
	return r.source()
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rhuss/wandel/pkg/catalog"
)

// ErrMissingImplementation is returned by CheckImplementations when the
// catalog names a local transformer that was never loaded.
var ErrMissingImplementation = errors.New("transformer has no implementation")

// Request carries the resolved parameters of one transform.
type Request struct {
	SourceMimetype string
	TargetMimetype string
	SourceEncoding string
	TargetEncoding string

	// Options are the normalized transform options.
	Options map[string]string
}

// Transformer performs a named transform. Implementations either stream
// from in to out, or call Manager.CreateSourceFile and
// Manager.CreateTargetFile to work on files. Creating the source file
// consumes in.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, req *Request, in io.Reader, out io.Writer, m Manager) error
}

// Manager is the view of the running request given to a Transformer.
type Manager interface {
	// CreateSourceFile writes the source to a file and returns its path.
	// It may be called once.
	CreateSourceFile() (string, error)

	// CreateTargetFile returns the path the target must be written to.
	// It may be called once.
	CreateTargetFile() (string, error)

	// RespondWithFragment sends what has been written so far as fragment
	// index. It returns the writer for the next fragment, or nil once
	// finished is set. Passing a nil index ends a fragmented response
	// without sending more content.
	RespondWithFragment(index *int, finished bool) (io.Writer, error)
}

// Implementations is an immutable name to Transformer map, built once at
// startup.
type Implementations struct {
	byName map[string]Transformer
}

// NewImplementations collects transformers by name. Duplicate names are
// an error.
func NewImplementations(ts ...Transformer) (*Implementations, error) {
	byName := make(map[string]Transformer, len(ts))
	for _, t := range ts {
		name := t.Name()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("transformer %q registered twice", name)
		}
		byName[name] = t
	}
	return &Implementations{byName: byName}, nil
}

// Lookup returns the implementation of name.
func (i *Implementations) Lookup(name string) (Transformer, bool) {
	if i == nil {
		return nil, false
	}
	t, ok := i.byName[name]
	return t, ok
}

// Names returns the registered names in order.
func (i *Implementations) Names() []string {
	if i == nil {
		return nil
	}
	names := make([]string, 0, len(i.byName))
	for name := range i.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckImplementations verifies that every single-step transformer
// declared by the engine at localBaseURL has an implementation.
// Pipelines and failovers are executed by their steps and need none.
func CheckImplementations(origins []catalog.Origin, impls *Implementations, localBaseURL string) error {
	var missing []string
	for _, o := range origins {
		t := o.Transformer
		if o.Provenance.BaseURL != localBaseURL || !t.IsSingleStep() {
			continue
		}
		if _, ok := impls.Lookup(t.Name); !ok {
			missing = append(missing, t.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingImplementation, strings.Join(missing, ", "))
}

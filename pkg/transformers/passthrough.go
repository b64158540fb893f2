package transformers

import (
	"context"
	"io"

	"github.com/rhuss/wandel/pkg/dispatch"
)

// passThroughPriority beats any real transformer for same-type requests
// without options.
const passThroughPriority = 20

// PassThrough copies the source unchanged.
type PassThrough struct{}

func (PassThrough) Name() string { return "PassThrough" }

func (PassThrough) Transform(_ context.Context, _ *dispatch.Request, in io.Reader, out io.Writer, _ dispatch.Manager) error {
	_, err := io.Copy(out, in)
	return err
}

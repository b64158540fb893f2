package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/storage"
)

// MessageRequest adapts an asynchronous TransformRequest. The source
// comes from the shared store or a direct access URL, and every result
// is saved back to the store. It always produces at least one reply.
type MessageRequest struct {
	Request *api.TransformRequest
	Store   storage.FileStore
	Fetcher *Fetcher

	replies []*api.TransformReply
}

var _ Hooks = (*MessageRequest)(nil)

func (m *MessageRequest) Shape() string { return ShapeMessage }

func (m *MessageRequest) Init(_ context.Context, _ int64) (*Job, error) {
	req := m.Request
	if err := api.ValidateTransformRequest(req); err != nil {
		return nil, BadRequest("%s", err.Message)
	}
	req.InternalContext = api.InitialiseContext(req.InternalContext)

	return &Job{
		Reference:      req.RequestID,
		SourceMimetype: req.SourceMediaType,
		TargetMimetype: req.TargetMediaType,
		SourceSize:     *req.SourceSize,
		Options:        req.Options,
		Fragments:      true,
	}, nil
}

func (m *MessageRequest) Input(ctx context.Context, _ *Job) (io.ReadCloser, string, error) {
	in, err := m.open(ctx)
	if err != nil {
		return nil, "", wrap("Failed to read the source", err)
	}
	return in, "", nil
}

func (m *MessageRequest) open(ctx context.Context) (io.ReadCloser, error) {
	req := m.Request
	if u := strings.TrimSpace(req.Options[catalog.DirectAccessURL]); u != "" {
		return m.Fetcher.Fetch(ctx, u)
	}
	if m.Store == nil {
		return nil, Internal("No shared file store is configured", nil)
	}
	in, err := m.Store.Retrieve(ctx, req.SourceReference)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, BadRequest("Source file with reference: %s is null or empty.", req.SourceReference)
	case errors.Is(err, storage.ErrInvalidReference):
		return nil, BadRequest("%s", storage.ErrInvalidReference.Error())
	case err != nil:
		return nil, asTransformError(err)
	}
	return in, nil
}

func (m *MessageRequest) Target(_ context.Context, job *Job, dir TempDir) (string, bool, error) {
	path, err := dir.Create("target_", ExtensionForTargetMimetype(job.TargetMimetype, job.SourceMimetype))
	return path, true, err
}

func (m *MessageRequest) OnSuccess(ctx context.Context, out *Output) error {
	ref, err := m.save(ctx, out)
	if err != nil {
		return wrap("Failed writing to SFS", err)
	}

	reply := m.newReply()
	reply.Status = http.StatusCreated
	reply.TargetReference = ref
	length := out.Length
	reply.InternalContext.CurrentSourceSize = &length
	m.replies = append(m.replies, reply)
	return nil
}

func (m *MessageRequest) save(ctx context.Context, out *Output) (string, error) {
	if m.Store == nil {
		return "", Internal("No shared file store is configured", nil)
	}
	f, err := os.Open(out.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	ref, err := m.Store.Save(ctx, f, out.Length, out.Job.TargetMimetype)
	if err != nil {
		return "", Resource(err.Error(), err)
	}
	return ref, nil
}

func (m *MessageRequest) OnError(_ context.Context, err *TransformError) {
	reply := m.newReply()
	reply.Status = err.Status
	reply.ErrorDetails = MessageWithCause("Transform failed", err)
	m.replies = append(m.replies, reply)
}

// newReply echoes the request. Each reply gets its own internal context
// so fragment replies can carry their own sizes.
func (m *MessageRequest) newReply() *api.TransformReply {
	req := m.Request
	if req == nil {
		req = &api.TransformRequest{}
	}
	reply := api.NewReply(req)
	ic := *api.InitialiseContext(req.InternalContext)
	reply.InternalContext = &ic
	return reply
}

// Replies returns the replies to send, one per fragment or a single one.
func (m *MessageRequest) Replies() []*api.TransformReply {
	return m.replies
}

// Reply returns the last reply.
func (m *MessageRequest) Reply() *api.TransformReply {
	if len(m.replies) == 0 {
		return nil
	}
	return m.replies[len(m.replies)-1]
}

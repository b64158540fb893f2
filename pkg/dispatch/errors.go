package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/wandel/pkg/api"
)

// TransformError is a failure with the status reported to the caller.
type TransformError struct {
	Status  int
	Message string
	Err     error

	// quiet hides Err from MessageWithCause because Message already
	// includes its text.
	quiet bool
}

func (e *TransformError) Error() string { return e.Message }

func (e *TransformError) Unwrap() error { return e.Err }

// APIError converts the failure into the HTTP error taxonomy.
func (e *TransformError) APIError() *api.APIError {
	switch e.Status {
	case http.StatusBadRequest:
		return api.NewInvalidRequestError("", e.Message)
	case http.StatusNotFound:
		return api.NewNotFoundError(e.Message)
	case http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(e.Message)
	case http.StatusUnsupportedMediaType:
		return api.NewUnsupportedMediaTypeError(e.Message)
	case http.StatusInsufficientStorage:
		return api.NewInsufficientStorageError(e.Message)
	}
	return api.NewServerError(e.Message)
}

// BadRequest reports a request the caller must fix, such as one no
// transformer supports.
func BadRequest(format string, args ...any) *TransformError {
	return &TransformError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal reports a failure inside the engine or the implementation.
func Internal(message string, err error) *TransformError {
	return &TransformError{Status: http.StatusInternalServerError, Message: message, Err: err}
}

// Resource reports a temporary file or shared store failure. Running out
// of space maps to 507, anything else to 500.
func Resource(message string, err error) *TransformError {
	status := http.StatusInternalServerError
	if isNoSpace(err) {
		status = http.StatusInsufficientStorage
	}
	return &TransformError{Status: status, Message: message, Err: err}
}

// wrap prefixes the full cause chain of err while keeping its status.
func wrap(prefix string, err error) *TransformError {
	te := asTransformError(err)
	return &TransformError{Status: te.Status, Message: MessageWithCause(prefix, te), Err: err, quiet: true}
}

// asTransformError classifies err. Errors that are not TransformErrors
// are server errors.
func asTransformError(err error) *TransformError {
	var te *TransformError
	if errors.As(err, &te) {
		return te
	}
	return &TransformError{Status: http.StatusInternalServerError, Message: err.Error(), Err: err, quiet: true}
}

// MessageWithCause renders prefix followed by err and its chain of
// causes, e.g. "Transform failed - Failed to read the source, cause
// connection refused".
func MessageWithCause(prefix string, err error) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(" - ")
	for i := 0; err != nil; i++ {
		if i > 0 {
			sb.WriteString(", cause ")
		}
		te, ok := err.(*TransformError)
		if !ok {
			sb.WriteString(err.Error())
			break
		}
		sb.WriteString(te.Message)
		if te.quiet || (te.Err != nil && te.Err.Error() == te.Message) {
			break
		}
		err = te.Err
	}
	return sb.String()
}

package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/dispatch"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP status
// code. Transport-level errors (body too large, method not allowed) are
// handled separately by the HTTP adapter.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case api.ErrorTypeInsufficientStorage:
		return http.StatusInsufficientStorage
	case api.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError writes any error. Transform errors keep their own status;
// anything unrecognised is a server error.
func WriteError(w http.ResponseWriter, err error) {
	var te *dispatch.TransformError
	if errors.As(err, &te) {
		WriteErrorResponse(w, te.APIError(), te.Status)
		return
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		WriteAPIError(w, apiErr)
		return
	}
	WriteAPIError(w, api.NewServerError(err.Error()))
}

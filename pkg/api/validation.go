package api

import (
	"strings"
)

// contextType prefixes internal context problems found in a request.
const contextType = "T-Request"

// ValidateTransformRequest checks a TransformRequest. All problems are
// reported together in a single *APIError, or nil if the request is valid.
func ValidateTransformRequest(req *TransformRequest) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request cannot be null")
	}

	var problems []string
	var param string
	reject := func(field, msg string) {
		if param == "" {
			param = field
		}
		problems = append(problems, msg)
	}

	if req.RequestID == "" {
		reject("requestId", "requestId cannot be null or empty")
	}
	if req.SourceSize == nil || *req.SourceSize <= 0 {
		reject("sourceSize", "sourceSize cannot be null or have its value smaller than 0")
	}
	if req.SourceMediaType == "" {
		reject("sourceMediaType", "sourceMediaType cannot be null or empty")
	}
	if req.TargetMediaType == "" {
		reject("targetMediaType", "targetMediaType cannot be null or empty")
	}
	if req.TargetExtension == "" {
		reject("targetExtension", "targetExtension cannot be null or empty")
	}
	if req.ClientData == "" {
		reject("clientData", "clientData cannot be null or empty")
	}
	if req.Schema < 0 {
		reject("schema", "schema cannot be less than 0")
	}
	if msg := CheckInternalContext(req.InternalContext, contextType); msg != "" {
		reject("internalContext", msg)
	}

	if len(problems) == 0 {
		return nil
	}
	return NewInvalidRequestError(param, strings.Join(problems, ", "))
}

// CheckInternalContext returns a description of the first structural
// problem with an internal context, or "" if there is none.
func CheckInternalContext(ic *InternalContext, kind string) string {
	switch {
	case ic == nil:
		return kind + " InternalContext was null"
	case ic.MultiStep == nil:
		return kind + " InternalContext did not have the MultiStep set"
	case ic.MultiStep.TransformsToBeDone == nil:
		return kind + " InternalContext did not have the TransformsToBeDone set"
	case ic.MultiStep.InitialRequestID == "":
		return kind + " InternalContext did not have the InitialRequestId set"
	}
	return ""
}

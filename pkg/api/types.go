package api

// Status codes carried in a TransformReply.
const (
	StatusCreated             = 201
	StatusBadRequest          = 400
	StatusInternalServerError = 500
)

// TransformRequest asks for the source in the shared file store (or at a
// direct access URL passed as an option) to be transformed.
type TransformRequest struct {
	RequestID       string            `json:"requestId"`
	SourceReference string            `json:"sourceReference,omitempty"`
	SourceMediaType string            `json:"sourceMediaType"`
	SourceSize      *int64            `json:"sourceSize,omitempty"`
	SourceExtension string            `json:"sourceExtension,omitempty"`
	TargetMediaType string            `json:"targetMediaType"`
	TargetExtension string            `json:"targetExtension"`
	ClientData      string            `json:"clientData"`
	Schema          int               `json:"schema"`
	Options         map[string]string `json:"transformRequestOptions"`
	InternalContext *InternalContext  `json:"internalContext,omitempty"`
	SourceFileName  string            `json:"sourceFileName,omitempty"`
}

// TransformReply is sent back for every TransformRequest, including ones
// that could not be processed.
type TransformReply struct {
	RequestID       string           `json:"requestId"`
	Status          int              `json:"status"`
	ErrorDetails    string           `json:"errorDetails,omitempty"`
	SourceReference string           `json:"sourceReference,omitempty"`
	TargetReference string           `json:"targetReference,omitempty"`
	ClientData      string           `json:"clientData"`
	Schema          int              `json:"schema"`
	InternalContext *InternalContext `json:"internalContext,omitempty"`
}

// InternalContext is owned by the router that split a request into steps.
// Engines pass it through unchanged apart from initialising missing parts.
type InternalContext struct {
	MultiStep              *MultiStep        `json:"multiStep,omitempty"`
	AttemptedRetries       int               `json:"attemptedRetries"`
	CurrentSourceMediaType string            `json:"currentSourceMediaType,omitempty"`
	CurrentTargetMediaType string            `json:"currentTargetMediaType,omitempty"`
	ReplyToDestination     string            `json:"replyToDestination,omitempty"`
	CurrentSourceSize      *int64            `json:"currentSourceSize,omitempty"`
	Options                map[string]string `json:"transformRequestOptions,omitempty"`
}

// MultiStep tracks a request that is executed as several transforms.
type MultiStep struct {
	InitialRequestID       string   `json:"initialRequestId,omitempty"`
	InitialSourceMediaType string   `json:"initialSourceMediaType,omitempty"`
	TransformsToBeDone     []string `json:"transformsToBeDone"`
}

// NewReply creates a reply that echoes the identifying fields of the request.
func NewReply(req *TransformRequest) *TransformReply {
	return &TransformReply{
		RequestID:       req.RequestID,
		SourceReference: req.SourceReference,
		ClientData:      req.ClientData,
		Schema:          req.Schema,
		InternalContext: req.InternalContext,
	}
}

// InitialiseContext fills in the parts of an internal context that are
// needed for logging, creating it if absent.
func InitialiseContext(ic *InternalContext) *InternalContext {
	if ic == nil {
		ic = &InternalContext{}
	}
	if ic.MultiStep == nil {
		ic.MultiStep = &MultiStep{}
	}
	if ic.MultiStep.TransformsToBeDone == nil {
		ic.MultiStep.TransformsToBeDone = []string{}
	}
	return ic
}

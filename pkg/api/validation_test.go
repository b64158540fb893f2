package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

// validRequest returns a minimal valid TransformRequest.
func validRequest() *TransformRequest {
	return &TransformRequest{
		RequestID:       "1",
		SourceReference: "ref-1",
		SourceMediaType: "text/plain",
		SourceSize:      int64Ptr(5),
		TargetMediaType: "application/pdf",
		TargetExtension: "pdf",
		ClientData:      "ACS",
		Schema:          1,
		InternalContext: &InternalContext{
			MultiStep: &MultiStep{
				InitialRequestID:   "1",
				TransformsToBeDone: []string{},
			},
		},
	}
}

func TestValidateTransformRequest(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(r *TransformRequest)
		wantParam string
		wantMsg   string
	}{
		{"valid", func(r *TransformRequest) {}, "", ""},
		{"no request id", func(r *TransformRequest) { r.RequestID = "" }, "requestId", "requestId cannot be null or empty"},
		{"no size", func(r *TransformRequest) { r.SourceSize = nil }, "sourceSize", "sourceSize cannot be null or have its value smaller than 0"},
		{"zero size", func(r *TransformRequest) { r.SourceSize = int64Ptr(0) }, "sourceSize", "sourceSize cannot be null or have its value smaller than 0"},
		{"no source type", func(r *TransformRequest) { r.SourceMediaType = "" }, "sourceMediaType", "sourceMediaType cannot be null or empty"},
		{"no target type", func(r *TransformRequest) { r.TargetMediaType = "" }, "targetMediaType", "targetMediaType cannot be null or empty"},
		{"no target extension", func(r *TransformRequest) { r.TargetExtension = "" }, "targetExtension", "targetExtension cannot be null or empty"},
		{"no client data", func(r *TransformRequest) { r.ClientData = "" }, "clientData", "clientData cannot be null or empty"},
		{"negative schema", func(r *TransformRequest) { r.Schema = -1 }, "schema", "schema cannot be less than 0"},
		{"no context", func(r *TransformRequest) { r.InternalContext = nil }, "internalContext", "T-Request InternalContext was null"},
		{"no multi step", func(r *TransformRequest) { r.InternalContext.MultiStep = nil }, "internalContext", "T-Request InternalContext did not have the MultiStep set"},
		{"no transforms to be done", func(r *TransformRequest) { r.InternalContext.MultiStep.TransformsToBeDone = nil }, "internalContext", "T-Request InternalContext did not have the TransformsToBeDone set"},
		{"no initial request id", func(r *TransformRequest) { r.InternalContext.MultiStep.InitialRequestID = "" }, "internalContext", "T-Request InternalContext did not have the InitialRequestId set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(req)
			err := ValidateTransformRequest(req)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", err.Type, ErrorTypeInvalidRequest)
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateTransformRequestJoinsProblems(t *testing.T) {
	req := validRequest()
	req.RequestID = ""
	req.ClientData = ""
	err := ValidateTransformRequest(req)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "requestId cannot be null or empty, clientData cannot be null or empty"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
	if err.Param != "requestId" {
		t.Errorf("Param = %q, want first failing field", err.Param)
	}
}

func TestValidateNilRequest(t *testing.T) {
	if err := ValidateTransformRequest(nil); err == nil || !strings.Contains(err.Message, "null") {
		t.Errorf("ValidateTransformRequest(nil) = %v", err)
	}
}

func TestNewReplyEchoesRequest(t *testing.T) {
	req := validRequest()
	reply := NewReply(req)
	if reply.RequestID != "1" || reply.SourceReference != "ref-1" || reply.ClientData != "ACS" || reply.Schema != 1 {
		t.Errorf("reply does not echo request: %+v", reply)
	}
	if reply.InternalContext != req.InternalContext {
		t.Error("internal context should be passed through")
	}
}

func TestInitialiseContext(t *testing.T) {
	ic := InitialiseContext(nil)
	if ic.MultiStep == nil || ic.MultiStep.TransformsToBeDone == nil {
		t.Fatalf("context not initialised: %+v", ic)
	}

	existing := &InternalContext{ReplyToDestination: "replies", MultiStep: &MultiStep{InitialRequestID: "7"}}
	got := InitialiseContext(existing)
	if got != existing || got.MultiStep.InitialRequestID != "7" || got.MultiStep.TransformsToBeDone == nil {
		t.Errorf("existing context not kept: %+v", got)
	}
}

func TestTransformRequestJSON(t *testing.T) {
	data := `{
		"requestId": "42",
		"sourceReference": "abc",
		"sourceMediaType": "text/plain",
		"sourceSize": 5,
		"targetMediaType": "application/pdf",
		"targetExtension": "pdf",
		"clientData": "cd",
		"schema": 1,
		"transformRequestOptions": {"pageLimit": "2"},
		"internalContext": {"multiStep": {"initialRequestId": "42", "transformsToBeDone": []}, "replyToDestination": "q"}
	}`
	var req TransformRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.SourceSize == nil || *req.SourceSize != 5 {
		t.Errorf("SourceSize = %v, want 5", req.SourceSize)
	}
	if req.Options["pageLimit"] != "2" {
		t.Errorf("Options = %v", req.Options)
	}
	if req.InternalContext.ReplyToDestination != "q" {
		t.Errorf("ReplyToDestination = %q", req.InternalContext.ReplyToDestination)
	}
	if err := ValidateTransformRequest(&req); err != nil {
		t.Errorf("ValidateTransformRequest: %v", err)
	}

	out, err := json.Marshal(&TransformReply{RequestID: "42", Status: StatusCreated, TargetReference: "t"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["status"] != float64(201) || m["targetReference"] != "t" {
		t.Errorf("reply JSON = %s", out)
	}
	if _, ok := m["errorDetails"]; ok {
		t.Error("empty errorDetails should be omitted")
	}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{-1, ""},
		{0, "0bytes"},
		{1, "1 byte"},
		{2, "2bytes"},
		{1023, "1023bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1 MB"},
		{5 * 1024 * 1024 * 1024, "5 GB"},
		{3 * 1024 * 1024 * 1024 * 1024 * 1024, "3072 TB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{-1, ""},
		{1, "1ms"},
		{999, "999ms"},
		{1000, "1s"},
		{1500, "1.5s"},
		{90_000, "1.5min"},
		{2 * 3_600_000, "2hr"},
	}
	for _, tt := range tests {
		if got := formatMillis(tt.ms); got != tt.want {
			t.Errorf("formatMillis(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestRecordString(t *testing.T) {
	start := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	rec := Record{
		ID:                7,
		Start:             start,
		StatusCode:        http.StatusOK,
		DurationStreamIn:  10,
		DurationTransform: 1100,
		DurationStreamOut: 90,
		Source:            "txt",
		SourceSize:        2048,
		Target:            "pdf",
		TargetSize:        0,
		Options:           "page=1",
		Message:           "Success",
	}
	want := "7 13:04:05 200 1.2s (10ms 1.1s 90ms) txt 2 KB pdf page=1 Success"
	if got := rec.String(); got != want {
		t.Errorf("String() =\n%q\nwant\n%q", got, want)
	}

	quick := Record{ID: 8, Start: start, StatusCode: 400, DurationTransform: 2, DurationStreamOut: -1, SourceSize: -1, TargetSize: -1, Message: "No transforms for: a -> b"}
	if got := quick.String(); got != "8 13:04:05 400 No transforms for: a -> b" {
		t.Errorf("String() = %q", got)
	}
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer()
	for i := 0; i < MaxLogEntries+3; i++ {
		b.Add(&Record{ID: b.next()})
	}
	entries := b.Entries()
	if len(entries) != MaxLogEntries {
		t.Fatalf("len = %d, want %d", len(entries), MaxLogEntries)
	}
	if entries[0].ID != MaxLogEntries+3 || entries[MaxLogEntries-1].ID != 4 {
		t.Errorf("entries run from %d to %d", entries[0].ID, entries[MaxLogEntries-1].ID)
	}
}

func TestNormalizeOptions(t *testing.T) {
	got := NormalizeOptions(map[string]string{
		"sourceExtension": "txt",
		"targetExtension": "pdf",
		"sourceMimetype":  "text/plain",
		"targetMimetype":  "application/pdf",
		"directAccessUrl": "http://host/file",
		"empty":           "",
		"blank":           "  ",
		"page":            "2",
		"timeout":         "100",
	})
	if want := "page=2, timeout=100"; FormatOptions(got) != want {
		t.Errorf("normalized = %q, want %q", FormatOptions(got), want)
	}
	if len(NormalizeOptions(nil)) != 0 {
		t.Error("nil options should normalize to an empty map")
	}
}

func TestExtensionForTargetMimetype(t *testing.T) {
	tests := []struct {
		target, source, want string
	}{
		{"application/pdf", "", "pdf"},
		{"text/plain", "", "txt"},
		{"image/svg+xml", "", "svg"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", "docx"},
		{"application/vnd.ms-excel", "", "xls"},
		{"image/x-raw-nikon", "", "nikon"},
		{"alfresco-metadata-extract", "application/pdf", "json"},
		{"alfresco-metadata-embed", "application/msword", "doc"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := ExtensionForTargetMimetype(tt.target, tt.source); got != tt.want {
			t.Errorf("ExtensionForTargetMimetype(%q, %q) = %q, want %q", tt.target, tt.source, got, tt.want)
		}
	}
}

func TestMessageWithCause(t *testing.T) {
	root := errors.New("disk full")
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("boom"), "Transform failed - boom"},
		{Internal("Cannot render", root), "Transform failed - Cannot render, cause disk full"},
		{Internal("outer", Internal("inner", root)), "Transform failed - outer, cause inner, cause disk full"},
		{asTransformError(fmt.Errorf("wrapped: %w", root)), "Transform failed - wrapped: disk full"},
		{wrap("Failed to read the source", BadRequest("missing")), "Transform failed - Failed to read the source - missing"},
	}
	for _, tt := range tests {
		if got := MessageWithCause("Transform failed", tt.err); got != tt.want {
			t.Errorf("MessageWithCause(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTransformErrorStatus(t *testing.T) {
	if got := wrap("x", BadRequest("y")).Status; got != http.StatusBadRequest {
		t.Errorf("wrap keeps status: got %d", got)
	}
	if got := Resource("x", errors.New("io")).Status; got != http.StatusInternalServerError {
		t.Errorf("Resource status = %d", got)
	}
	if got := BadRequest("x").APIError().Type; got != "invalid_request" {
		t.Errorf("APIError type = %q", got)
	}
	if got := noSpace("x", nil).APIError().Type; got != "insufficient_storage" {
		t.Errorf("APIError type = %q", got)
	}
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "remote")
	}))
	defer srv.Close()

	var f *Fetcher
	in, err := f.Fetch(context.Background(), srv.URL+"/file")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, _ := io.ReadAll(in)
	in.Close()
	if string(data) != "remote" {
		t.Errorf("body = %q", data)
	}

	for url, want := range map[string]string{
		srv.URL + "/missing": "Direct Access Url not found.",
		"ftp://host/file":    "Direct Access Url is invalid.",
		"::bad":              "Direct Access Url is invalid.",
	} {
		_, err := f.Fetch(context.Background(), url)
		var te *TransformError
		if !errors.As(err, &te) || te.Status != http.StatusBadRequest || te.Message != want {
			t.Errorf("Fetch(%q) = %v, want %q", url, err, want)
		}
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/storage"
	"github.com/rhuss/wandel/pkg/transport"
)

// Form fields of a transform upload.
const (
	fieldFile           = "file"
	fieldSourceMimetype = "sourceMimetype"
	fieldTargetMimetype = "targetMimetype"
)

// Adapter serves the engine endpoints over HTTP.
// It routes requests to the dispatch core and serializes the results.
type Adapter struct {
	catalog  transport.Catalog
	core     transport.Dispatcher
	prober   transport.Prober
	store    storage.FileStore // nil without a shared file store
	fetcher  *dispatch.Fetcher
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	seq      atomic.Int64
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	// MaxBodySize limits uploads. Zero means no limit.
	MaxBodySize int64

	// MemoryLimit is the part of a multipart upload kept in memory;
	// the rest spills to temporary files.
	MemoryLimit int64

	// EngineName and CoreVersion are reported by /version and the test page.
	EngineName  string
	CoreVersion string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 512 << 20, // 512 MB
		MemoryLimit: 32 << 20,
		EngineName:  "wandel",
	}
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithStore sets the shared file store used by asynchronous requests.
func WithStore(s storage.FileStore) AdapterOption {
	return func(a *Adapter) { a.store = s }
}

// WithFetcher sets the client used for direct access URLs.
func WithFetcher(f *dispatch.Fetcher) AdapterOption {
	return func(a *Adapter) { a.fetcher = f }
}

// WithInFlight shares the registry of running transforms, so that the
// server can cancel them on shutdown.
func WithInFlight(r *transport.InFlightRegistry) AdapterOption {
	return func(a *Adapter) { a.inflight = r }
}

// NewAdapter creates an HTTP adapter. The prober may be nil, in which
// case the probes only report whether the catalog is loaded.
func NewAdapter(cat transport.Catalog, core transport.Dispatcher, prober transport.Prober, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		catalog:  cat,
		core:     core,
		prober:   prober,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /transform/config", a.handleTransformConfig)
	a.mux.HandleFunc("POST /transform", a.handleTransform)
	a.mux.HandleFunc("POST /transform/async", a.handleAsyncTransform)
	a.mux.HandleFunc("POST /test", a.handleTestTransform)
	a.mux.HandleFunc("GET /ready", a.handleProbe(false))
	a.mux.HandleFunc("GET /live", a.handleProbe(true))
	a.mux.HandleFunc("GET /log", a.handleLog)
	a.mux.HandleFunc("GET /version", a.handleVersion)
	a.mux.HandleFunc("GET /{$}", a.handleTestPage)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// InFlight returns the registry of running transforms.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// handleTransformConfig handles GET /transform/config?configVersion=N.
func (a *Adapter) handleTransformConfig(w http.ResponseWriter, r *http.Request) {
	version := 1
	if v := r.URL.Query().Get("configVersion"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("configVersion",
				"Request parameter 'configVersion' is of the wrong type"))
			return
		}
		version = n
	}
	debug.Log("transport", "GET Transform Config", "config_version", version)

	cfg, err := a.catalog.TransformConfig(version)
	if err != nil {
		transport.WriteErrorResponse(w, api.NewServerError(err.Error()), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// handleTransform handles POST /transform. Every form field other than
// the file and the two mimetypes is a transform option.
func (a *Adapter) handleTransform(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	options := make(map[string]string, len(form.Value))
	for name, values := range form.Value {
		if name == fieldSourceMimetype || name == fieldTargetMimetype || len(values) == 0 {
			continue
		}
		options[name] = values[0]
	}
	a.transform(w, r, form, first(form.Value[fieldSourceMimetype]), first(form.Value[fieldTargetMimetype]), options)
}

// handleTestTransform handles POST /test from the test page. Option names
// and values arrive as name<N>/value<N> pairs, and _sourceMimetype or
// _targetMimetype override the mimetypes.
func (a *Adapter) handleTestTransform(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	values := make(map[string]string, len(form.Value))
	for name, v := range form.Value {
		if len(v) > 0 {
			values[name] = v[0]
		}
	}
	sourceMimetype := overrideMimetype(values, fieldSourceMimetype)
	targetMimetype := overrideMimetype(values, fieldTargetMimetype)

	options := make(map[string]string)
	for name, value := range values {
		if strings.HasPrefix(name, "value") || name == fieldSourceMimetype || name == fieldTargetMimetype {
			continue
		}
		if suffix, ok := strings.CutPrefix(name, "name"); ok {
			name, value = value, values["value"+suffix]
		}
		if strings.TrimSpace(name) != "" && strings.TrimSpace(value) != "" {
			options[name] = value
		}
	}
	a.transform(w, r, form, sourceMimetype, targetMimetype, options)
}

func overrideMimetype(values map[string]string, name string) string {
	if v := strings.TrimSpace(values["_"+name]); v != "" {
		values[name] = v
	}
	delete(values, "_"+name)
	return values[name]
}

// parseUpload reads a multipart request. On failure the error response has
// been written.
func (a *Adapter) parseUpload(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	if a.config.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	}
	memory := a.config.MemoryLimit
	if memory <= 0 {
		memory = 32 << 20
	}
	if err := r.ParseMultipartForm(memory); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("file", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
		case errors.Is(err, http.ErrNotMultipart):
			transport.WriteAPIError(w, api.NewUnsupportedMediaTypeError("Content-Type must be multipart/form-data"))
		default:
			transport.WriteAPIError(w, api.NewInvalidRequestError("", "invalid multipart request: "+err.Error()))
		}
		return nil, false
	}
	return r.MultipartForm, true
}

// transform runs a synchronous transform and streams the target back as
// an attachment.
func (a *Adapter) transform(w http.ResponseWriter, r *http.Request, form *multipart.Form, sourceMimetype, targetMimetype string, options map[string]string) {
	var file io.ReadCloser
	if headers := form.File[fieldFile]; len(headers) > 0 {
		f, err := headers[0].Open()
		if err != nil {
			transport.WriteError(w, dispatch.BadRequest("Could not read the uploaded file"))
			return
		}
		file = f
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := fmt.Sprintf("h%d", a.seq.Add(1))
	a.inflight.Register(id, cancel)
	defer a.inflight.Remove(id)

	h := &dispatch.HTTPRequest{
		SourceMimetype: sourceMimetype,
		TargetMimetype: targetMimetype,
		Options:        options,
		File:           file,
		Fetcher:        a.fetcher,
	}
	a.core.Handle(ctx, h)
	defer h.Close()

	out, terr := h.Result()
	if terr != nil {
		transport.WriteError(w, terr)
		return
	}
	target, err := os.Open(out.Path)
	if err != nil {
		transport.WriteError(w, dispatch.Internal("Failed to read the target file", err))
		return
	}
	defer target.Close()

	contentType := targetMimetype
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.Filename()}))
	w.Header().Set("Content-Length", strconv.FormatInt(out.Length, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, target); err != nil {
		debug.Log("transport", "streaming target failed", "error", err)
	}
}

// handleAsyncTransform handles POST /transform/async, which runs a
// TransformRequest the way a message would be handled and returns the
// reply. The HTTP status is the reply's status.
func (a *Adapter) handleAsyncTransform(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			transport.WriteAPIError(w, api.NewUnsupportedMediaTypeError("Content-Type must be application/json"))
			return
		}
	}
	if a.config.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	}

	var req api.TransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := fmt.Sprintf("a%d", a.seq.Add(1))
	a.inflight.Register(id, cancel)
	defer a.inflight.Remove(id)

	h := &dispatch.MessageRequest{Request: &req, Store: a.store, Fetcher: a.fetcher}
	a.core.Handle(ctx, h)

	reply := h.Reply()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	json.NewEncoder(w).Encode(reply)
}

// handleProbe handles GET /ready and GET /live. Failures are reported as
// plain text with the status chosen by the probe, 429 when the engine
// asks to be replaced.
func (a *Adapter) handleProbe(live bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !live && !a.catalog.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, "Transform configuration has not been loaded")
			return
		}
		if a.prober == nil {
			io.WriteString(w, "Success - No transform.")
			return
		}

		message, err := a.prober.DoTransformOrNothing(r.Context(), live, a.core)
		if err != nil {
			status := http.StatusInternalServerError
			var te *dispatch.TransformError
			if errors.As(err, &te) {
				status = te.Status
			}
			w.WriteHeader(status)
			io.WriteString(w, err.Error())
			return
		}
		io.WriteString(w, message)
	}
}

// handleLog handles GET /log with the most recent requests, newest first.
func (a *Adapter) handleLog(w http.ResponseWriter, _ *http.Request) {
	entries := a.core.Logs().Entries()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// handleVersion handles GET /version.
func (a *Adapter) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s %s available", a.config.EngineName, a.config.CoreVersion)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

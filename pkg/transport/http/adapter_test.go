package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/probe"
	"github.com/rhuss/wandel/pkg/storage/memory"
)

// fakeCatalog serves a fixed configuration.
type fakeCatalog struct {
	cfg   catalog.TransformConfig
	ready bool
}

func (c *fakeCatalog) TransformConfig(version int) (catalog.TransformConfig, error) {
	if !c.ready {
		return catalog.TransformConfig{}, errors.New("catalog not loaded")
	}
	return catalog.WithCoreVersion(c.cfg, version), nil
}

func (c *fakeCatalog) IsReady() bool { return c.ready }

// fakeProber returns a canned answer and records the probes it saw.
type fakeProber struct {
	message string
	err     error
	live    []bool
}

func (p *fakeProber) DoTransformOrNothing(_ context.Context, live bool, _ probe.Dispatcher) (string, error) {
	p.live = append(p.live, live)
	return p.message, p.err
}

type upper struct{}

func (upper) Name() string { return "Upper" }

func (upper) Transform(_ context.Context, _ *dispatch.Request, in io.Reader, out io.Writer, _ dispatch.Manager) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	_, err = out.Write(bytes.ToUpper(data))
	return err
}

func testConfig() catalog.TransformConfig {
	return catalog.TransformConfig{
		TransformOptions: map[string]catalog.Options{"pages": {catalog.Value("page", false)}},
		Transformers: []catalog.Transformer{{
			Name:      "Upper",
			Supported: []catalog.SupportedSourceAndTarget{catalog.Pair("text/plain", "text/html", -1, 50)},
			Options:   []string{"pages"},
		}},
	}
}

type testEnv struct {
	adapter *Adapter
	catalog *fakeCatalog
	prober  *fakeProber
	store   *memory.Store
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	impls, err := dispatch.NewImplementations(upper{})
	if err != nil {
		t.Fatalf("NewImplementations: %v", err)
	}
	core := dispatch.New(catalog.BuildIndex(testConfig(), nil), impls, dispatch.WithWorkDir(t.TempDir()))
	env := &testEnv{
		catalog: &fakeCatalog{cfg: testConfig(), ready: true},
		prober:  &fakeProber{message: "Success - No transform."},
		store:   memory.New(0),
	}
	if cfg.EngineName == "" {
		cfg = DefaultConfig()
	}
	env.adapter = NewAdapter(env.catalog, core, env.prober, cfg, WithStore(env.store))
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.adapter.Handler().ServeHTTP(rec, req)
	return rec
}

// upload builds a multipart transform request. An empty body leaves out
// the file part.
func upload(t *testing.T, path, body string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if body != "" {
		fw, err := mw.CreateFormFile("file", "source.txt")
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, body)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("response has no error")
	}
	return resp.Error
}

func TestTransform(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(upload(t, "/transform", "hello", map[string]string{
		"sourceMimetype": "text/plain",
		"targetMimetype": "text/html",
		"page":           "1",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "HELLO" {
		t.Errorf("body = %q, want HELLO", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=transform.html" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/html" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q", got)
	}
	if env.adapter.InFlight().Len() != 0 {
		t.Errorf("transform still registered as running")
	}
}

func TestTransformFailures(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		fields      map[string]string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unknown option",
			body:        "hello",
			fields:      map[string]string{"sourceMimetype": "text/plain", "targetMimetype": "text/html", "foo": "1"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "No transforms for: text/plain -> text/html foo=1",
		},
		{
			name:        "missing file",
			fields:      map[string]string{"sourceMimetype": "text/plain", "targetMimetype": "text/html"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Required request part 'file' is not present",
		},
		{
			name:        "bad direct access url",
			fields:      map[string]string{"sourceMimetype": "text/plain", "targetMimetype": "text/html", "directAccessUrl": "ftp://x"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Direct Access Url is invalid.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			rec := env.do(upload(t, "/transform", tt.body, tt.fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Message; got != tt.wantMessage {
				t.Errorf("message = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestTransformRejectsNonMultipart(t *testing.T) {
	env := newTestEnv(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestTransformBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 400
	env := newTestEnv(t, cfg)
	rec := env.do(upload(t, "/transform", strings.Repeat("x", 2000), map[string]string{
		"sourceMimetype": "text/plain",
		"targetMimetype": "text/html",
	}))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestTestTransformRemapsOptions(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(upload(t, "/test", "hello", map[string]string{
		"sourceMimetype":  "text/plain",
		"targetMimetype":  "application/pdf",
		"_targetMimetype": "text/html",
		"name0":           "page",
		"value0":          "2",
		"name1":           "",
		"value1":          "ignored",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	entries := env.adapter.core.Logs().Entries()
	if len(entries) != 1 || entries[0].Options != "page=2" {
		t.Errorf("log entries = %+v", entries)
	}

	rec = env.do(upload(t, "/test", "hello", map[string]string{
		"sourceMimetype": "text/plain",
		"targetMimetype": "text/html",
		"name0":          "foo",
		"value0":         "1",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAsyncTransform(t *testing.T) {
	env := newTestEnv(t, Config{})
	ref, err := env.store.Save(context.Background(), strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	size := int64(5)
	body, _ := json.Marshal(api.TransformRequest{
		RequestID:       "req-1",
		SourceReference: ref,
		SourceMediaType: "text/plain",
		SourceSize:      &size,
		TargetMediaType: "text/html",
		TargetExtension: "html",
		ClientData:      "cd",
		InternalContext: &api.InternalContext{
			MultiStep: &api.MultiStep{InitialRequestID: "req-1", TransformsToBeDone: []string{}},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/transform/async", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var reply api.TransformReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.RequestID != "req-1" || reply.TargetReference == "" {
		t.Fatalf("reply = %+v", reply)
	}
	r, err := env.store.Retrieve(context.Background(), reply.TargetReference)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	defer r.Close()
	if data, _ := io.ReadAll(r); string(data) != "HELLO" {
		t.Errorf("target = %q", data)
	}
}

func TestAsyncTransformInvalidRequest(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/transform/async", strings.NewReader(`{"requestId": "r"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var reply api.TransformReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if !strings.Contains(reply.ErrorDetails, "sourceSize cannot be null") {
		t.Errorf("errorDetails = %q", reply.ErrorDetails)
	}

	req = httptest.NewRequest(http.MethodPost, "/transform/async", strings.NewReader(`{not json`))
	rec = env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/transform/async", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = env.do(req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestTransformConfigEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/transform/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cfg, err := catalog.ParseJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(cfg.Transformers) != 1 || cfg.Transformers[0].Name != "Upper" {
		t.Errorf("transformers = %+v", cfg.Transformers)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/transform/config?configVersion=two", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	env.catalog.ready = false
	rec = env.do(httptest.NewRequest(http.MethodGet, "/transform/config?configVersion=2", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestProbeEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "Success - No transform." {
		t.Errorf("ready = %d %q", rec.Code, rec.Body)
	}

	env.prober.err = &dispatch.TransformError{Status: http.StatusTooManyRequests, Message: "2 Live Probe: Transformer requested to die."}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("live status = %d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "requested to die") {
		t.Errorf("live body = %q", rec.Body)
	}
	if len(env.prober.live) != 2 || env.prober.live[0] || !env.prober.live[1] {
		t.Errorf("probes = %v, want [false true]", env.prober.live)
	}

	env.prober.err = errors.New("unexpected")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("live status = %d, want 500", rec.Code)
	}
}

func TestReadyBeforeCatalogLoaded(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.catalog.ready = false

	rec := env.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(env.prober.live) != 0 {
		t.Errorf("probe ran before the catalog was loaded")
	}
}

func TestVersionAndLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngineName = "wandel-test"
	cfg.CoreVersion = "5.1.9"
	env := newTestEnv(t, cfg)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	if got := rec.Body.String(); got != "wandel-test 5.1.9 available" {
		t.Errorf("version = %q", got)
	}

	env.do(upload(t, "/transform", "hello", map[string]string{"sourceMimetype": "text/plain", "targetMimetype": "text/html"}))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/log", nil))
	var entries []dispatch.Record
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding log: %v", err)
	}
	if len(entries) != 1 || entries[0].Transformer != "Upper" || entries[0].StatusCode != http.StatusOK {
		t.Errorf("log = %+v", entries)
	}
}

func TestTestPage(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"wandel Test Page", `action="/test"`, `<option value="text/html">`, `<option value="page">`, `name="value5"`} {
		if !strings.Contains(body, want) {
			t.Errorf("test page missing %q", want)
		}
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

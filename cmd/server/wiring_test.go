package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rhuss/wandel/pkg/config"
	"github.com/rhuss/wandel/pkg/storage/memory"
	"github.com/rhuss/wandel/pkg/transformers"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.StorageConfig{Type: "none"})
	if err != nil || s != nil {
		t.Errorf("none: store = %v, err = %v", s, err)
	}

	s, err = openStore(ctx, config.StorageConfig{Type: "memory", MaxSize: 3})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("memory: store = %T", s)
	}

	if _, err := openStore(ctx, config.StorageConfig{Type: "sfs", SFS: config.SFSConfig{URL: "http://sfs:8099"}}); err != nil {
		t.Errorf("sfs: %v", err)
	}
	if _, err := openStore(ctx, config.StorageConfig{Type: "tape"}); err == nil {
		t.Error("expected an error for an unknown store")
	}
}

func TestProbeConfigBuiltIn(t *testing.T) {
	cfg := config.Defaults()
	pc, err := probeConfig(&cfg)
	if err != nil {
		t.Fatalf("probeConfig: %v", err)
	}
	_, wantLength := transformers.ProbeOptions()
	if pc.SourceName != transformers.ProbeSourceName || pc.ExpectedLength != wantLength {
		t.Errorf("probe = %s, %d bytes", pc.SourceName, pc.ExpectedLength)
	}
	if pc.LivenessPercent != 150 || pc.MaxTransforms != 10000 {
		t.Errorf("limits = %d, %d", pc.LivenessPercent, pc.MaxTransforms)
	}
}

func TestProbeConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.html")
	os.WriteFile(path, []byte("<p>hi</p>"), 0o644)

	cfg := config.Defaults()
	cfg.Probe.SourceFile = path
	cfg.Probe.SourceMimetype = "text/html"
	cfg.Probe.TargetMimetype = "text/plain"
	cfg.Probe.ExpectedLength = 3

	pc, err := probeConfig(&cfg)
	if err != nil {
		t.Fatalf("probeConfig: %v", err)
	}
	if string(pc.Source) != "<p>hi</p>" || pc.SourceName != "probe.html" || pc.SourceMimetype != "text/html" {
		t.Errorf("probe = %+v", pc)
	}

	cfg.Probe.SourceFile = filepath.Join(t.TempDir(), "missing")
	if _, err := probeConfig(&cfg); err == nil {
		t.Error("expected an error for a missing probe source")
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.Defaults()
	mws, err := authMiddleware(&cfg)
	if err != nil || len(mws) != 0 {
		t.Fatalf("auth off: %d middleware, err = %v", len(mws), err)
	}

	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "k", Subject: "router"}}
	mws, err = authMiddleware(&cfg)
	if err != nil || len(mws) != 1 {
		t.Fatalf("apikey: %d middleware, err = %v", len(mws), err)
	}
	h := mws[0](http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	for path, want := range map[string]int{"/transform": http.StatusUnauthorized, "/ready": http.StatusOK} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transform", nil)
	req.Header.Set("Authorization", "Bearer k")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d", rec.Code)
	}

	cfg.Auth.Type = "jwt"
	if _, err := authMiddleware(&cfg); err == nil {
		t.Error("expected an error for jwt without a key")
	}
}

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestReadyAndLive(t *testing.T) {
	for _, path := range []string{"/ready", "/live"} {
		t.Run(path, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, testEnv.BaseURL()+path, nil)
			if err != nil {
				t.Fatal(err)
			}
			// Probes are public.
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			body := readBody(t, resp)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
			}
			if !strings.Contains(body, "Success") {
				t.Errorf("body = %q, want a success message", body)
			}
		})
	}
}

func TestTransformConfig(t *testing.T) {
	resp, err := http.Get(testEnv.BaseURL() + "/transform/config?configVersion=2")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var cfg struct {
		Transformers []struct {
			Name        string `json:"transformerName"`
			CoreVersion string `json:"coreVersion"`
		} `json:"transformers"`
	}
	decodeJSON(t, resp, &cfg)

	found := map[string]string{}
	for _, tr := range cfg.Transformers {
		found[tr.Name] = tr.CoreVersion
	}
	for _, name := range []string{"TxT2Pdf", "TextEncoding", "PassThrough"} {
		if _, ok := found[name]; !ok {
			t.Errorf("transformer %s missing from %v", name, found)
		}
	}
	if found["TxT2Pdf"] != coreVersion {
		t.Errorf("TxT2Pdf coreVersion = %q, want %q", found["TxT2Pdf"], coreVersion)
	}
}

func TestVersion(t *testing.T) {
	resp, err := http.Get(testEnv.BaseURL() + "/version")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, coreVersion) {
		t.Errorf("version = %q, want it to contain %s", body, coreVersion)
	}
}

func TestMetrics(t *testing.T) {
	// Make sure at least one request has been counted.
	readBody(t, getURL(t, "/version"))

	resp, err := http.Get(testEnv.BaseURL() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `route="GET /version"`) {
		t.Error("expected request metrics labelled with the route")
	}
}

func TestAuthRequired(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, testEnv.BaseURL()+"/log", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key, got %d", resp.StatusCode)
	}
	var errResp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if errResp.Error.Type != "unauthorized" {
		t.Errorf("error type = %q", errResp.Error.Type)
	}

	resp = getURL(t, "/log")
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a key, got %d", resp.StatusCode)
	}
}

// Command mock-engine runs a deterministic remote transform engine for
// testing catalog merging. It publishes a transform configuration and
// performs the transforms it declares with trivial text rewrites.
//
// Configuration:
//
//	MOCK_PORT         - Listen port (default: 9090)
//	MOCK_CONFIG       - Engine config file to publish instead of the built-in one
//	MOCK_CORE_VERSION - Core version stamped on the transformers (default: 5.1.9)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rhuss/wandel/pkg/catalog"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	coreVersion := os.Getenv("MOCK_CORE_VERSION")
	if coreVersion == "" {
		coreVersion = "5.1.9"
	}

	cfg, err := loadConfig(os.Getenv("MOCK_CONFIG"))
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	catalog.SetCoreVersion(&cfg, coreVersion)

	srv := &http.Server{Addr: ":" + port, Handler: newMux(cfg, coreVersion)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock engine starting", "port", port, "transformers", len(cfg.Transformers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock engine failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock engine shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// builtinConfig declares the transforms rewrite can perform.
const builtinConfig = `{
  "transformOptions": {
    "caseOptions": [{"value": {"name": "locale"}}]
  },
  "transformers": [
    {
      "transformerName": "MockUpper",
      "supportedSourceAndTargetList": [
        {"sourceMediaType": "text/plain", "targetMediaType": "text/x-upper", "priority": 40}
      ],
      "transformOptions": ["caseOptions"]
    },
    {
      "transformerName": "MockLower",
      "supportedSourceAndTargetList": [
        {"sourceMediaType": "text/plain", "targetMediaType": "text/x-lower", "maxSourceSizeBytes": 1048576}
      ]
    }
  ]
}`

func loadConfig(path string) (catalog.TransformConfig, error) {
	if path == "" {
		return catalog.ParseJSON([]byte(builtinConfig))
	}
	return catalog.ParseFile(path)
}

func newMux(cfg catalog.TransformConfig, coreVersion string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transform/config", func(w http.ResponseWriter, r *http.Request) {
		handleConfig(w, r, cfg)
	})
	mux.HandleFunc("POST /transform", handleTransform)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "mock-engine %s available", coreVersion)
	})
	ok := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Success - No transform.")
	}
	mux.HandleFunc("GET /ready", ok)
	mux.HandleFunc("GET /live", ok)
	return mux
}

// --- Handlers ---

func handleConfig(w http.ResponseWriter, r *http.Request, cfg catalog.TransformConfig) {
	version := 1
	if v := r.URL.Query().Get("configVersion"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &version); err != nil {
			http.Error(w, "invalid configVersion", http.StatusBadRequest)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(catalog.WithCoreVersion(cfg, version))
}

func handleTransform(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Required request part 'file' is not present", http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	target := r.FormValue("targetMimetype")
	out, ok := rewrite(r.FormValue("sourceMimetype"), target, string(data))
	if !ok {
		http.Error(w, fmt.Sprintf("No transforms for: %s -> %s", r.FormValue("sourceMimetype"), target), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", target)
	w.Header().Set("Content-Disposition", `attachment; filename="transform.txt"`)
	io.WriteString(w, out)
}

// rewrite performs the built-in transforms.
func rewrite(source, target, text string) (string, bool) {
	if source != "text/plain" {
		return "", false
	}
	switch target {
	case "text/x-upper":
		return strings.ToUpper(text), true
	case "text/x-lower":
		return strings.ToLower(text), true
	default:
		return "", false
	}
}

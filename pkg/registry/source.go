package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/debug"
)

// Declaration is one transform configuration and where it came from.
type Declaration struct {
	Config   catalog.TransformConfig
	ReadFrom string

	// BaseURL is the engine that executes the declared transformers, or
	// empty for pipeline definition files.
	BaseURL string
}

// Source supplies declarations on every reload.
type Source interface {
	Load(ctx context.Context) ([]Declaration, error)
}

// StaticSource is the configuration of the engine running in this
// process.
type StaticSource struct {
	Config      catalog.TransformConfig
	ReadFrom    string
	BaseURL     string
	CoreVersion string
}

// Load returns a copy of the configuration stamped with CoreVersion.
func (s *StaticSource) Load(_ context.Context) ([]Declaration, error) {
	cfg := s.Config.Clone()
	catalog.SetCoreVersion(&cfg, s.CoreVersion)
	return []Declaration{{Config: cfg, ReadFrom: s.ReadFrom, BaseURL: s.BaseURL}}, nil
}

// FileSource reads pipeline definition files. Patterns are glob patterns;
// a pattern without glob characters must name an existing file.
type FileSource struct {
	Patterns []string
}

// Load parses every matching .json, .yaml or .yml file in name order.
func (s *FileSource) Load(_ context.Context) ([]Declaration, error) {
	var decls []Declaration
	for _, pattern := range s.Patterns {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(paths) == 0 && !hasMeta(pattern) {
			return nil, fmt.Errorf("reading %s: %w", pattern, os.ErrNotExist)
		}
		sort.Strings(paths)
		for _, path := range paths {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".json", ".yaml", ".yml":
			default:
				continue
			}
			cfg, err := catalog.ParseFile(path)
			if err != nil {
				return nil, err
			}
			decls = append(decls, Declaration{Config: cfg, ReadFrom: filepath.Base(path)})
		}
	}
	return decls, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}

// EngineSource reads the configuration published by remote engines.
// Engines that cannot be reached are skipped so one failing engine does
// not hide the others.
type EngineSource struct {
	URLs   []string
	Client *http.Client
	Logger *slog.Logger
}

// ConfigPath is the endpoint engines publish their configuration on.
const ConfigPath = "/transform/config?configVersion=2"

// Load fetches every engine's configuration.
func (s *EngineSource) Load(ctx context.Context) ([]Declaration, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var decls []Declaration
	for _, u := range s.URLs {
		base := strings.TrimRight(u, "/")
		cfg, err := s.fetch(ctx, base)
		if err != nil {
			logger.Warn("engine config unavailable", "engine", base, "error", err)
			continue
		}
		debug.Log("catalog", "engine config loaded", "engine", base, "transformers", len(cfg.Transformers))
		decls = append(decls, Declaration{Config: cfg, ReadFrom: base, BaseURL: base})
	}
	return decls, nil
}

func (s *EngineSource) fetch(ctx context.Context, base string) (catalog.TransformConfig, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+ConfigPath, nil)
	if err != nil {
		return catalog.TransformConfig{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return catalog.TransformConfig{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return catalog.TransformConfig{}, fmt.Errorf("GET %s: %s", req.URL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return catalog.TransformConfig{}, err
	}
	return catalog.ParseJSON(data)
}

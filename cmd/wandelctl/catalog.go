package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/registry"
)

// catalogFlags name the declarations a command merges. Positional
// arguments are engine configuration files.
type catalogFlags struct {
	pipelines []string
	engines   []string
	verbose   bool
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.pipelines, "pipeline", "p", nil, "pipeline definition file or glob (repeatable)")
	cmd.Flags().StringArrayVarP(&f.engines, "engine", "e", nil, "base URL of a running engine to merge (repeatable)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log catalog processing to stderr")
}

// load merges the declarations. Each engine file is treated as the
// configuration of an engine at file://<path>.
func (f *catalogFlags) load(ctx context.Context, files []string, stderr io.Writer) (*registry.Snapshot, error) {
	if len(files) == 0 && len(f.pipelines) == 0 && len(f.engines) == 0 {
		return nil, fmt.Errorf("no declarations given: pass engine config files, --pipeline or --engine")
	}

	level := slog.LevelError + 1
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var sources []registry.Source
	for _, path := range files {
		cfg, err := catalog.ParseFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &registry.StaticSource{Config: cfg, ReadFrom: path, BaseURL: "file://" + path})
	}
	if len(f.pipelines) > 0 {
		sources = append(sources, &registry.FileSource{Patterns: f.pipelines})
	}
	if len(f.engines) > 0 {
		sources = append(sources, &registry.EngineSource{
			URLs:   f.engines,
			Client: &http.Client{Timeout: 30 * time.Second},
			Logger: logger,
		})
	}

	reg := registry.New(logger, sources...)
	if err := reg.Reload(ctx); err != nil {
		return nil, err
	}
	return reg.Snapshot(), nil
}

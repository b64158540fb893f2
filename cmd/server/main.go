// Command server runs a wandel transform engine.
//
// Configuration is read from a YAML file (-config, $WANDEL_CONFIG,
// ./config.yaml or /etc/wandel/config.yaml) and WANDEL_* environment
// variables, for example:
//
//	WANDEL_PORT         - Listen port (default: 8090)
//	WANDEL_ENGINE_URLS  - Comma separated engines whose transforms are merged in
//	WANDEL_CONFIG_PATHS - Comma separated pipeline definition globs
//	WANDEL_STORAGE      - File store: none, memory, postgres, minio, redis or sfs
//	WANDEL_KAFKA_CONFIG - Kafka consumer config; enable with WANDEL_MESSAGING_ENABLED=true
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/wandel/pkg/config"
	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/dispatch"
	"github.com/rhuss/wandel/pkg/messaging/kafka"
	"github.com/rhuss/wandel/pkg/probe"
	"github.com/rhuss/wandel/pkg/registry"
	"github.com/rhuss/wandel/pkg/transformers"
	transporthttp "github.com/rhuss/wandel/pkg/transport/http"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "5.1.9"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	obs := cfg.Observability
	debug.Init(obs.Debug, obs.LogLevel, obs.LogFormat)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coreVersion := cfg.Engine.CoreVersion
	if coreVersion == "" {
		coreVersion = version
	}
	baseURL := cfg.Engine.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening file store: %w", err)
	}
	if store != nil {
		defer store.Close()
		logger.Info("file store enabled", "type", cfg.Storage.Type)
	}

	// Catalog: this engine, PassThrough, pipeline files and remote engines.
	engineCfg, err := transformers.EngineConfig()
	if err != nil {
		return err
	}
	impls, err := dispatch.NewImplementations(transformers.All()...)
	if err != nil {
		return err
	}
	sources := []registry.Source{
		&registry.StaticSource{Config: engineCfg, ReadFrom: cfg.Engine.Name, BaseURL: baseURL, CoreVersion: coreVersion},
		&registry.StaticSource{Config: transformers.PassThroughConfig(engineCfg), ReadFrom: "PassThrough", CoreVersion: coreVersion},
	}
	if len(cfg.Catalog.ConfigPaths) > 0 {
		sources = append(sources, &registry.FileSource{Patterns: cfg.Catalog.ConfigPaths})
	}
	if len(cfg.Catalog.EngineURLs) > 0 {
		sources = append(sources, &registry.EngineSource{URLs: cfg.Catalog.EngineURLs, Logger: logger})
	}
	reg := registry.New(logger, sources...)
	if err := reg.Reload(ctx); err != nil {
		return err
	}
	if err := dispatch.CheckImplementations(reg.Snapshot().Origins, impls, baseURL); err != nil {
		return err
	}

	probeCfg, err := probeConfig(cfg)
	if err != nil {
		return err
	}
	prb := probe.New(probeCfg, logger)

	client := &http.Client{Timeout: cfg.Server.WriteTimeout}
	core := dispatch.New(reg, impls,
		dispatch.WithMonitor(prb),
		dispatch.WithWorkDir(cfg.Engine.WorkDir),
		dispatch.WithLogger(logger),
		dispatch.WithLocalBaseURL(baseURL),
		dispatch.WithForwarder(&dispatch.Forwarder{Client: client}),
	)
	fetcher := &dispatch.Fetcher{Client: client}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MaxBodySize = cfg.Server.MaxBodySize
	adapterCfg.EngineName = cfg.Engine.Name
	adapterCfg.CoreVersion = coreVersion
	adapter := transporthttp.NewAdapter(reg, core, prb, adapterCfg,
		transporthttp.WithStore(store),
		transporthttp.WithFetcher(fetcher),
	)

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	metricsPath := ""
	if obs.Metrics.Enabled {
		metricsPath = obs.Metrics.Path
	}
	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithLogger(logger),
		transporthttp.WithMiddleware(authMW...),
	)

	go reg.Run(ctx, cfg.Catalog.ReloadInterval)
	if p, ok := store.(purger); ok {
		go purge(ctx, p, logger)
	}

	var consumerErr chan error
	if cfg.Messaging.Enabled {
		kcfg, err := kafka.LoadConfig(cfg.Messaging.ConfigFile)
		if err != nil {
			return err
		}
		consumer, err := kafka.NewConsumer(kcfg, core, store, kafka.WithLogger(logger), kafka.WithFetcher(fetcher))
		if err != nil {
			return err
		}
		defer consumer.Close()
		consumerErr = make(chan error, 1)
		go func() { consumerErr <- consumer.Run(ctx) }()
		logger.Info("kafka consumer started", "brokers", kcfg.Brokers, "topic", kcfg.RequestTopic)
	}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()
	logger.Info("engine starting",
		"name", cfg.Engine.Name,
		"port", cfg.Server.Port,
		"core_version", coreVersion,
		"transformers", len(reg.Snapshot().Config.Transformers))

	// A failing consumer takes the server down with it.
	select {
	case err = <-srvErr:
	case err = <-consumerErr:
		stop()
		if serr := <-srvErr; err == nil {
			err = serr
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("engine stopped")
	return nil
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// purge removes expired files from stores with a retention once an hour.
func purge(ctx context.Context, p purger, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logger.Warn("purging expired files failed", "error", err)
				continue
			}
			debug.Log("storage", "expired files purged", "count", n)
		}
	}
}

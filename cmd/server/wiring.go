package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rhuss/wandel/pkg/auth"
	"github.com/rhuss/wandel/pkg/auth/apikey"
	"github.com/rhuss/wandel/pkg/auth/jwt"
	"github.com/rhuss/wandel/pkg/config"
	"github.com/rhuss/wandel/pkg/probe"
	"github.com/rhuss/wandel/pkg/storage"
	"github.com/rhuss/wandel/pkg/storage/memory"
	"github.com/rhuss/wandel/pkg/storage/minio"
	"github.com/rhuss/wandel/pkg/storage/postgres"
	"github.com/rhuss/wandel/pkg/storage/redis"
	"github.com/rhuss/wandel/pkg/storage/sfs"
	"github.com/rhuss/wandel/pkg/transformers"
	"github.com/rhuss/wandel/pkg/transport"
)

// openStore returns the configured shared file store, or nil for "none".
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.FileStore, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "memory":
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
			Retention:      cfg.Postgres.Retention,
		})
	case "minio":
		m := cfg.Minio
		return minio.New(ctx, minio.Config{
			Endpoint:     m.Endpoint,
			AccessKey:    m.AccessKey,
			SecretKey:    m.SecretKey,
			Bucket:       m.Bucket,
			Region:       m.Region,
			UseSSL:       m.UseSSL,
			CreateBucket: m.CreateBucket,
		})
	case "redis":
		r := cfg.Redis
		return redis.New(ctx, redis.Config{Addr: r.Addr, Password: r.Password, DB: r.DB, TTL: r.TTL})
	case "sfs":
		return sfs.New(cfg.SFS.URL)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// probeConfig uses the built-in probe transform unless a source file is
// configured.
func probeConfig(cfg *config.Config) (probe.Config, error) {
	p := cfg.Probe
	pc := probe.Config{
		SourceMimetype:                 p.SourceMimetype,
		TargetMimetype:                 p.TargetMimetype,
		ExpectedLength:                 p.ExpectedLength,
		PlusOrMinus:                    p.PlusOrMinus,
		LivenessPercent:                p.LivenessPercent,
		MaxTransforms:                  p.MaxTransforms,
		MaxTransformSeconds:            p.MaxTransformSeconds,
		LivenessTransformEnabled:       p.LivenessTransformEnabled,
		LivenessTransformPeriodSeconds: p.LivenessTransformPeriodSeconds,
		WorkDir:                        cfg.Engine.WorkDir,
	}
	if p.SourceFile == "" {
		pc.Source = transformers.ProbeSource()
		pc.SourceName = transformers.ProbeSourceName
		pc.SourceMimetype = "text/plain"
		pc.TargetMimetype = "text/plain"
		pc.Options, pc.ExpectedLength = transformers.ProbeOptions()
		pc.PlusOrMinus = 0
		return pc, nil
	}

	data, err := os.ReadFile(p.SourceFile)
	if err != nil {
		return probe.Config{}, fmt.Errorf("reading probe source: %w", err)
	}
	pc.Source = data
	pc.SourceName = filepath.Base(p.SourceFile)
	return pc, nil
}

// authMiddleware returns nothing when auth is off and no limit is set.
func authMiddleware(cfg *config.Config) ([]transport.Middleware, error) {
	a := cfg.Auth
	if a.Type == "none" && !a.RateLimit.Enabled() {
		return nil, nil
	}

	var authenticators []auth.Authenticator
	switch a.Type {
	case "apikey":
		keys := make([]apikey.Key, len(a.APIKeys))
		for i, k := range a.APIKeys {
			keys[i] = apikey.Key{Key: k.Key, Subject: k.Subject, Tenant: k.Tenant, Tier: k.Tier}
		}
		authenticators = append(authenticators, apikey.New(keys))
	case "jwt":
		j := a.JWT
		authn, err := jwt.New(jwt.Config{
			Issuer:        j.Issuer,
			Audience:      j.Audience,
			PublicKeyFile: j.PublicKeyFile,
			Secret:        j.Secret,
			SubjectClaim:  j.SubjectClaim,
			TenantClaim:   j.TenantClaim,
			TierClaim:     j.TierClaim,
			Leeway:        j.Leeway,
		})
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, authn)
	}
	chain := auth.NewChain(a.Type == "none", authenticators...)

	var limiter auth.RateLimiter
	if a.RateLimit.Enabled() {
		limits := auth.Limits{Default: a.RateLimit.DefaultRPM, Tiers: a.RateLimit.Tiers}
		if a.RateLimit.Backend == "redis" {
			r := cfg.Storage.Redis
			client := goredis.NewClient(&goredis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
			limiter = auth.NewRedisLimiter(client, limits)
		} else {
			limiter = auth.NewWindowLimiter(limits)
		}
	}

	public := append([]string(nil), auth.DefaultPublicPaths...)
	if cfg.Observability.Metrics.Enabled && cfg.Observability.Metrics.Path != "/metrics" {
		public = append(public, cfg.Observability.Metrics.Path)
	}
	return []transport.Middleware{auth.Middleware(chain, limiter, public)}, nil
}

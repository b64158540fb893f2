package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate checks the configuration for required fields and valid values.
// Every problem is reported, each with its field path.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize < 0 {
		fail("server.max_body_size must not be negative")
	}
	if c.Engine.Name == "" {
		fail("engine.name is required")
	}
	if c.Engine.BaseURL != "" {
		if u, err := url.Parse(c.Engine.BaseURL); err != nil || u.Host == "" {
			fail("engine.base_url %q is not an absolute URL", c.Engine.BaseURL)
		}
	}
	for i, u := range c.Catalog.EngineURLs {
		if p, err := url.Parse(u); err != nil || p.Host == "" {
			fail("catalog.engine_urls[%d] %q is not an absolute URL", i, u)
		}
	}
	if c.Catalog.ReloadInterval < 0 {
		fail("catalog.reload_interval must not be negative")
	}

	if c.Probe.SourceFile != "" && (c.Probe.SourceMimetype == "" || c.Probe.TargetMimetype == "") {
		fail("probe.source_mimetype and probe.target_mimetype are required with probe.source_file")
	}

	s := c.Storage
	switch s.Type {
	case "none", "memory":
	case "postgres":
		if s.Postgres.DSN == "" && s.Postgres.DSNFile == "" {
			fail("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	case "minio":
		if s.Minio.Endpoint == "" {
			fail("storage.minio.endpoint is required when storage.type is \"minio\"")
		}
	case "redis":
		if s.Redis.Addr == "" {
			fail("storage.redis.addr is required when storage.type is \"redis\"")
		}
	case "sfs":
		if s.SFS.URL == "" {
			fail("storage.sfs.url is required when storage.type is \"sfs\"")
		}
	default:
		fail("storage.type must be one of none, memory, postgres, minio, redis or sfs, got %q", s.Type)
	}

	if c.Messaging.Enabled {
		if c.Messaging.ConfigFile == "" {
			fail("messaging.config_file is required when messaging is enabled")
		}
		if s.Type == "none" {
			fail("messaging needs a shared file store, storage.type is \"none\"")
		}
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			fail("auth.api_keys is required when auth.type is \"apikey\"")
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				fail("auth.api_keys[%d] needs a key or key_file", i)
			}
		}
	case "jwt":
		j := c.Auth.JWT
		if j.Secret == "" && j.SecretFile == "" && j.PublicKeyFile == "" {
			fail("auth.jwt needs a secret, secret_file or public_key_file")
		}
	default:
		fail("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type)
	}
	if c.Auth.RateLimit.Enabled() {
		switch c.Auth.RateLimit.Backend {
		case "memory":
		case "redis":
			if s.Redis.Addr == "" {
				fail("storage.redis.addr is required for the redis rate limiter")
			}
		default:
			fail("auth.rate_limit.backend must be \"memory\" or \"redis\", got %q", c.Auth.RateLimit.Backend)
		}
	}

	o := c.Observability
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, o.LogLevel) {
		fail("observability.log_level must be debug, info, warn or error, got %q", o.LogLevel)
	}
	if o.LogFormat != "text" && o.LogFormat != "json" {
		fail("observability.log_format must be \"text\" or \"json\", got %q", o.LogFormat)
	}
	if o.Metrics.Enabled && o.Metrics.Path == "" {
		fail("observability.metrics.path is required when metrics are enabled")
	}

	return errors.Join(errs...)
}

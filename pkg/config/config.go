// Package config provides unified configuration for a wandel engine.
//
// Configuration is loaded in layers, each overriding the one before:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. WANDEL_* environment variables
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// The Kafka consumer has its own configuration file, named by
// messaging.config_file.
package config

import "time"

// Config holds all configuration for a wandel engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Probe         ProbeConfig         `yaml:"probe"`
	Storage       StorageConfig       `yaml:"storage"`
	Messaging     MessagingConfig     `yaml:"messaging"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8090
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 60s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 15m, transforms can be slow
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 512MB
}

// EngineConfig identifies this engine.
type EngineConfig struct {
	Name        string `yaml:"name"`         // default: "wandel"
	CoreVersion string `yaml:"core_version"` // default: the build's version
	WorkDir     string `yaml:"work_dir"`     // default: os.TempDir()

	// BaseURL is how routers reach this engine. It identifies the
	// engine's own transformers in the catalog.
	BaseURL string `yaml:"base_url"` // default: "http://localhost:<port>"
}

// CatalogConfig lists the declarations merged with the engine's own.
type CatalogConfig struct {
	ConfigPaths    []string      `yaml:"config_paths"`    // pipeline definition globs
	EngineURLs     []string      `yaml:"engine_urls"`     // remote engines to merge
	ReloadInterval time.Duration `yaml:"reload_interval"` // default: 60s, 0 disables
}

// ProbeConfig overrides the health probe transform and its limits. With
// no source file the built-in probe is used.
type ProbeConfig struct {
	SourceFile     string `yaml:"source_file"`
	SourceMimetype string `yaml:"source_mimetype"`
	TargetMimetype string `yaml:"target_mimetype"`
	ExpectedLength int64  `yaml:"expected_length"`
	PlusOrMinus    int64  `yaml:"plus_or_minus"`

	LivenessPercent                int   `yaml:"liveness_percent"`                  // default: 150
	MaxTransforms                  int64 `yaml:"max_transforms"`                    // default: 10000
	MaxTransformSeconds            int64 `yaml:"max_transform_seconds"`             // default: 900
	LivenessTransformEnabled       bool  `yaml:"liveness_transform_enabled"`        // default: false
	LivenessTransformPeriodSeconds int64 `yaml:"liveness_transform_period_seconds"` // default: 600
}

// StorageConfig selects the shared file store used by asynchronous
// requests.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // none, memory, postgres, minio, redis or sfs; default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory store file count, default: 1000
	Postgres PostgresConfig `yaml:"postgres"`
	Minio    MinioConfig    `yaml:"minio"`
	Redis    RedisConfig    `yaml:"redis"`
	SFS      SFSConfig      `yaml:"sfs"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	DSNFile        string        `yaml:"dsn_file"`
	MaxConns       int32         `yaml:"max_conns"` // default: 25
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	Retention      time.Duration `yaml:"retention"`
}

// MinioConfig holds S3-compatible object store settings.
type MinioConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKey     string `yaml:"secret_key"`
	SecretKeyFile string `yaml:"secret_key_file"`
	Bucket        string `yaml:"bucket"` // default: "wandel"
	Region        string `yaml:"region"`
	UseSSL        bool   `yaml:"use_ssl"`
	CreateBucket  bool   `yaml:"create_bucket"`
}

// RedisConfig holds Redis settings, shared by the file store and the
// rate limiter.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
}

// SFSConfig points at a shared file store service.
type SFSConfig struct {
	URL string `yaml:"url"`
}

// MessagingConfig enables the Kafka request consumer.
type MessagingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConfigFile string `yaml:"config_file"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"` // none, apikey or jwt; default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"`
	Subject string `yaml:"subject" json:"subject"`
	Tenant  string `yaml:"tenant" json:"tenant"`
	Tier    string `yaml:"tier" json:"tier"`
}

// JWTConfig configures JWT verification.
type JWTConfig struct {
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	PublicKeyFile string        `yaml:"public_key_file"`
	Secret        string        `yaml:"secret"`
	SecretFile    string        `yaml:"secret_file"`
	SubjectClaim  string        `yaml:"subject_claim"`
	TenantClaim   string        `yaml:"tenant_claim"`
	TierClaim     string        `yaml:"tier_claim"`
	Leeway        time.Duration `yaml:"leeway"`
}

// RateLimitConfig limits requests per caller. A zero default_rpm with no
// tiers disables limiting.
type RateLimitConfig struct {
	Backend    string         `yaml:"backend"` // memory or redis; default: "memory"
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// Enabled reports whether any limit is configured.
func (c RateLimitConfig) Enabled() bool {
	return c.DefaultRPM > 0 || len(c.Tiers) > 0
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	Metrics   MetricsConfig `yaml:"metrics"`
	Debug     string        `yaml:"debug"`      // debug categories, e.g. "dispatch,catalog" or "all"
	LogLevel  string        `yaml:"log_level"`  // debug, info, warn or error; default: "info"
	LogFormat string        `yaml:"log_format"` // text or json; default: "text"
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    15 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     512 << 20,
		},
		Engine: EngineConfig{
			Name: "wandel",
		},
		Catalog: CatalogConfig{
			ReloadInterval: 60 * time.Second,
		},
		Probe: ProbeConfig{
			LivenessPercent:                150,
			MaxTransforms:                  10000,
			MaxTransformSeconds:            900,
			LivenessTransformPeriodSeconds: 600,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			Minio: MinioConfig{
				Bucket: "wandel",
			},
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				Backend: "memory",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WANDEL_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WANDEL_CONFIG env, ./config.yaml, /etc/wandel/config.yaml)
//  3. WANDEL_* environment variables
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the first of: configPath, $WANDEL_CONFIG,
// ./config.yaml and /etc/wandel/config.yaml that is set or exists. An
// empty result means defaults and environment only.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/wandel/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses the file over cfg, so fields the file leaves out
// keep their defaults.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envVar binds one environment variable, named without the prefix, to a
// config field.
type envVar struct {
	name string
	set  func(cfg *Config, value string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*field(cfg) = out
		return nil
	}
}

func integer[T int | int32 | int64](field func(*Config) *T) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(cfg) = T(n)
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envVars = []envVar{
	{"PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"MAX_BODY_SIZE", integer(func(c *Config) *int64 { return &c.Server.MaxBodySize })},
	{"SHUTDOWN_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"ENGINE_NAME", str(func(c *Config) *string { return &c.Engine.Name })},
	{"CORE_VERSION", str(func(c *Config) *string { return &c.Engine.CoreVersion })},
	{"WORK_DIR", str(func(c *Config) *string { return &c.Engine.WorkDir })},
	{"BASE_URL", str(func(c *Config) *string { return &c.Engine.BaseURL })},
	{"CONFIG_PATHS", list(func(c *Config) *[]string { return &c.Catalog.ConfigPaths })},
	{"ENGINE_URLS", list(func(c *Config) *[]string { return &c.Catalog.EngineURLs })},
	{"RELOAD_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Catalog.ReloadInterval })},
	{"LIVENESS_PERCENT", integer(func(c *Config) *int { return &c.Probe.LivenessPercent })},
	{"MAX_TRANSFORMS", integer(func(c *Config) *int64 { return &c.Probe.MaxTransforms })},
	{"MAX_TRANSFORM_SECONDS", integer(func(c *Config) *int64 { return &c.Probe.MaxTransformSeconds })},
	{"LIVENESS_TRANSFORM_ENABLED", boolean(func(c *Config) *bool { return &c.Probe.LivenessTransformEnabled })},
	{"LIVENESS_TRANSFORM_PERIOD_SECONDS", integer(func(c *Config) *int64 { return &c.Probe.LivenessTransformPeriodSeconds })},
	{"STORAGE", str(func(c *Config) *string { return &c.Storage.Type })},
	{"STORAGE_SIZE", integer(func(c *Config) *int { return &c.Storage.MaxSize })},
	{"POSTGRES_DSN", str(func(c *Config) *string { return &c.Storage.Postgres.DSN })},
	{"MINIO_ENDPOINT", str(func(c *Config) *string { return &c.Storage.Minio.Endpoint })},
	{"MINIO_ACCESS_KEY", str(func(c *Config) *string { return &c.Storage.Minio.AccessKey })},
	{"MINIO_SECRET_KEY", str(func(c *Config) *string { return &c.Storage.Minio.SecretKey })},
	{"MINIO_BUCKET", str(func(c *Config) *string { return &c.Storage.Minio.Bucket })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Storage.Redis.Addr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Storage.Redis.Password })},
	{"SFS_URL", str(func(c *Config) *string { return &c.Storage.SFS.URL })},
	{"MESSAGING_ENABLED", boolean(func(c *Config) *bool { return &c.Messaging.Enabled })},
	{"KAFKA_CONFIG", str(func(c *Config) *string { return &c.Messaging.ConfigFile })},
	{"AUTH_TYPE", str(func(c *Config) *string { return &c.Auth.Type })},
	{"JWT_SECRET", str(func(c *Config) *string { return &c.Auth.JWT.Secret })},
	{"JWT_PUBLIC_KEY_FILE", str(func(c *Config) *string { return &c.Auth.JWT.PublicKeyFile })},
	{"DEBUG", str(func(c *Config) *string { return &c.Observability.Debug })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Observability.LogLevel })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Observability.LogFormat })},
	{"API_KEYS", func(c *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return err
		}
		c.Auth.APIKeys = keys
		return nil
	}},
}

// applyEnvOverrides sets every field whose variable is present. A value
// that does not parse is an error naming the variable.
func applyEnvOverrides(cfg *Config) error {
	for _, ev := range envVars {
		v, ok := os.LookupEnv(EnvPrefix + ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}

// resolveFileReferences reads each _file field into its value field when
// the value is not already set.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"storage.minio.access_key_file", cfg.Storage.Minio.AccessKeyFile, &cfg.Storage.Minio.AccessKey},
		{"storage.minio.secret_key_file", cfg.Storage.Minio.SecretKeyFile, &cfg.Storage.Minio.SecretKey},
		{"storage.redis.password_file", cfg.Storage.Redis.PasswordFile, &cfg.Storage.Redis.Password},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, struct {
			name  string
			file  string
			value *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

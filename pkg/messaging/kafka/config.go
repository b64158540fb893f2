package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default queue names used by the content repository.
const (
	DefaultRequestTopic = "org.alfresco.transform.engine.wandel.acs"
	DefaultReplyTopic   = "org.alfresco.transform.t-reply.acs"
)

type Config struct {
	Brokers      []string `koanf:"brokers"`
	RequestTopic string   `koanf:"request_topic"`
	ReplyTopic   string   `koanf:"reply_topic"`
	GroupID      string   `koanf:"group_id"`
	ClientID     string   `koanf:"client_id"`
	StartFrom    string   `koanf:"start_from"` // oldest|newest (default newest)
	Version      string   `koanf:"version"`
	TLSEn        bool     `koanf:"tls_enabled"`
	SASLUser     string   `koanf:"sasl_user"`
	SASLPass     string   `koanf:"sasl_pass"`

	// RetryBackoff is the pause before a consumer group session is
	// rejoined after an error.
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `WANDEL_KAFKA__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("WANDEL_KAFKA__", "__", envKey), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

// envKey maps WANDEL_KAFKA__REQUEST_TOPIC to request_topic.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "WANDEL_KAFKA__"))
}

func applyDefaults(c *Config) {
	if c.RequestTopic == "" {
		c.RequestTopic = DefaultRequestTopic
	}
	if c.ReplyTopic == "" {
		c.ReplyTopic = DefaultReplyTopic
	}
	if c.GroupID == "" {
		c.GroupID = "wandel"
	}
	if c.ClientID == "" {
		c.ClientID = "wandel"
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if c.StartFrom != "oldest" && c.StartFrom != "newest" {
		errs = append(errs, fmt.Errorf("kafka: start_from must be oldest or newest, got %q", c.StartFrom))
	}
	return errors.Join(errs...)
}

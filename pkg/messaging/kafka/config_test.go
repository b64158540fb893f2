package kafka

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.yaml")
	yaml := `schema_version: v1
brokers: [a:9092, b:9092]
request_topic: requests
start_from: oldest
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WANDEL_KAFKA__GROUP_ID", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if strings.Join(cfg.Brokers, ",") != "a:9092,b:9092" {
		t.Errorf("brokers = %v", cfg.Brokers)
	}
	if cfg.RequestTopic != "requests" || cfg.ReplyTopic != DefaultReplyTopic {
		t.Errorf("topics = %q, %q", cfg.RequestTopic, cfg.ReplyTopic)
	}
	if cfg.GroupID != "from-env" {
		t.Errorf("group = %q, want from-env", cfg.GroupID)
	}
	if cfg.StartFrom != "oldest" || cfg.Version != "2.8.0" || cfg.RetryBackoff != 2*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.yaml")
	if err := os.WriteFile(path, []byte("schema_version: v2\nbrokers: [a:9092]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "v2") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "broker") {
		t.Errorf("err = %v, want a missing broker error", err)
	}
}

func TestSaramaConfig(t *testing.T) {
	cfg := Config{Brokers: []string{"a:9092"}, SASLUser: "u", SASLPass: "p", StartFrom: "oldest"}
	applyDefaults(&cfg)
	sc, err := saramaConfig(cfg)
	if err != nil {
		t.Fatalf("saramaConfig: %v", err)
	}
	if !sc.Net.SASL.Enable || sc.Net.SASL.User != "u" {
		t.Errorf("SASL not configured")
	}
	if !sc.Producer.Return.Successes {
		t.Errorf("sync producer needs Return.Successes")
	}

	cfg.Version = "not-a-version"
	if _, err := saramaConfig(cfg); err == nil {
		t.Errorf("expected a version error")
	}
}

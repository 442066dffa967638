package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hub.BaseURL != "https://huggingface.co" {
		t.Fatalf("unexpected default base url: %s", cfg.Hub.BaseURL)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Dir != "data/records" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Harvest.Workers != 1 {
		t.Fatalf("expected sequential default, got %d workers", cfg.Harvest.Workers)
	}
	if got := cfg.HTTPTimeout(); got != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", got)
	}
	if got := cfg.FetchDelay(); got != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s delay, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
hub:
  base_url: https://hub.example.org
  user_agent: test-agent
http:
  timeout_seconds: 45
harvest:
  workers: 4
  min_likes: 3
store:
  backend: postgres
db:
  dsn: postgres://localhost/harvest
  table: model_records
blobs:
  backend: gcs
  gcs_bucket: readme-bucket
headless:
  enabled: true
  max_parallel: 2
server:
  enabled: true
  port: 9090
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.BaseURL != "https://hub.example.org" || cfg.Hub.UserAgent != "test-agent" {
		t.Fatalf("expected hub overrides to apply: %+v", cfg.Hub)
	}
	if cfg.Harvest.Workers != 4 || cfg.Harvest.MinLikes != 3 {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if cfg.Store.Backend != "postgres" || cfg.DB.Table != "model_records" {
		t.Fatalf("expected postgres store config: %+v %+v", cfg.Store, cfg.DB)
	}
	if cfg.Blobs.Backend != "gcs" || cfg.Blobs.GCSBucket != "readme-bucket" {
		t.Fatalf("expected gcs blob config: %+v", cfg.Blobs)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 9090 {
		t.Fatalf("expected status server config: %+v", cfg.Server)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Hub:     HubConfig{BaseURL: "https://huggingface.co"},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Harvest: HarvestConfig{Workers: 1},
		Store:   StoreConfig{Backend: "file", Dir: "data/records"},
		Blobs:   BlobsConfig{Backend: "local", Dir: "data/readmes"},
		Server:  ServerConfig{Port: 8080},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.Hub.BaseURL = "" }, "hub.base_url"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"invalid workers", func(c *Config) { c.Harvest.Workers = 0 }, "harvest.workers"},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "s3" }, "store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }, "db.dsn"},
		{"gcs without bucket", func(c *Config) { c.Blobs.Backend = "gcs" }, "blobs.gcs_bucket"},
		{
			"headless without parallelism",
			func(c *Config) { c.Headless = HeadlessConfig{Enabled: true} },
			"headless.max_parallel",
		},
		{
			"publish without topic",
			func(c *Config) { c.Publish = PublishConfig{Enabled: true, ProjectID: "p"} },
			"publish.project_id and publish.topic",
		},
		{
			"server without port",
			func(c *Config) { c.Server = ServerConfig{Enabled: true} },
			"server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate, got %v", err)
	}
}

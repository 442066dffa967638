// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Hub         HubConfig         `mapstructure:"hub"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Harvest     HarvestConfig     `mapstructure:"harvest"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Store       StoreConfig       `mapstructure:"store"`
	DB          DBConfig          `mapstructure:"db"`
	Blobs       BlobsConfig       `mapstructure:"blobs"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Publish     PublishConfig     `mapstructure:"publish"`
	Server      ServerConfig      `mapstructure:"server"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HubConfig names the catalog site being harvested.
type HubConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ModelsPath string `mapstructure:"models_path"`
	UserAgent  string `mapstructure:"user_agent"`
}

// HTTPConfig configures the HTTP client behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HarvestConfig governs the run driver.
type HarvestConfig struct {
	Workers  int `mapstructure:"workers"`
	DelayMs  int `mapstructure:"delay_ms"`
	MinLikes int `mapstructure:"min_likes"`
}

// CatalogConfig locates the persisted identifier catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects and parameterizes the record store backend.
type StoreConfig struct {
	Backend     string   `mapstructure:"backend"`
	Dir         string   `mapstructure:"dir"`
	ExtraShards []string `mapstructure:"extra_shards"`
}

// DBConfig controls access to the Postgres record store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// BlobsConfig selects the README blob store backend.
type BlobsConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// HeadlessConfig configures the chromedp fallback fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// PublishConfig holds metadata for record-completion notifications.
type PublishConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CredentialsConfig locates the opaque cookie file, if any.
type CredentialsConfig struct {
	CookieFile string `mapstructure:"cookie_file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HUBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("hub.base_url", "https://huggingface.co")
	v.SetDefault("hub.models_path", "/models")
	v.SetDefault("hub.user_agent", "hubharvest/0.1 (+https://github.com/hubharvest/hubharvest)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("harvest.workers", 1)
	v.SetDefault("harvest.delay_ms", 2500)
	v.SetDefault("harvest.min_likes", 0)
	v.SetDefault("catalog.path", "data/catalog.txt")
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "data/records")
	v.SetDefault("db.table", "records")
	v.SetDefault("blobs.backend", "local")
	v.SetDefault("blobs.dir", "data/readmes")
	v.SetDefault("blobs.prefix", "readmes")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("publish.enabled", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("credentials.cookie_file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Hub.BaseURL == "" {
		return fmt.Errorf("hub.base_url must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	switch c.Store.Backend {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir must be set for the file backend")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Blobs.Backend {
	case "local":
		if c.Blobs.Dir == "" {
			return fmt.Errorf("blobs.dir must be set for the local backend")
		}
	case "gcs":
		if c.Blobs.GCSBucket == "" {
			return fmt.Errorf("blobs.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown blobs.backend %q", c.Blobs.Backend)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Publish.Enabled && (c.Publish.ProjectID == "" || c.Publish.Topic == "") {
		return fmt.Errorf("publish.project_id and publish.topic must be set when publishing is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FetchDelay converts the per-fetch delay into a duration.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.Harvest.DelayMs) * time.Millisecond
}

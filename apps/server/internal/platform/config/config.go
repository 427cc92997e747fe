// Package config loads service configuration from defaults, an optional YAML
// file and MIRROR_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MIRROR_STORE_BUCKET.
const EnvPrefix = "MIRROR"

// Storage backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendFS    = "fs"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Store    StoreConfig    `mapstructure:"store"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Runs     RunsConfig     `mapstructure:"runs"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// GitHubConfig selects how the source repository is reached and authenticated.
// Exactly one token source is used, in this order: App installation, plain
// token, KMS ciphertext, Secrets Manager secret.
type GitHubConfig struct {
	APIURL          string `mapstructure:"api_url"`
	Token           string `mapstructure:"token"`
	TokenCiphertext string `mapstructure:"token_ciphertext"`
	TokenSecretID   string `mapstructure:"token_secret_id"`
	TokenSecretKey  string `mapstructure:"token_secret_key"`
	AppID           int64  `mapstructure:"app_id"`
	InstallationID  int64  `mapstructure:"installation_id"`
	PrivateKeyPath  string `mapstructure:"private_key_path"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
}

// UsesApp reports whether GitHub App credentials are configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID != 0 && g.InstallationID != 0 && g.PrivateKeyPath != ""
}

// StoreConfig configures the destination object store.
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Root      string `mapstructure:"root"`
}

// SyncConfig tunes reconciliation runs.
type SyncConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// Archive also stores a <sha>.tar.gz snapshot of every reconciled commit.
	Archive bool `mapstructure:"archive"`
}

// PostgresConfig enables the Postgres run store when URL is set.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig enables the Redis delivery guard when Addr is set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DeliveryTTL time.Duration `mapstructure:"delivery_ttl"`
}

// RunsConfig sizes the in-memory fallbacks used without Postgres or Redis.
type RunsConfig struct {
	MemorySize     int `mapstructure:"memory_size"`
	DeliveryMemory int `mapstructure:"delivery_memory"`
}

// OTelConfig controls OpenTelemetry export.
type OTelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port": "8080",

		"github.api_url":          "",
		"github.token":            "",
		"github.token_ciphertext": "",
		"github.token_secret_id":  "",
		"github.token_secret_key": "",
		"github.app_id":           0,
		"github.installation_id":  0,
		"github.private_key_path": "",
		"github.webhook_secret":   "",

		"store.backend":    BackendS3,
		"store.bucket":     "",
		"store.prefix":     "",
		"store.region":     "us-east-1",
		"store.endpoint":   "",
		"store.access_key": "",
		"store.secret_key": "",
		"store.use_ssl":    true,
		"store.root":       "",

		"sync.concurrency": 8,
		"sync.timeout":     "5m",
		"sync.archive":     false,

		"postgres.url": "",

		"redis.addr":         "",
		"redis.password":     "",
		"redis.db":           0,
		"redis.delivery_ttl": "24h",

		"runs.memory_size":     500,
		"runs.delivery_memory": 10000,

		"otel.enabled":      false,
		"otel.service_name": "s3mirror",
		"otel.endpoint":     "",
	}
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendS3, BackendMinio:
		if c.Store.Bucket == "" {
			errs = append(errs, fmt.Errorf("store.bucket is required for the %s backend", c.Store.Backend))
		}
		if c.Store.Backend == BackendMinio && c.Store.Endpoint == "" {
			errs = append(errs, errors.New("store.endpoint is required for the minio backend"))
		}
	case BackendFS:
		if c.Store.Root == "" {
			errs = append(errs, errors.New("store.root is required for the fs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of s3, minio, fs", c.Store.Backend))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency))
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, errors.New("sync.timeout must be positive"))
	}
	return errors.Join(errs...)
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Download    DownloadConfig    `yaml:"download"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Grok        GrokConfig        `yaml:"grok"`
	Database    DatabaseConfig    `yaml:"database"`
	ColdStorage ColdStorageConfig `yaml:"cold_storage"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" envconfig:"SERVER_ENABLED"`
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds the media tree layout and retention policy.
type StorageConfig struct {
	Root            string `yaml:"root" envconfig:"STORAGE_ROOT"`
	RetentionDays   int    `yaml:"retention_days" envconfig:"STORAGE_RETENTION_DAYS"`
	CleanupSchedule string `yaml:"cleanup_schedule" envconfig:"STORAGE_CLEANUP_SCHEDULE"`
	CleanupEnabled  bool   `yaml:"cleanup_enabled" envconfig:"STORAGE_CLEANUP_ENABLED"`
}

// DownloadConfig holds transfer constraints for media downloads.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	MaxRetries    int           `yaml:"max_retries" envconfig:"DOWNLOAD_MAX_RETRIES"`
	MaxFileSize   int64         `yaml:"max_file_size" envconfig:"DOWNLOAD_MAX_FILE_SIZE"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	Concurrency   int           `yaml:"concurrency" envconfig:"DOWNLOAD_CONCURRENCY"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// UpstreamConfig holds the post lookup endpoints used to resolve video URLs.
// Empty values fall back to the public x.com endpoints.
type UpstreamConfig struct {
	SyndicationURL     string        `yaml:"syndication_url" envconfig:"UPSTREAM_SYNDICATION_URL"`
	GuestActivateURL   string        `yaml:"guest_activate_url" envconfig:"UPSTREAM_GUEST_ACTIVATE_URL"`
	GraphQLURL         string        `yaml:"graphql_url" envconfig:"UPSTREAM_GRAPHQL_URL"`
	TweetResultQueryID string        `yaml:"tweet_result_query_id" envconfig:"UPSTREAM_TWEET_RESULT_QUERY_ID"`
	BearerToken        string        `yaml:"bearer_token" envconfig:"UPSTREAM_BEARER_TOKEN"`
	GuestToken         string        `yaml:"guest_token" envconfig:"UPSTREAM_GUEST_TOKEN"`
	GuestTokenTTL      time.Duration `yaml:"guest_token_ttl" envconfig:"UPSTREAM_GUEST_TOKEN_TTL"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" envconfig:"UPSTREAM_REQUESTS_PER_SECOND"`
	Burst              int           `yaml:"burst" envconfig:"UPSTREAM_BURST"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"UPSTREAM_TIMEOUT"`
}

// ScannerConfig holds completion scanner configuration.
type ScannerConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"SCANNER_ENABLED"`
	Interval       time.Duration `yaml:"interval" envconfig:"SCANNER_INTERVAL"`
	ErrorPause     time.Duration `yaml:"error_pause" envconfig:"SCANNER_ERROR_PAUSE"`
	AIBatchSize    int           `yaml:"ai_batch_size" envconfig:"SCANNER_AI_BATCH_SIZE"`
	MediaBatchSize int           `yaml:"media_batch_size" envconfig:"SCANNER_MEDIA_BATCH_SIZE"`
	StopTimeout    time.Duration `yaml:"stop_timeout" envconfig:"SCANNER_STOP_TIMEOUT"`
}

// GrokConfig holds Grok AI configuration. An empty APIKey disables analysis.
type GrokConfig struct {
	APIKey  string        `yaml:"api_key" envconfig:"GROK_API_KEY"`
	BaseURL string        `yaml:"base_url" envconfig:"GROK_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"GROK_TIMEOUT"`
	Model   string        `yaml:"model" envconfig:"GROK_MODEL"`
}

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"DATABASE_DRIVER"`
	DSN    string `yaml:"dsn" envconfig:"DATABASE_DSN"`
}

// ColdStorageConfig enables copying media to S3 before retention cleanup deletes it.
type ColdStorageConfig struct {
	Bucket   string `yaml:"bucket" envconfig:"COLD_STORAGE_BUCKET"`
	Region   string `yaml:"region" envconfig:"COLD_STORAGE_REGION"`
	Endpoint string `yaml:"endpoint" envconfig:"COLD_STORAGE_ENDPOINT"`
	Prefix   string `yaml:"prefix" envconfig:"COLD_STORAGE_PREFIX"`
}

// Enabled reports whether a bucket is configured.
func (c *ColdStorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// Default returns the built-in configuration that the file and the
// environment are layered over.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         9847,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Root:            "/data/media",
			RetentionDays:   90,
			CleanupSchedule: "0 3 * * *",
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			MaxRetries:    3,
			MaxFileSize:   100 << 20, // 100MB
			RetryDelay:    time.Second,
			MaxRetryDelay: 30 * time.Second,
			Concurrency:   5,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Upstream: UpstreamConfig{
			GuestTokenTTL:     time.Hour,
			RequestsPerSecond: 2,
			Burst:             4,
			Timeout:           15 * time.Second,
		},
		Scanner: ScannerConfig{
			Enabled:        true,
			Interval:       300 * time.Second,
			ErrorPause:     30 * time.Second,
			AIBatchSize:    10,
			MediaBatchSize: 20,
			StopTimeout:    25 * time.Second,
		},
		Grok: GrokConfig{
			BaseURL: "https://api.x.ai/v1",
			Timeout: 30 * time.Second,
			Model:   "grok-3-mini",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "/data/mediagrabba.db",
		},
		ColdStorage: ColdStorageConfig{
			Region: "us-east-1",
			Prefix: "media",
		},
	}
}

// Load layers the YAML file over Default, then environment variables over
// both. Fields carry no envconfig defaults, so unset variables leave file
// values intact.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT is required")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("STORAGE_RETENTION_DAYS must be >= 0")
	}
	if c.Server.Enabled && c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required when the HTTP server is enabled")
	}
	if c.Download.MaxRetries < 1 {
		return fmt.Errorf("DOWNLOAD_MAX_RETRIES must be >= 1")
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("DOWNLOAD_CONCURRENCY must be >= 1")
	}
	if c.Download.MaxFileSize <= 0 {
		return fmt.Errorf("DOWNLOAD_MAX_FILE_SIZE must be > 0")
	}
	if c.Scanner.Interval <= 0 || c.Scanner.ErrorPause <= 0 {
		return fmt.Errorf("scanner interval and error pause must be positive")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (sqlite, postgres or memory)", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

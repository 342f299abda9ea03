package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			APIKey:  "test-api-key",
		},
		Storage: StorageConfig{
			Root:          "/data/media",
			RetentionDays: 30,
		},
		Download: DownloadConfig{
			MaxRetries:  3,
			Concurrency: 5,
			MaxFileSize: 100 << 20,
		},
		Scanner: ScannerConfig{
			Interval:   300 * time.Second,
			ErrorPause: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "/tmp/test.db",
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing storage root", func(c *Config) { c.Storage.Root = "" }},
		{"negative retention", func(c *Config) { c.Storage.RetentionDays = -1 }},
		{"missing api key", func(c *Config) { c.Server.APIKey = "" }},
		{"zero retries", func(c *Config) { c.Download.MaxRetries = 0 }},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }},
		{"zero max size", func(c *Config) { c.Download.MaxFileSize = 0 }},
		{"zero interval", func(c *Config) { c.Scanner.Interval = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestConfig_Validate_APIKeyOptionalWithoutServer(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Enabled = false
	cfg.Server.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() should pass with server disabled, got %v", err)
	}
}

func TestConfig_Validate_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{Driver: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.Server.APIKey)
	}
	if cfg.Download.Timeout != 30*time.Second {
		t.Errorf("Download.Timeout = %v, want 30s", cfg.Download.Timeout)
	}
	if cfg.Download.MaxRetries != 3 {
		t.Errorf("Download.MaxRetries = %d, want 3", cfg.Download.MaxRetries)
	}
	if cfg.Download.MaxFileSize != 100*1024*1024 {
		t.Errorf("Download.MaxFileSize = %d, want 100MB", cfg.Download.MaxFileSize)
	}
	if cfg.Download.RetryDelay != time.Second {
		t.Errorf("Download.RetryDelay = %v, want 1s", cfg.Download.RetryDelay)
	}
	if cfg.Download.Concurrency != 5 {
		t.Errorf("Download.Concurrency = %d, want 5", cfg.Download.Concurrency)
	}
	if cfg.Scanner.Interval != 300*time.Second {
		t.Errorf("Scanner.Interval = %v, want 300s", cfg.Scanner.Interval)
	}
	if cfg.Scanner.ErrorPause != 30*time.Second {
		t.Errorf("Scanner.ErrorPause = %v, want 30s", cfg.Scanner.ErrorPause)
	}
	if cfg.Storage.CleanupSchedule != "0 3 * * *" {
		t.Errorf("Storage.CleanupSchedule = %q", cfg.Storage.CleanupSchedule)
	}
	if cfg.ColdStorage.Enabled() {
		t.Error("cold storage should be disabled by default")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  api_key: file-key
cold_storage:
  bucket: archive-bucket
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOWNLOAD_CONCURRENCY", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", cfg.Server.APIKey)
	}
	if cfg.Download.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8 from env", cfg.Download.Concurrency)
	}
	if !cfg.ColdStorage.Enabled() || cfg.ColdStorage.Bucket != "archive-bucket" {
		t.Errorf("ColdStorage = %+v", cfg.ColdStorage)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  api_key: file-key
scanner:
  interval: 60s
  media_batch_size: 50
download:
  max_retries: 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SCANNER_ERROR_PAUSE", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scanner.Interval != 60*time.Second {
		t.Errorf("Scanner.Interval = %v, want 60s from file", cfg.Scanner.Interval)
	}
	if cfg.Scanner.MediaBatchSize != 50 {
		t.Errorf("Scanner.MediaBatchSize = %d, want 50 from file", cfg.Scanner.MediaBatchSize)
	}
	if cfg.Download.MaxRetries != 7 {
		t.Errorf("Download.MaxRetries = %d, want 7 from file", cfg.Download.MaxRetries)
	}
	if cfg.Scanner.ErrorPause != 5*time.Second {
		t.Errorf("Scanner.ErrorPause = %v, want 5s from env", cfg.Scanner.ErrorPause)
	}
	if cfg.Scanner.AIBatchSize != 10 {
		t.Errorf("Scanner.AIBatchSize = %d, want default 10", cfg.Scanner.AIBatchSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  api_key: file-key
scanner:
  interval: 60s
upstream:
  guest_token: file-token
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SCANNER_INTERVAL", "90s")
	t.Setenv("UPSTREAM_GUEST_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scanner.Interval != 90*time.Second {
		t.Errorf("Scanner.Interval = %v, want 90s from env", cfg.Scanner.Interval)
	}
	if cfg.Upstream.GuestToken != "env-token" {
		t.Errorf("Upstream.GuestToken = %q, want env-token", cfg.Upstream.GuestToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9847}
	if got := cfg.Address(); got != "127.0.0.1:9847" {
		t.Errorf("Address() = %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `stakeflow:
  name: "TestApp"
  version: "1.0"
stream:
  url: "ws://localhost:8765"
  dial_timeout_ms: 1000
  write_timeout_ms: 1000
  heartbeat_interval_ms: 1000
  reconnect_delay_ms: 2000
rates:
  url: "https://api.example.com/v1"
  api_key: "test-key"
  target_currency: "EUR"
  request_timeout_ms: 5000
  requests_per_minute: 10
  cache_ttl_seconds: 3600
redis:
  url: "redis://localhost:6379/0"
retry:
  message_ttl_seconds: 60
processor:
  max_failures: 3
logging:
  level: "info"
  format: "json"
  output: "stdout"
`

// writeTempConfig writes content to a temporary file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func clearOverrides(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"REQUESTS_WS_URL", "FREECURRENCYAPI_URL", "FREECURRENCYAPI_KEY",
		"REDIS_URL", "CACHE_TTL_SECONDS", "RETRY_MESSAGE_TTL", "APP_ENV",
	} {
		t.Setenv(env, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearOverrides(t)

	cfg, err := LoadConfig(writeTempConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stakeflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Stakeflow.Name)
	}
	if cfg.Stream.URL != "ws://localhost:8765" {
		t.Errorf("unexpected stream url: %s", cfg.Stream.URL)
	}
	if cfg.Rates.TargetCurrency != "EUR" {
		t.Errorf("unexpected target currency: %s", cfg.Rates.TargetCurrency)
	}
	if cfg.Rates.Burst != 1 {
		t.Errorf("burst default = %d, want 1", cfg.Rates.Burst)
	}
	if cfg.Retry.MessageTTLSeconds != 60 {
		t.Errorf("unexpected retry ttl: %d", cfg.Retry.MessageTTLSeconds)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearOverrides(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("REQUESTS_WS_URL", "ws://peer.example.com:9000")
	t.Setenv("FREECURRENCYAPI_KEY", "override-key")
	t.Setenv("REDIS_URL", "redis://cache.example.com:6379/1")
	t.Setenv("CACHE_TTL_SECONDS", "120")
	t.Setenv("RETRY_MESSAGE_TTL", "15")

	cfg, err := LoadConfig(writeTempConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stream.URL != "ws://peer.example.com:9000" {
		t.Errorf("stream url override ignored: %s", cfg.Stream.URL)
	}
	if cfg.Rates.APIKey != "override-key" {
		t.Errorf("api key override ignored: %s", cfg.Rates.APIKey)
	}
	if cfg.Redis.URL != "redis://cache.example.com:6379/1" {
		t.Errorf("redis url override ignored: %s", cfg.Redis.URL)
	}
	if cfg.Rates.CacheTTLSeconds != 120 {
		t.Errorf("cache ttl override ignored: %d", cfg.Rates.CacheTTLSeconds)
	}
	if cfg.Retry.MessageTTLSeconds != 15 {
		t.Errorf("retry ttl override ignored: %d", cfg.Retry.MessageTTLSeconds)
	}
}

func TestLoadConfigInvalidEnvOverride(t *testing.T) {
	clearOverrides(t)
	t.Setenv("CACHE_TTL_SECONDS", "not-a-number")

	if _, err := LoadConfig(writeTempConfig(t, validConfig)); err == nil {
		t.Fatal("expected error for invalid CACHE_TTL_SECONDS")
	}
}

func TestValidateConfigFailures(t *testing.T) {
	clearOverrides(t)

	cases := map[string]struct {
		from string
		to   string
	}{
		"bad stream scheme": {
			from: `url: "ws://localhost:8765"`,
			to:   `url: "http://localhost:8765"`,
		},
		"bad currency": {
			from: `target_currency: "EUR"`,
			to:   `target_currency: "EURO"`,
		},
		"bad redis scheme": {
			from: `url: "redis://localhost:6379/0"`,
			to:   `url: "tcp://localhost:6379"`,
		},
		"zero heartbeat": {
			from: `heartbeat_interval_ms: 1000`,
			to:   `heartbeat_interval_ms: 0`,
		},
		"zero retry ttl": {
			from: `message_ttl_seconds: 60`,
			to:   `message_ttl_seconds: 0`,
		},
		"missing api key": {
			from: `api_key: "test-key"`,
			to:   `api_key: ""`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			content := strings.Replace(validConfig, tc.from, tc.to, 1)
			if content == validConfig {
				t.Fatalf("mutation %q not applied", tc.from)
			}
			if _, err := LoadConfig(writeTempConfig(t, content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTargetCurrencyNormalized(t *testing.T) {
	clearOverrides(t)

	content := strings.Replace(validConfig, `target_currency: "EUR"`, `target_currency: " eur "`, 1)
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Rates.TargetCurrency != "EUR" {
		t.Errorf("target currency = %q, want EUR", cfg.Rates.TargetCurrency)
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	envPaths := map[string]string{
		environmentProduction: "config/config.production.yml",
	}

	t.Setenv("APP_ENV", "prod")
	if got := resolveEnvSpecificPath("config/config.yml", "config/config.yml", envPaths); got != "config/config.production.yml" {
		t.Errorf("default path not swapped: %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", "config/config.yml", envPaths); got != "custom.yml" {
		t.Errorf("custom path overridden: %s", got)
	}

	t.Setenv("APP_ENV", "development")
	if got := resolveEnvSpecificPath("config/config.yml", "config/config.yml", envPaths); got != "config/config.yml" {
		t.Errorf("development swapped unexpectedly: %s", got)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "stag")
	if got := AppEnvironment(); got != EnvironmentStaging {
		t.Errorf("env = %s, want %s", got, EnvironmentStaging)
	}
	t.Setenv("APP_ENV", "")
	if got := AppEnvironment(); got != EnvironmentDevelopment {
		t.Errorf("env = %s, want %s", got, EnvironmentDevelopment)
	}
}

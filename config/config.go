package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Stakeflow  StakeflowConfig  `yaml:"stakeflow"`
	Stream     StreamConfig     `yaml:"stream"`
	Rates      RatesConfig      `yaml:"rates"`
	Redis      RedisConfig      `yaml:"redis"`
	Retry      RetryConfig      `yaml:"retry"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type StakeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type StreamConfig struct {
	URL                 string `yaml:"url"`
	DialTimeoutMs       int    `yaml:"dial_timeout_ms"`
	WriteTimeoutMs      int    `yaml:"write_timeout_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
	ReconnectDelayMs    int    `yaml:"reconnect_delay_ms"`
}

type RatesConfig struct {
	URL               string `yaml:"url"`
	APIKey            string `yaml:"api_key"`
	TargetCurrency    string `yaml:"target_currency"`
	RequestTimeoutMs  int    `yaml:"request_timeout_ms"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Burst             int    `yaml:"burst"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RetryConfig struct {
	MessageTTLSeconds int `yaml:"message_ttl_seconds"`
	MaxEntries        int `yaml:"max_entries"`
}

type ProcessorConfig struct {
	MaxFailures int `yaml:"max_failures"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type CloudWatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

type LoggingConfig struct {
	Level                 string `yaml:"level"`
	Format                string `yaml:"format"`
	Output                string `yaml:"output"`
	MaxAge                int    `yaml:"max_age"`
	ReportIntervalSeconds int    `yaml:"report_interval_seconds"`
}

const defaultConfigPath = "config/config.yml"

// configEnvPaths maps application environments to their dedicated
// configuration files. The default path is swapped for the environment
// specific one only when the caller did not ask for a custom file.
var configEnvPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, configEnvPaths)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Rates: RatesConfig{
			TargetCurrency: "EUR",
			Burst:          1,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override settings from environment variables if available
	if v := os.Getenv("REQUESTS_WS_URL"); v != "" {
		config.Stream.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FREECURRENCYAPI_URL"); v != "" {
		config.Rates.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FREECURRENCYAPI_KEY"); v != "" {
		config.Rates.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Redis.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid CACHE_TTL_SECONDS '%s': %w", v, err)
		}
		config.Rates.CacheTTLSeconds = ttl
	}
	if v := os.Getenv("RETRY_MESSAGE_TTL"); v != "" {
		ttl, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_MESSAGE_TTL '%s': %w", v, err)
		}
		config.Retry.MessageTTLSeconds = ttl
	}

	config.Rates.TargetCurrency = strings.ToUpper(strings.TrimSpace(config.Rates.TargetCurrency))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Stakeflow.Name == "" {
		return fmt.Errorf("stakeflow.name is required")
	}

	if cfg.Stakeflow.Version == "" {
		return fmt.Errorf("stakeflow.version is required")
	}

	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if !isValidStreamURL(cfg.Stream.URL) {
		return fmt.Errorf("stream.url '%s' must use ws or wss scheme", cfg.Stream.URL)
	}
	if cfg.Stream.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("stream.heartbeat_interval_ms must be greater than 0")
	}
	if cfg.Stream.ReconnectDelayMs <= 0 {
		return fmt.Errorf("stream.reconnect_delay_ms must be greater than 0")
	}

	if cfg.Rates.URL == "" {
		return fmt.Errorf("rates.url is required")
	}
	if cfg.Rates.APIKey == "" {
		return fmt.Errorf("rates.api_key is required")
	}
	if !isValidCurrency(cfg.Rates.TargetCurrency) {
		return fmt.Errorf("rates.target_currency '%s' is invalid", cfg.Rates.TargetCurrency)
	}
	if cfg.Rates.RequestsPerMinute <= 0 {
		return fmt.Errorf("rates.requests_per_minute must be greater than 0")
	}
	if cfg.Rates.CacheTTLSeconds <= 0 {
		return fmt.Errorf("rates.cache_ttl_seconds must be greater than 0")
	}

	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if !strings.HasPrefix(cfg.Redis.URL, "redis://") && !strings.HasPrefix(cfg.Redis.URL, "rediss://") {
		return fmt.Errorf("redis.url '%s' must use redis or rediss scheme", cfg.Redis.URL)
	}

	if cfg.Retry.MessageTTLSeconds <= 0 {
		return fmt.Errorf("retry.message_ttl_seconds must be greater than 0")
	}
	if cfg.Retry.MaxEntries < 0 {
		return fmt.Errorf("retry.max_entries must not be negative")
	}

	if cfg.Processor.MaxFailures < 0 {
		return fmt.Errorf("processor.max_failures must not be negative")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

var currencyRegexp = regexp.MustCompile(`^[A-Z]{3}$`)

func isValidCurrency(code string) bool {
	return currencyRegexp.MatchString(code)
}

func isValidStreamURL(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}

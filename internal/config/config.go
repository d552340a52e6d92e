package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataBaseURL = "https://cdn.jsdelivr.net/gh/Basalt49re/AssistData@updated"

	defaultExternalHTTPTimeout        = 30 * time.Second
	defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
)

type Config struct {
	DataBaseURL string `yaml:"data_base_url"`
	DBPath      string `yaml:"db_path"`
	ListenAddr  string `yaml:"listen_addr"`
	ExportDir   string `yaml:"export_dir"`
	LogLevel    string `yaml:"log_level"`

	ExternalHTTPTimeoutSeconds int     `yaml:"external_http_timeout_seconds"`
	FetchMaxAttempts           int     `yaml:"fetch_max_attempts"`
	FetchBackoffMS             int     `yaml:"fetch_backoff_ms"`
	FetchRatePerSecond         float64 `yaml:"fetch_rate_per_second"`
	FetchConcurrency           int     `yaml:"fetch_concurrency"`
	CacheTTLHours              int     `yaml:"cache_ttl_hours"`
	RefreshSchedule            string  `yaml:"refresh_schedule"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`
}

// Load reads CONFIG_PATH (default config.yaml) when present, applies
// environment overrides and defaults, then validates.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", configPath, err)
	}

	envOverride(&cfg.DataBaseURL, "DATA_BASE_URL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.ExportDir, "EXPORT_DIR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverrideAllowEmpty(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
		{&cfg.FetchMaxAttempts, "FETCH_MAX_ATTEMPTS"},
		{&cfg.FetchBackoffMS, "FETCH_BACKOFF_MS"},
		{&cfg.FetchConcurrency, "FETCH_CONCURRENCY"},
		{&cfg.CacheTTLHours, "CACHE_TTL_HOURS"},
	}
	for _, o := range ints {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return Config{}, err
		}
	}
	if err := envOverrideFloat(&cfg.FetchRatePerSecond, "FETCH_RATE_PER_SECOND"); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = DefaultDataBaseURL
	}
	cfg.DataBaseURL = strings.TrimRight(cfg.DataBaseURL, "/")
	if cfg.DBPath == "" {
		cfg.DBPath = "./transfer-helper.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "./exports"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.FetchMaxAttempts == 0 {
		cfg.FetchMaxAttempts = 3
	}
	if cfg.FetchBackoffMS == 0 {
		cfg.FetchBackoffMS = 500
	}
	if cfg.FetchRatePerSecond == 0 {
		cfg.FetchRatePerSecond = 5
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.CacheTTLHours == 0 {
		cfg.CacheTTLHours = 24
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-5"
	}
}

func (c Config) Validate() error {
	if !strings.HasPrefix(c.DataBaseURL, "http://") && !strings.HasPrefix(c.DataBaseURL, "https://") {
		return fmt.Errorf("invalid data_base_url '%s': must be an http(s) URL", c.DataBaseURL)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("invalid fetch_max_attempts '%d': must be >= 1", c.FetchMaxAttempts)
	}
	if c.FetchBackoffMS < 0 {
		return fmt.Errorf("invalid fetch_backoff_ms '%d': must be >= 0", c.FetchBackoffMS)
	}
	if c.FetchRatePerSecond < 0 {
		return fmt.Errorf("invalid fetch_rate_per_second '%g': must be >= 0", c.FetchRatePerSecond)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("invalid fetch_concurrency '%d': must be >= 1", c.FetchConcurrency)
	}
	if c.CacheTTLHours < 0 {
		return fmt.Errorf("invalid cache_ttl_hours '%d': must be >= 0", c.CacheTTLHours)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level '%s': must be debug, info, warn or error", c.LogLevel)
	}
	if c.RefreshSchedule != "" {
		if _, err := ParseSchedule(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh_schedule '%s': %w", c.RefreshSchedule, err)
		}
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return errors.New("slack_bot_token and slack_channel_id must be set together")
	}
	return nil
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.FetchBackoffMS) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

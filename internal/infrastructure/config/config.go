package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Slack          SlackConfig          `yaml:"slack"`
	Reconnect      ReconnectConfig      `yaml:"reconnect"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds HTTP server settings for health and metrics.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SlackConfig holds chat connection settings.
type SlackConfig struct {
	BotToken    string  `yaml:"bot_token"`
	APIURL      string  `yaml:"api_url"`
	TypingSpeed float64 `yaml:"typing_speed"` // characters per second used to pace replies
	PageLimit   int     `yaml:"page_limit"`   // maximum pages fetched per paginated command
}

// ReconnectConfig controls the wait between stream reconnects.
type ReconnectConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// RetryConfig controls retries of transient Web API failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig guards the Web API transport.
type CircuitBreakerConfig struct {
	MaxFailures       int           `yaml:"max_failures"`
	Cooldown          time.Duration `yaml:"cooldown"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Load from file if exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := parse(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.overrideFromEnv()
	cfg.applyDefaults()

	if strings.TrimSpace(cfg.Slack.BotToken) == "" {
		return nil, &domainerrors.ConfigError{Field: "slack.bot_token"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// parse expands environment variables in data and decodes it into cfg.
func parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// overrideFromEnv overrides config values from environment variables.
func (c *Config) overrideFromEnv() {
	// Server
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	// Slack
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_API_URL"); v != "" {
		c.Slack.APIURL = v
	}
	if v := os.Getenv("SLACK_TYPING_SPEED"); v != "" {
		if speed, err := strconv.ParseFloat(v, 64); err == nil {
			c.Slack.TypingSpeed = speed
		}
	}
	if v := os.Getenv("SLACK_PAGE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.Slack.PageLimit = limit
		}
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// applyDefaults sets default values for unset config options.
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	// Slack defaults
	if c.Slack.APIURL == "" {
		c.Slack.APIURL = "https://slack.com/api"
	}
	if c.Slack.TypingSpeed == 0 {
		c.Slack.TypingSpeed = 100
	}
	if c.Slack.PageLimit == 0 {
		c.Slack.PageLimit = 9001
	}

	// Reconnect defaults
	if c.Reconnect.InitialBackoff == 0 {
		c.Reconnect.InitialBackoff = 500 * time.Millisecond
	}
	if c.Reconnect.MaxBackoff == 0 {
		c.Reconnect.MaxBackoff = 60 * time.Second
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = 1.5
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = 200 * time.Millisecond
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = 5 * time.Second
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}

	// Circuit breaker defaults
	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = 5
	}
	if c.CircuitBreaker.Cooldown == 0 {
		c.CircuitBreaker.Cooldown = 30 * time.Second
	}
	if c.CircuitBreaker.HalfOpenSuccesses == 0 {
		c.CircuitBreaker.HalfOpenSuccesses = 2
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

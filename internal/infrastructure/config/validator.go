package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// reloadableKeys defines the whitelist of configuration keys that can be hot-reloaded.
var reloadableKeys = map[string]bool{
	"logging.level":      true,
	"slack.typing_speed": true,
}

// staticKeys defines configuration keys that require application restart.
var staticKeys = map[string]string{
	"server":           "HTTP listener restart required",
	"logging.format":   "log handler recreation required",
	"slack.bot_token":  "stream handshake with the new token required",
	"slack.api_url":    "Web API client recreation required",
	"slack.page_limit": "Web API client recreation required",
	"reconnect":        "connection recreation required",
	"retry":            "Web API client recreation required",
	"circuit_breaker":  "Web API client recreation required",
}

// IsReloadable returns true if the given config key can be hot-reloaded.
func IsReloadable(key string) bool {
	return reloadableKeys[key]
}

// getRestartReason returns the reason why a static config key requires restart.
func getRestartReason(key string) string {
	if reason, ok := staticKeys[key]; ok {
		return reason
	}
	return "unknown configuration requires restart"
}

// ValidateLogLevel checks if the log level is valid.
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	return nil
}

// ValidateLogFormat checks if the log format is valid.
func ValidateLogFormat(format string) error {
	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[strings.ToLower(format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
	return nil
}

// ValidateNonEmpty checks if a string is non-empty.
func ValidateNonEmpty(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateDuration checks if a duration is greater than zero.
func ValidateDuration(duration time.Duration, fieldName string) error {
	if duration <= 0 {
		return fmt.Errorf("%s must be greater than 0", fieldName)
	}
	return nil
}

// ValidatePort checks if a port number is valid.
func ValidatePort(port int, fieldName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", fieldName, port)
	}
	return nil
}

// ValidatePositive checks if a number is greater than zero.
func ValidatePositive[T int | float64](value T, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%s must be greater than 0", fieldName)
	}
	return nil
}

// ValidateAPIURL checks that the Web API base URL is an absolute http(s) URL.
func ValidateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("slack.api_url is not a valid URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("slack.api_url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// Validate performs comprehensive validation on the configuration.
// Returns an error if any validation fails.
func (c *Config) Validate() error {
	var errors []string

	// Server validation
	if err := ValidatePort(c.Server.Port, "server.port"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateDuration(c.Server.ReadTimeout, "server.read_timeout"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateDuration(c.Server.WriteTimeout, "server.write_timeout"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateDuration(c.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		errors = append(errors, err.Error())
	}

	// Slack validation
	if err := ValidateNonEmpty(c.Slack.BotToken, "slack.bot_token"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateAPIURL(c.Slack.APIURL); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidatePositive(c.Slack.TypingSpeed, "slack.typing_speed"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidatePositive(c.Slack.PageLimit, "slack.page_limit"); err != nil {
		errors = append(errors, err.Error())
	}

	// Reconnect validation
	if err := ValidateDuration(c.Reconnect.InitialBackoff, "reconnect.initial_backoff"); err != nil {
		errors = append(errors, err.Error())
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		errors = append(errors, "reconnect.max_backoff must not be less than reconnect.initial_backoff")
	}
	if c.Reconnect.Multiplier < 1 {
		errors = append(errors, "reconnect.multiplier must be at least 1")
	}

	// Retry validation
	if err := ValidatePositive(c.Retry.MaxAttempts, "retry.max_attempts"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateDuration(c.Retry.InitialInterval, "retry.initial_interval"); err != nil {
		errors = append(errors, err.Error())
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		errors = append(errors, "retry.max_interval must not be less than retry.initial_interval")
	}
	if c.Retry.Multiplier < 1 {
		errors = append(errors, "retry.multiplier must be at least 1")
	}

	// Circuit breaker validation
	if err := ValidatePositive(c.CircuitBreaker.MaxFailures, "circuit_breaker.max_failures"); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateDuration(c.CircuitBreaker.Cooldown, "circuit_breaker.cooldown"); err != nil {
		errors = append(errors, err.Error())
	}

	// Logging validation
	if err := ValidateLogLevel(c.Logging.Level); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateLogFormat(c.Logging.Format); err != nil {
		errors = append(errors, err.Error())
	}

	// Return all validation errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", joinErrors(errors))
	}

	return nil
}

// joinErrors joins multiple error messages with newlines and bullets.
func joinErrors(errors []string) string {
	if len(errors) == 0 {
		return ""
	}
	result := errors[0]
	for i := 1; i < len(errors); i++ {
		result += "\n  - " + errors[i]
	}
	return result
}

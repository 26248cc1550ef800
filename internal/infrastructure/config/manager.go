package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
)

// ErrRequiresRestart is returned by TryReload when the file changed keys
// that only take effect after a restart. Reloadable keys are still applied.
var ErrRequiresRestart = errors.New("configuration change requires restart")

// ReloadFunc observes an applied reload. It receives the previous and the
// new configuration; the new value is shared and must not be modified.
type ReloadFunc func(old, updated *Config)

// ConfigManager owns the live configuration and reloads its whitelisted
// keys when the file changes.
type ConfigManager struct {
	path     string
	logger   logger.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []ReloadFunc
}

// NewConfigManager wraps an already loaded configuration.
func NewConfigManager(path string, initial *Config, l logger.Logger) *ConfigManager {
	if l == nil {
		l = logger.Nop{}
	}
	return &ConfigManager{
		path:     path,
		logger:   l,
		debounce: 250 * time.Millisecond,
		current:  initial,
	}
}

// OnReload registers fn to run after each applied reload.
func (m *ConfigManager) OnReload(fn ReloadFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Get returns the live configuration.
func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// TryReload re-reads the file and applies reloadable changes. Invalid files
// leave the live configuration untouched.
func (m *ConfigManager) TryReload() error {
	loaded, err := Load(m.path)
	if err != nil {
		return fmt.Errorf("reloading %s: %w", m.path, err)
	}

	m.mu.Lock()
	old := m.current
	changed := Diff(old, loaded)
	if len(changed) == 0 {
		m.mu.Unlock()
		m.logger.Debug("configuration unchanged", "path", m.path)
		return nil
	}

	updated := *old
	var applied, static []string
	for _, key := range changed {
		if !IsReloadable(key) {
			static = append(static, key)
			continue
		}
		applied = append(applied, key)
		switch key {
		case "logging.level":
			updated.Logging.Level = loaded.Logging.Level
		case "slack.typing_speed":
			updated.Slack.TypingSpeed = loaded.Slack.TypingSpeed
		}
	}
	if len(applied) > 0 {
		m.current = &updated
	}
	callbacks := append([]ReloadFunc(nil), m.callbacks...)
	m.mu.Unlock()

	if len(applied) > 0 {
		m.logger.Info("configuration reloaded", "keys", applied)
		for _, fn := range callbacks {
			fn(old, &updated)
		}
	}

	if len(static) > 0 {
		for _, key := range static {
			m.logger.Warn("configuration change ignored until restart",
				"key", key,
				"reason", getRestartReason(key),
			)
		}
		return ErrRequiresRestart
	}
	return nil
}

// Watch reloads the configuration whenever the file is written or replaced.
// It watches the parent directory so editors that swap the file are seen.
// Watch returns when ctx ends.
func (m *ConfigManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(m.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}
	m.logger.Info("watching configuration", "path", target)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(m.debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			if err := m.TryReload(); err != nil && !errors.Is(err, ErrRequiresRestart) {
				m.logger.Error("configuration reload failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("configuration watcher error", "error", err)
		}
	}
}

// Diff lists the keys whose values differ between a and b, sorted.
// Grouped sections report their section name.
func Diff(a, b *Config) []string {
	var keys []string
	add := func(key string, differs bool) {
		if differs {
			keys = append(keys, key)
		}
	}

	add("server", a.Server != b.Server)
	add("slack.bot_token", a.Slack.BotToken != b.Slack.BotToken)
	add("slack.api_url", a.Slack.APIURL != b.Slack.APIURL)
	add("slack.typing_speed", a.Slack.TypingSpeed != b.Slack.TypingSpeed)
	add("slack.page_limit", a.Slack.PageLimit != b.Slack.PageLimit)
	add("reconnect", a.Reconnect != b.Reconnect)
	add("retry", a.Retry != b.Retry)
	add("circuit_breaker", a.CircuitBreaker != b.CircuitBreaker)
	add("logging.level", a.Logging.Level != b.Logging.Level)
	add("logging.format", a.Logging.Format != b.Logging.Format)

	sort.Strings(keys)
	return keys
}

package app

import (
	"fmt"

	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/config"
)

func (app *Application) bootstrap(configPath string) error {
	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	app.config = cfg

	// 2. Setup logger
	logger, err := NewAtomicLogger(cfg.Logging.Level, cfg.Logging.Format, app.logOutput)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	app.logger = logger

	// 3. Setup telemetry (OpenTelemetry)
	if err := app.setupTelemetry(); err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	// 4. Connect the chat stream and its dispatcher
	if err := app.initializeSession(); err != nil {
		return fmt.Errorf("initializing session: %w", err)
	}

	// 5. Setup config manager with reload callback
	app.setupConfigManager(configPath)

	// 6. Initialize HTTP handlers and server
	app.initializeHandlers()
	app.setupServer()

	return nil
}

func (app *Application) setupConfigManager(configPath string) {
	app.configManager = config.NewConfigManager(configPath, app.config, app.logger)
	app.configManager.OnReload(func(old, updated *config.Config) {
		if old.Logging.Level != updated.Logging.Level {
			if err := app.logger.SetLevel(updated.Logging.Level); err != nil {
				app.logger.Error("applying log level", "error", err)
			}
		}
		if old.Slack.TypingSpeed != updated.Slack.TypingSpeed {
			app.conn.SetTypingSpeed(updated.Slack.TypingSpeed)
		}
	})
}

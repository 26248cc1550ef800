package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/config"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/observability"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/server"
	infraslack "github.com/qj0r9j0vc2/slacks/internal/infrastructure/slack"
	"github.com/qj0r9j0vc2/slacks/internal/usecase/session"
)

// Application holds all application dependencies and lifecycle
type Application struct {
	config        *config.Config
	configManager *config.ConfigManager
	logger        *AtomicLogger
	logOutput     io.Writer
	telemetry     *observability.Telemetry

	// Chat
	conn        *infraslack.Connection
	connOptions []infraslack.Option
	session     *session.Session
	register    []func(*session.Session) error

	// HTTP layer
	handlers *server.Handlers
	server   *server.Server
}

// Option customizes an Application before bootstrap.
type Option func(*Application)

// WithListeners registers listeners on the session once it is built.
func WithListeners(fn func(s *session.Session) error) Option {
	return func(app *Application) { app.register = append(app.register, fn) }
}

// WithLogOutput redirects logs. Defaults to stdout.
func WithLogOutput(w io.Writer) Option {
	return func(app *Application) { app.logOutput = w }
}

// WithConnectionOptions appends options to the chat connection.
func WithConnectionOptions(opts ...infraslack.Option) Option {
	return func(app *Application) { app.connOptions = append(app.connOptions, opts...) }
}

// New creates a new Application instance
func New(configPath string, opts ...Option) (*Application, error) {
	app := &Application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}

	if err := app.bootstrap(configPath); err != nil {
		return nil, err
	}

	return app, nil
}

// Session returns the message dispatcher.
func (app *Application) Session() *session.Session {
	return app.session
}

// Connection returns the chat connection.
func (app *Application) Connection() *infraslack.Connection {
	return app.conn
}

// Start runs the session, the HTTP server and the config watcher until ctx
// is cancelled or the session fails.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting slacks",
		"port", app.config.Server.Port,
		"listeners", app.session.Listeners().Len(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			serverErr <- err
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.configManager.Watch(ctx); err != nil {
			app.logger.Warn("config watcher stopped", "error", err)
		}
	}()

	err := app.session.Start(ctx)
	cancel()
	wg.Wait()

	select {
	case srvErr := <-serverErr:
		if err == nil || errors.Is(err, context.Canceled) {
			err = srvErr
		}
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down slacks")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if app.telemetry != nil {
		if err := app.telemetry.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown telemetry", "error", err)
			return err
		}
	}

	app.logger.Info("slacks stopped")
	return nil
}

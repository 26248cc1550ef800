package app

import (
	"context"
	"errors"

	"github.com/qj0r9j0vc2/slacks/internal/adapter/handler"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/server"
)

var errStreamDown = errors.New("stream not connected")

func (app *Application) initializeHandlers() {
	ready := handler.NewReadyHandler()
	ready.AddChecker("stream", handler.CheckerFunc(func(context.Context) error {
		if !app.conn.Listening() {
			return errStreamDown
		}
		return nil
	}))

	app.handlers = &server.Handlers{
		Health:  handler.NewHealthHandler(),
		Ready:   ready,
		Reload:  handler.NewReloadHandler(app.configManager, app.logger),
		Metrics: handler.NewMetricsHandler(app.telemetry.Registry),
	}
}

func (app *Application) setupServer() {
	router := server.NewRouter(app.handlers, app.logger, &server.RouterConfig{
		Metrics: app.telemetry.Metrics,
		Stream:  app.conn.Listening,
	})
	app.server = server.New(app.config.Server, router, app.logger)
}

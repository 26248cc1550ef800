package app

import (
	"fmt"

	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/resilience"
	infraslack "github.com/qj0r9j0vc2/slacks/internal/infrastructure/slack"
	"github.com/qj0r9j0vc2/slacks/internal/usecase/session"
)

var _ session.Connection = (*infraslack.Connection)(nil)

func (app *Application) initializeSession() error {
	cfg := app.config

	breaker := resilience.NewCircuitBreaker("slack-api",
		resilience.Config{
			MaxFailures:       cfg.CircuitBreaker.MaxFailures,
			Cooldown:          cfg.CircuitBreaker.Cooldown,
			HalfOpenSuccesses: cfg.CircuitBreaker.HalfOpenSuccesses,
		},
		resilience.WithFailurePredicate(domainerrors.IsTransientError),
		resilience.WithStateChange(func(name string, from, to resilience.State) {
			app.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)

	retry := infraslack.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.InitialInterval = cfg.Retry.InitialInterval
	retry.MaxInterval = cfg.Retry.MaxInterval
	retry.Multiplier = cfg.Retry.Multiplier

	opts := []infraslack.Option{
		infraslack.WithLogger(app.logger),
		infraslack.WithMetrics(app.telemetry.Metrics),
		infraslack.WithPageLimit(cfg.Slack.PageLimit),
		infraslack.WithTypingSpeed(cfg.Slack.TypingSpeed),
		infraslack.WithReconnection(infraslack.ReconnectionConfig{
			InitialBackoff:    cfg.Reconnect.InitialBackoff,
			MaxBackoff:        cfg.Reconnect.MaxBackoff,
			BackoffMultiplier: cfg.Reconnect.Multiplier,
		}),
		infraslack.WithAPIOptions(
			infraslack.WithAPIURL(cfg.Slack.APIURL),
			infraslack.WithRetryPolicy(retry),
			infraslack.WithCircuitBreaker(breaker),
		),
	}
	conn, err := infraslack.New(cfg.Slack.BotToken, append(opts, app.connOptions...)...)
	if err != nil {
		return err
	}
	app.conn = conn

	app.session = session.New(conn,
		session.WithLogger(app.logger),
		session.WithRecorder(app.telemetry.Metrics),
		session.WithTracer(app.telemetry.Tracer("session")),
	)

	for _, register := range app.register {
		if err := register(app.session); err != nil {
			return fmt.Errorf("registering listeners: %w", err)
		}
	}

	app.logger.Info("session initialized",
		"api_url", cfg.Slack.APIURL,
		"typing_speed", cfg.Slack.TypingSpeed,
		"listeners", app.session.Listeners().Len(),
	)
	return nil
}

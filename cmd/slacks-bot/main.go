package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qj0r9j0vc2/slacks/internal/app"
	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	"github.com/qj0r9j0vc2/slacks/internal/usecase/session"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	application, err := app.New(configPath, app.WithListeners(registerListeners))
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := application.Start(ctx)
	if err := application.Shutdown(); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	if runErr != nil {
		slog.Error("session stopped", "error", runErr)
		os.Exit(1)
	}
}

// registerListeners installs the demo behaviour.
func registerListeners(s *session.Session) error {
	if _, err := s.ListenFor(session.Phrase("ping"), func(ctx context.Context, e *session.Event) error {
		return e.Reply(ctx, "pong")
	}, session.WithFlags(session.FlagNoMentions, session.FlagDowncase)); err != nil {
		return err
	}

	if _, err := s.ListenFor(session.Phrase("introduce yourself"), introduce); err != nil {
		return err
	}

	_, err := s.Overhear(session.MustPattern(`(?i)\bthank(s| you)\b`), func(ctx context.Context, e *session.Event) error {
		return e.React(ctx, "+1")
	}, session.Require(entity.ContextMention))
	return err
}

// introduce runs a two-turn conversation with the sender.
func introduce(ctx context.Context, e *session.Event) error {
	conv, err := e.StartConversation()
	if err != nil {
		return err
	}
	return conv.Ask(ctx, "Hi! What should I call you?", nil, func(ctx context.Context, answer *session.Event) error {
		name := answer.Message.Text()
		return conv.Ask(ctx, fmt.Sprintf("Nice to meet you, %s. What are you working on?", name), nil,
			func(ctx context.Context, topic *session.Event) error {
				defer conv.End()
				return topic.Reply(ctx,
					fmt.Sprintf("%s sounds great.", topic.Message.Text()),
					fmt.Sprintf("Ping me any time, %s.", name),
				)
			})
	})
}

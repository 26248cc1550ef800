package session

import (
	"context"
	"time"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
)

// Connection is the streaming connection a session drives.
type Connection interface {
	Listen(ctx context.Context) error
	On(event string, handler entity.FrameHandler)
	Bot() entity.BotUser
	FindChannel(ctx context.Context, id string) (entity.Channel, error)
	FindUser(ctx context.Context, id string) (entity.User, error)
	Say(ctx context.Context, channel, text string) error
	AddReaction(ctx context.Context, channel, ts string, emojis ...string) error
	Typing(ctx context.Context, channel string) error
	TypingSpeed() float64
}

// Recorder receives dispatch metrics.
type Recorder interface {
	RecordDispatch(ctx context.Context, matched bool, duration time.Duration)
	RecordListeners(ctx context.Context, delta int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(context.Context, bool, time.Duration) {}
func (nopRecorder) RecordListeners(context.Context, int64)              {}

package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

type sent struct {
	channel string
	text    string
}

type reaction struct {
	channel string
	ts      string
	emojis  []string
}

// fakeConnection is an in-memory Connection with a fixed directory.
type fakeConnection struct {
	mu        sync.Mutex
	bot       entity.BotUser
	users     map[string]entity.User
	channels  map[string]entity.Channel
	handlers  map[string][]entity.FrameHandler
	said      []sent
	reactions []reaction
	typing    []string
	speed     float64
	listen    func(ctx context.Context) error

	userLookups int
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		bot: entity.BotUser{ID: "U0", Name: "lilbot"},
		users: map[string]entity.User{
			"U0": {ID: "U0", Username: "lilbot"},
			"U1": {ID: "U1", Username: "bob"},
			"U2": {ID: "U2", Username: "alice"},
		},
		channels: map[string]entity.Channel{
			"C1": entity.NewChannel("C1", "general", entity.ChannelPublic),
			"C2": entity.NewGuestChannel("C2", "lurking"),
			"G1": entity.NewChannel("G1", "secret", entity.ChannelPrivateGroup),
			"D1": entity.NewChannel("D1", "bob", entity.ChannelDirectMessage),
			"D2": entity.NewChannel("D2", "alice", entity.ChannelDirectMessage),
		},
		handlers: make(map[string][]entity.FrameHandler),
		speed:    100,
	}
}

func (f *fakeConnection) Listen(ctx context.Context) error {
	if f.listen != nil {
		return f.listen(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConnection) On(event string, handler entity.FrameHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeConnection) Bot() entity.BotUser { return f.bot }

func (f *fakeConnection) FindChannel(_ context.Context, id string) (entity.Channel, error) {
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return entity.Channel{}, domainerrors.NewChannelNotFound(id)
}

func (f *fakeConnection) FindUser(_ context.Context, id string) (entity.User, error) {
	f.mu.Lock()
	f.userLookups++
	f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return entity.User{}, domainerrors.NewUserNotFound(id)
}

func (f *fakeConnection) Say(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, sent{channel: channel, text: text})
	return nil
}

func (f *fakeConnection) AddReaction(_ context.Context, channel, ts string, emojis ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, reaction{channel: channel, ts: ts, emojis: emojis})
	return nil
}

func (f *fakeConnection) Typing(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, channel)
	return nil
}

func (f *fakeConnection) TypingSpeed() float64 { return f.speed }

func (f *fakeConnection) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.said))
	for i, s := range f.said {
		out[i] = s.text
	}
	return out
}

// emit pushes a raw frame through the handlers subscribed to its type.
func (f *fakeConnection) emit(t *testing.T, ctx context.Context, raw string) error {
	t.Helper()
	frame, err := entity.ParseFrame([]byte(raw))
	require.NoError(t, err)

	f.mu.Lock()
	handlers := append([]entity.FrameHandler(nil), f.handlers[frame.Type]...)
	f.mu.Unlock()
	for _, h := range handlers {
		if err := h(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

func msg(channel, user, text string) slack.Msg {
	return slack.Msg{Type: "message", Channel: channel, User: user, Text: text, Timestamp: "1700000000.000100"}
}

func messageFrame(channel, user, text string) string {
	data, _ := json.Marshal(map[string]string{
		"type":    "message",
		"channel": channel,
		"user":    user,
		"text":    text,
		"ts":      "1700000000.000100",
	})
	return string(data)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestSession(conn *fakeConnection, opts ...Option) (*Session, *sleepRecorder) {
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return New(conn, opts...), rec
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

func pong(ctx context.Context, e *Event) error {
	return e.Reply(ctx, "pong")
}

func TestSession_Dispatch_DirectMessage(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	calls := 0
	_, err := s.ListenFor(Phrase("ping"), func(ctx context.Context, e *Event) error {
		calls++
		assert.Equal(t, "bob", e.Sender.Username)
		assert.True(t, e.Channel.IsDirectMessage())
		return e.Reply(ctx, "pong")
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "ping")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []sent{{channel: "D1", text: "pong"}}, conn.said)
}

func TestSession_Dispatch_PublicChannelNeedsMention(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	_, err := s.ListenFor(Phrase("ping"), pong)
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U1", "ping")))
	assert.Empty(t, conn.said)

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U1", "<@U0> ping")))
	assert.Equal(t, []sent{{channel: "C1", text: "pong"}}, conn.said)
}

func TestSession_Dispatch_Overhear(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	_, err := s.Overhear(Phrase("deploy"), func(ctx context.Context, e *Event) error {
		return e.React(ctx, ":eyes:")
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), msg("C1", "U2", "starting the deploy now")))
	require.Len(t, conn.reactions, 1)
	assert.Equal(t, reaction{channel: "C1", ts: "1700000000.000100", emojis: []string{":eyes:"}}, conn.reactions[0])
}

func TestSession_Dispatch_FirstMatchWins(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	var order []string
	_, err := s.ListenFor(MustPattern(`^nope$`), func(context.Context, *Event) error {
		order = append(order, "never")
		return nil
	})
	require.NoError(t, err)
	_, err = s.ListenFor(Phrase("hello"), func(context.Context, *Event) error {
		order = append(order, "first")
		return nil
	})
	require.NoError(t, err)
	_, err = s.Overhear(Phrase("hello"), func(context.Context, *Event) error {
		order = append(order, "second")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), msg("D1", "U1", "hello there")))
	assert.Equal(t, []string{"first"}, order)
}

func TestSession_Dispatch_SkipsBotMessages(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	called := false
	_, err := s.Overhear(Anything(), func(context.Context, *Event) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	m := msg("C1", "", "integration says hi")
	m.SubType = "bot_message"
	require.NoError(t, s.Dispatch(context.Background(), m))
	assert.False(t, called)
}

func TestSession_Dispatch_ContextRules(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ListenerOption
		channel string
		text    string
		want    bool
	}{
		{name: "prohibit dm blocks dm", opts: []ListenerOption{Prohibit(entity.ContextDirectMessage)}, channel: "D1", text: "status", want: false},
		{name: "prohibit dm allows mention", opts: []ListenerOption{Prohibit(entity.ContextDirectMessage)}, channel: "C1", text: "@lilbot status", want: true},
		{name: "require mention blocks plain dm", opts: []ListenerOption{Require(entity.ContextMention)}, channel: "D1", text: "status", want: false},
		{name: "require mention allows mention in dm", opts: []ListenerOption{Require(entity.ContextMention)}, channel: "D1", text: "lilbot status", want: true},
		{name: "require dm blocks channel", opts: []ListenerOption{Require(entity.ContextDirectMessage)}, channel: "C1", text: "@lilbot status", want: false},
		{name: "require conversation blocks unbound", opts: []ListenerOption{Require(entity.ContextConversation)}, channel: "D1", text: "status", want: false},
		{name: "prohibit conversation never applies unbound", opts: []ListenerOption{Prohibit(entity.ContextConversation)}, channel: "D1", text: "status", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConnection()
			s, _ := newTestSession(conn)

			fired := false
			_, err := s.ListenFor(Phrase("status"), func(context.Context, *Event) error {
				fired = true
				return nil
			}, tt.opts...)
			require.NoError(t, err)

			require.NoError(t, s.Dispatch(context.Background(), msg(tt.channel, "U1", tt.text)))
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestSession_Dispatch_TextFlags(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	var seen string
	_, err := s.ListenFor(MustPattern(`^hello world$`), func(_ context.Context, e *Event) error {
		seen = e.Match.Text
		return nil
	}, WithFlags(FlagNoMentions, FlagDowncase, FlagNoPunctuation, FlagNoEmoji))
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), msg("C1", "U1", "<@U0>: Hello, World! :wave:")))
	assert.Equal(t, "hello world", seen)
}

func TestSession_Dispatch_NamedCaptures(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	_, err := s.ListenFor(MustPattern(`^deploy (?P<app>\w+) to (?P<env>\w+)$`), func(ctx context.Context, e *Event) error {
		return e.Reply(ctx, e.Matched("app")+"@"+e.Matched("env"))
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), msg("D1", "U1", "deploy api to staging")))
	assert.Equal(t, []string{"api@staging"}, conn.texts())
}

func TestSession_Dispatch_CallbackErrorPropagates(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	boom := errors.New("callback failed")

	_, err := s.ListenFor(Anything(), func(context.Context, *Event) error { return boom })
	require.NoError(t, err)

	assert.ErrorIs(t, s.Dispatch(context.Background(), msg("D1", "U1", "anything")), boom)
}

func TestSession_Dispatch_UnknownChannel(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	err := s.Dispatch(context.Background(), msg("C404", "U1", "hi"))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestSession_HandlesMessageFrames(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	_, err := s.ListenFor(Phrase("ping"), pong)
	require.NoError(t, err)

	require.NoError(t, conn.emit(t, ctx, messageFrame("D2", "U2", "ping")))
	require.NoError(t, conn.emit(t, ctx, `{"type":"connected"}`))
	require.NoError(t, conn.emit(t, ctx, `{"type":"error","error":{"msg":"reconnecting"}}`))
	assert.Equal(t, []sent{{channel: "D2", text: "pong"}}, conn.said)
}

func TestSession_NormalizeMentions(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	tests := []struct {
		in   string
		want string
	}{
		{in: "hi <@U1|bobby>", want: "hi @bobby"},
		{in: "hi <@U2>", want: "hi @alice"},
		{in: "see <#C1>", want: "see #general"},
		{in: "see <#C9|ops>", want: "see #ops"},
		{in: "dm <D1> and <G1>", want: "dm @bob and secret"},
		{in: "who is <@U404>?", want: "who is <@U404>?"},
		{in: "link <https://example.com|example>", want: "link <https://example.com|example>"},
		{in: "<!here> ping", want: "<!here> ping"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.normalizeMentions(ctx, tt.in), tt.in)
	}
}

func TestSession_Conversation_Ask(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	var answers []string
	_, err := s.ListenFor(Phrase("start"), func(ctx context.Context, e *Event) error {
		conv, err := e.StartConversation()
		if err != nil {
			return err
		}
		return conv.Ask(ctx, "what is your name?", nil, func(ctx context.Context, e *Event) error {
			answers = append(answers, e.Message.Text())
			return e.Reply(ctx, "nice to meet you "+e.Message.Text())
		})
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U1", "@lilbot start")))
	assert.Equal(t, 2, s.Listeners().Len())

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U2", "Alice")), "other sender is outside the conversation")
	require.NoError(t, s.Dispatch(ctx, msg("G1", "U1", "Wrong room")), "other channel is outside the conversation")
	assert.Empty(t, answers)

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U1", "Bob")))
	assert.Equal(t, []string{"Bob"}, answers)
	assert.Equal(t, 1, s.Listeners().Len(), "ask listener removes itself")

	require.NoError(t, s.Dispatch(ctx, msg("C1", "U1", "Carl")))
	assert.Equal(t, []string{"Bob"}, answers)

	assert.Equal(t, []string{"what is your name?", "nice to meet you Bob"}, conn.texts())
}

func TestSession_Conversation_AnsweredAskIsReleased(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	conv, err := s.StartConversation(entity.NewChannel("D1", "bob", entity.ChannelDirectMessage), entity.User{ID: "U1", Username: "bob"})
	require.NoError(t, err)

	var topic string
	require.NoError(t, conv.Ask(ctx, "name?", nil, func(ctx context.Context, e *Event) error {
		return conv.Ask(ctx, "topic?", nil, func(_ context.Context, e *Event) error {
			topic = e.Message.Text()
			return nil
		})
	}))
	require.Len(t, conv.Listeners(), 1)

	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "Bob")))
	require.Len(t, conv.Listeners(), 1, "first answer is released and the follow-up is owned")
	assert.True(t, conv.Active())

	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "gardening")))
	assert.Equal(t, "gardening", topic)
	assert.Empty(t, conv.Listeners())
	assert.False(t, conv.Active())
	assert.Zero(t, s.Listeners().Len())
	assert.Equal(t, []string{"name?", "topic?"}, conn.texts())
}

func TestSession_Conversation_End(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	conv, err := s.StartConversation(entity.NewChannel("D1", "bob", entity.ChannelDirectMessage), entity.User{ID: "U1", Username: "bob"})
	require.NoError(t, err)

	_, err = conv.ListenFor(Phrase("yes"), pong)
	require.NoError(t, err)
	_, err = conv.ListenFor(Phrase("no"), pong)
	require.NoError(t, err)
	assert.True(t, conv.Active())
	assert.Equal(t, 2, s.Listeners().Len())

	conv.End()
	assert.False(t, conv.Active())
	assert.Zero(t, s.Listeners().Len())
}

func TestSession_GuestChannel(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()
	guest := conn.channels["C2"]

	_, err := s.StartConversation(guest, entity.User{ID: "U1"})
	var notIn *domainerrors.NotInChannelError
	require.ErrorAs(t, err, &notIn)
	assert.Contains(t, err.Error(), "#lurking")

	assert.ErrorAs(t, s.Reply(ctx, guest, "hello"), &notIn)

	var reactErr error
	_, err = s.Overhear(Anything(), func(ctx context.Context, e *Event) error {
		reactErr = e.React(ctx, "wave")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Dispatch(ctx, msg("C2", "U1", "anyone?")))
	assert.ErrorAs(t, reactErr, &notIn)

	assert.Empty(t, conn.said)
	assert.Empty(t, conn.reactions)
}

func TestSession_Reply_PacesByTypingSpeed(t *testing.T) {
	conn := newFakeConnection()
	conn.speed = 10
	s, rec := newTestSession(conn)

	ch := conn.channels["C1"]
	require.NoError(t, s.Reply(context.Background(), ch, "first", "second message"))

	assert.Equal(t, []string{"first", "second message"}, conn.texts())
	assert.Equal(t, []time.Duration{1400 * time.Millisecond}, rec.waits)
	assert.Equal(t, []string{"C1"}, conn.typing)
}

func TestSession_RandomReplies(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn, WithRandom(func() float64 { return 0.75 }))
	ctx := context.Background()
	ch := conn.channels["C1"]

	require.NoError(t, s.RandomReply(ctx, ch, "a", "b", "c", "d"))
	require.NoError(t, s.WeightedReply(ctx, ch, map[string]float64{"heads": 0.5, "tails": 0.5}))
	assert.Equal(t, []string{"d", "tails"}, conn.texts())

	err := s.WeightedReply(ctx, ch, map[string]float64{"heads": 0.5, "tails": 0.6})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidWeights)
}

func TestSession_Start_RetriesMigration(t *testing.T) {
	conn := newFakeConnection()
	attempts := 0
	conn.listen = func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &domainerrors.ResponseError{Command: "rtm.start", Code: "migration_in_progress"}
		}
		return nil
	}
	s, rec := newTestSession(conn, WithMigrationBackoff(time.Second, 10*time.Second))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestSession_Start_ReturnsOtherErrors(t *testing.T) {
	conn := newFakeConnection()
	conn.listen = func(context.Context) error {
		return &domainerrors.ResponseError{Command: "rtm.start", Code: "invalid_auth"}
	}
	s, rec := newTestSession(conn)

	err := s.Start(context.Background())
	assert.True(t, domainerrors.IsResponseError(err, "invalid_auth"))
	assert.Empty(t, rec.waits)
}

func TestSession_RegisterDuringDispatch(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)
	ctx := context.Background()

	_, err := s.ListenFor(Phrase("teach"), func(ctx context.Context, e *Event) error {
		_, err := s.ListenFor(Phrase("trick"), func(ctx context.Context, e *Event) error {
			return e.Reply(ctx, "rolls over")
		})
		if err != nil {
			return err
		}
		e.StopListening()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "teach")))
	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "teach")))
	require.NoError(t, s.Dispatch(ctx, msg("D1", "U1", "trick")))
	assert.Equal(t, []string{"rolls over"}, conn.texts())
	assert.Equal(t, 1, s.Listeners().Len())
}

func TestSession_SenderLookupIsMemoised(t *testing.T) {
	conn := newFakeConnection()
	s, _ := newTestSession(conn)

	for i := 0; i < 3; i++ {
		_, err := s.Overhear(MustPattern(`never`), pong)
		require.NoError(t, err)
	}
	_, err := s.Overhear(Anything(), func(ctx context.Context, e *Event) error {
		_, err := e.Message.Sender(ctx)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), slack.Msg{Channel: "C1", User: "U1", Text: "hi"}))
	assert.Equal(t, 1, conn.userLookups)
}

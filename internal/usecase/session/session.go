// Package session routes inbound chat messages to registered listeners and
// tracks multi-turn conversations.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
)

const (
	eventMessage   = "message"
	eventConnected = "connected"
	eventError     = "error"

	subtypeBotMessage = "bot_message"
)

var (
	// <@U123|name>
	labelledUserMention = regexp.MustCompile(`<@[UW][^|>]+\|([^>]+)>`)
	// <@U123>, <#C123>, <#C123|name>, <C123>
	entityReference = regexp.MustCompile(`<([@#]?)([UWCGD][A-Z0-9]+)(?:\|([^>]*))?>`)
)

// Session owns the listener collection and dispatches message frames from
// a connection to the first listener that accepts them.
type Session struct {
	conn      Connection
	listeners *ListenerCollection
	logger    logger.Logger
	recorder  Recorder
	tracer    trace.Tracer
	sleep     func(ctx context.Context, d time.Duration) error
	random    func() float64

	migrationInitial time.Duration
	migrationMax     time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithRecorder records dispatch metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithTracer wraps each dispatch in a span.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// WithSleep replaces reply pacing and migration waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Session) { s.sleep = fn }
}

// WithRandom replaces the source used by random replies. fn returns values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(s *Session) { s.random = fn }
}

// WithMigrationBackoff bounds the wait between handshakes while the team migrates.
func WithMigrationBackoff(initial, ceiling time.Duration) Option {
	return func(s *Session) {
		s.migrationInitial = initial
		s.migrationMax = ceiling
	}
}

// New subscribes a session to conn's message, connected and error events.
func New(conn Connection, opts ...Option) *Session {
	s := &Session{
		conn:             conn,
		listeners:        NewListenerCollection(),
		logger:           logger.Nop{},
		recorder:         nopRecorder{},
		tracer:           noop.NewTracerProvider().Tracer("session"),
		sleep:            sleepContext,
		random:           rand.Float64,
		migrationInitial: time.Second,
		migrationMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.listeners.setChangeHook(func(delta int64) {
		s.recorder.RecordListeners(context.Background(), delta)
	})

	conn.On(eventMessage, s.handleMessage)
	conn.On(eventConnected, s.handleConnected)
	conn.On(eventError, s.handleError)
	return s
}

// Listeners returns the session's listener collection.
func (s *Session) Listeners() *ListenerCollection {
	return s.listeners
}

// ListenFor registers a direct listener.
func (s *Session) ListenFor(matcher Matcher, callback Callback, opts ...ListenerOption) (*Listener, error) {
	return s.listeners.ListenFor(matcher, callback, opts...)
}

// Overhear registers an indirect listener.
func (s *Session) Overhear(matcher Matcher, callback Callback, opts ...ListenerOption) (*Listener, error) {
	return s.listeners.Overhear(matcher, callback, opts...)
}

// StartConversation opens a conversation with sender in channel.
func (s *Session) StartConversation(channel entity.Channel, sender entity.User) (*Conversation, error) {
	return newConversation(s, channel, sender)
}

// Start listens until ctx ends or the connection fails. Migration responses
// from the handshake are retried with capped backoff.
func (s *Session) Start(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := s.conn.Listen(ctx)
		if !errors.Is(err, domainerrors.ErrMigrationInProgress) {
			return err
		}
		wait := s.migrationWait(attempt)
		s.logger.Warn("team migration in progress; retrying handshake",
			"attempt", attempt+1,
			"backoff", wait,
		)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Session) migrationWait(attempt int) time.Duration {
	d := float64(s.migrationInitial) * math.Pow(2, float64(attempt))
	if d > float64(s.migrationMax) {
		return s.migrationMax
	}
	return time.Duration(d)
}

func (s *Session) handleConnected(context.Context, entity.Frame) error {
	s.logger.Info("session connected", "bot", s.conn.Bot().Name, "listeners", s.listeners.Len())
	return nil
}

func (s *Session) handleError(_ context.Context, frame entity.Frame) error {
	var payload struct {
		Error struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		} `json:"error"`
	}
	if err := frame.Decode(&payload); err != nil {
		s.logger.Warn("stream reported an error", "decode_error", err)
		return nil
	}
	s.logger.Warn("stream reported an error", "code", payload.Error.Code, "message", payload.Error.Msg)
	return nil
}

func (s *Session) handleMessage(ctx context.Context, frame entity.Frame) error {
	var data slack.Msg
	if err := frame.Decode(&data); err != nil {
		s.logger.Warn("dropping undecodable message", "error", err)
		return nil
	}
	return s.Dispatch(ctx, data)
}

// Dispatch routes one message to the first listener whose matcher and
// context rules accept it. Callback errors are returned.
func (s *Session) Dispatch(ctx context.Context, data slack.Msg) error {
	if data.SubType == subtypeBotMessage {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "session.dispatch", trace.WithAttributes(
		attribute.String("channel", data.Channel),
		attribute.String("user", data.User),
	))
	defer span.End()
	start := time.Now()

	data.Text = s.normalizeMentions(ctx, data.Text)
	msg := NewMessage(s.conn, data, s.conn.Bot())

	channel, err := msg.Channel(ctx)
	if err != nil {
		return fmt.Errorf("resolving channel %s: %w", data.Channel, err)
	}

	var contexts entity.ContextSet
	if channel.IsDirectMessage() {
		contexts = contexts.With(entity.ContextDirectMessage)
	}
	if msg.MentionsBot() {
		contexts = contexts.With(entity.ContextMention)
	}
	addressed := !contexts.IsEmpty()

	for _, l := range s.listeners.Snapshot() {
		conv := l.Conversation()
		if l.Direct() && !addressed && conv == nil {
			continue
		}

		match, ok := l.Match(msg)
		if !ok {
			continue
		}

		sender, err := msg.Sender(ctx)
		if err != nil {
			return fmt.Errorf("resolving sender %s: %w", data.User, err)
		}

		listenerContexts := contexts
		inConversation := conv != nil && conv.Includes(sender, channel)
		if inConversation {
			listenerContexts = listenerContexts.With(entity.ContextConversation)
		}
		if l.Direct() && !addressed && !inConversation {
			continue
		}
		if !l.Accepts(listenerContexts) {
			continue
		}
		if !l.Active() {
			continue
		}

		event := &Event{
			Message:  msg,
			Channel:  channel,
			Sender:   sender,
			Match:    match,
			listener: l,
			session:  s,
		}
		s.logger.Debug("dispatching message",
			"listener", l.ID(),
			"channel", channel.String(),
			"sender", sender.String(),
			"contexts", listenerContexts.String(),
		)
		err = l.call(ctx, event)
		s.recorder.RecordDispatch(ctx, true, time.Since(start))
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("listener %s: %w", l.ID(), err)
		}
		return nil
	}

	s.recorder.RecordDispatch(ctx, false, time.Since(start))
	return nil
}

// normalizeMentions rewrites platform references into readable names.
// References that cannot be resolved are left untouched.
func (s *Session) normalizeMentions(ctx context.Context, text string) string {
	text = labelledUserMention.ReplaceAllString(text, "@$1")
	return entityReference.ReplaceAllStringFunc(text, func(ref string) string {
		parts := entityReference.FindStringSubmatch(ref)
		id, label := parts[2], parts[3]

		switch id[0] {
		case 'U', 'W':
			if label != "" {
				return "@" + label
			}
			user, err := s.conn.FindUser(ctx, id)
			if err != nil {
				s.logger.Debug("leaving unresolved user reference", "id", id, "error", err)
				return ref
			}
			return user.String()
		default:
			if label != "" && parts[1] == "#" {
				return "#" + label
			}
			channel, err := s.conn.FindChannel(ctx, id)
			if err != nil {
				s.logger.Debug("leaving unresolved channel reference", "id", id, "error", err)
				return ref
			}
			return channel.String()
		}
	})
}

// Reply posts messages to channel in order, pausing before each message
// after the first for its length divided by the typing speed.
func (s *Session) Reply(ctx context.Context, channel entity.Channel, messages ...string) error {
	if channel.IsGuest() {
		return &domainerrors.NotInChannelError{Channel: channel.String()}
	}
	for i, text := range messages {
		if i > 0 {
			if err := s.conn.Typing(ctx, channel.ID()); err != nil && !errors.Is(err, domainerrors.ErrNotListening) {
				s.logger.Debug("typing indicator failed", "channel", channel.String(), "error", err)
			}
			if err := s.sleep(ctx, s.typingDelay(text)); err != nil {
				return err
			}
		}
		if err := s.conn.Say(ctx, channel.ID(), text); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) typingDelay(text string) time.Duration {
	speed := s.conn.TypingSpeed()
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(len([]rune(text))) / speed * float64(time.Second))
}

// RandomReply posts one reply chosen uniformly.
func (s *Session) RandomReply(ctx context.Context, channel entity.Channel, replies ...string) error {
	if len(replies) == 0 {
		return nil
	}
	i := int(s.random() * float64(len(replies)))
	if i >= len(replies) {
		i = len(replies) - 1
	}
	return s.Reply(ctx, channel, replies[i])
}

// WeightedReply posts one reply chosen by weight. Weights must sum to 1.
func (s *Session) WeightedReply(ctx context.Context, channel entity.Channel, weights map[string]float64) error {
	if len(weights) == 0 {
		return nil
	}
	replies := make([]string, 0, len(weights))
	total := 0.0
	for reply, w := range weights {
		if w < 0 {
			return domainerrors.ErrInvalidWeights
		}
		replies = append(replies, reply)
		total += w
	}
	if math.Abs(total-1.0) > 1e-9 {
		return fmt.Errorf("%w: got %g", domainerrors.ErrInvalidWeights, total)
	}
	sort.Strings(replies)

	roll := s.random()
	cumulative := 0.0
	for _, reply := range replies {
		cumulative += weights[reply]
		if roll < cumulative {
			return s.Reply(ctx, channel, reply)
		}
	}
	return s.Reply(ctx, channel, replies[len(replies)-1])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

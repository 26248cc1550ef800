package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/observability"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/rtm"
)

// Stream event names.
const (
	EventConnected      = "connected"
	EventError          = "error"
	EventHello          = "hello"
	EventMessage        = "message"
	EventGroupJoined    = "group_joined"
	EventChannelJoined  = "channel_joined"
	EventChannelCreated = "channel_created"
	EventTeamJoin       = "team_join"
)

// DefaultTypingSpeed is characters per second used to pace multi-part replies.
const DefaultTypingSpeed = 100.0

// StreamDriver is the socket a Connection reads frames from.
type StreamDriver interface {
	OnOpen(fn func())
	OnMessage(fn func(entity.Frame) error)
	OnError(fn func(error))
	Connect(ctx context.Context, url string) error
	ReadLoop(ctx context.Context) error
	Write(v any) error
	Ping() error
	Connected() bool
	Close() error
}

// Connection is a long-lived real-time session: it performs the handshake,
// keeps the entity cache, reads the stream and exposes outbound verbs.
type Connection struct {
	api       Caller
	apiOpts   []APIOption
	cache     *EntityCache
	newDriver func() StreamDriver
	reconnect ReconnectionConfig
	pageLimit int
	logger    logger.Logger
	metrics   *observability.Metrics
	sleep     func(ctx context.Context, d time.Duration) error

	observers observers

	mu          sync.RWMutex
	driver      StreamDriver
	bot         entity.BotUser
	team        entity.Team
	typingSpeed float64

	messageID atomic.Int64
}

// Option configures a Connection.
type Option func(*Connection)

// WithCaller replaces the Web API client.
func WithCaller(api Caller) Option {
	return func(c *Connection) { c.api = api }
}

// WithAPIOptions configures the default Web API client.
func WithAPIOptions(opts ...APIOption) Option {
	return func(c *Connection) { c.apiOpts = append(c.apiOpts, opts...) }
}

// WithDriverFactory replaces how stream drivers are built.
func WithDriverFactory(fn func() StreamDriver) Option {
	return func(c *Connection) { c.newDriver = fn }
}

// WithReconnection sets reconnect pacing.
func WithReconnection(cfg ReconnectionConfig) Option {
	return func(c *Connection) { c.reconnect = cfg }
}

// WithPageLimit caps pages fetched per paginated command.
func WithPageLimit(n int) Option {
	return func(c *Connection) { c.pageLimit = n }
}

// WithTypingSpeed sets the reply pacing in characters per second.
func WithTypingSpeed(cps float64) Option {
	return func(c *Connection) { c.typingSpeed = cps }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// WithMetrics records stream and cache metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithSleep replaces the reconnect wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Connection) { c.sleep = fn }
}

// New builds a Connection for the given bot token.
func New(token string, opts ...Option) (*Connection, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &domainerrors.ConfigError{Field: "token"}
	}

	c := &Connection{
		reconnect:   DefaultReconnectionConfig(),
		pageLimit:   DefaultPageLimit,
		logger:      logger.Nop{},
		sleep:       sleep,
		typingSpeed: DefaultTypingSpeed,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.newDriver == nil {
		l := c.logger
		c.newDriver = func() StreamDriver { return rtm.New(rtm.WithLogger(l)) }
	}
	if c.api == nil {
		apiOpts := append([]APIOption{WithAPILogger(c.logger), WithAPIMetrics(c.metrics)}, c.apiOpts...)
		api, err := NewAPIClient(token, apiOpts...)
		if err != nil {
			return nil, err
		}
		c.api = api
	}

	c.cache = NewEntityCache(c)
	c.cache.SetRefreshHook(func(ctx context.Context, kind string) {
		c.metrics.RecordCacheRefresh(ctx, kind)
		c.logger.Debug("directory refreshed", "kind", kind)
	})
	return c, nil
}

// API issues a Web API command, following pagination cursors.
func (c *Connection) API(ctx context.Context, command string, params map[string]string) (Response, error) {
	return CallPaginated(ctx, c.api, c.pageLimit, command, params)
}

// FetchUsers lists every workspace member.
func (c *Connection) FetchUsers(ctx context.Context) ([]slack.User, error) {
	resp, err := c.API(ctx, "users.list", map[string]string{"limit": "200"})
	if err != nil {
		return nil, err
	}
	var users []slack.User
	if err := resp.Decode("members", &users); err != nil {
		return nil, domainerrors.NewPermanentError("users.list", err)
	}
	return users, nil
}

// FetchConversations lists channels, private groups and direct messages in one pass.
func (c *Connection) FetchConversations(ctx context.Context) ([]slack.Channel, error) {
	resp, err := c.API(ctx, "conversations.list", map[string]string{
		"types":            "public_channel,private_channel,mpim,im",
		"exclude_archived": "true",
		"limit":            "200",
	})
	if err != nil {
		return nil, err
	}
	var channels []slack.Channel
	if err := resp.Decode("channels", &channels); err != nil {
		return nil, domainerrors.NewPermanentError("conversations.list", err)
	}
	return channels, nil
}

// Listen opens the stream and reads it until ctx is cancelled, a frame
// handler fails, or a non end-of-stream error occurs. An end of stream
// re-runs the handshake; the first reconnect is immediate and consecutive
// reconnects of streams that delivered nothing back off.
func (c *Connection) Listen(ctx context.Context) error {
	quiet := 0
	for {
		delivered, err := c.listenOnce(ctx)
		if !errors.Is(err, domainerrors.ErrEndOfStream) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if delivered {
			quiet = 0
		} else {
			quiet++
		}
		c.metrics.RecordReconnect(ctx)
		c.logger.Warn("stream ended; reconnecting", "error", err, "quiet_streams", quiet)

		if err := c.trigger(ctx, EventError, errorFrame("stream received end of stream; reconnecting")); err != nil {
			return err
		}
		if err := c.sleep(ctx, reconnectDelay(c.reconnect, quiet)); err != nil {
			return err
		}
	}
}

func (c *Connection) listenOnce(ctx context.Context) (bool, error) {
	url, err := c.handshake(ctx)
	if err != nil {
		return false, err
	}

	driver := c.newDriver()
	var delivered atomic.Bool
	driver.OnOpen(func() {
		c.logger.Info("stream connected", "bot", c.Bot().Name, "team", c.Team().Name)
	})
	driver.OnError(func(err error) {
		c.logger.Error("stream transport error", "error", err)
	})
	driver.OnMessage(func(frame entity.Frame) error {
		delivered.Store(true)
		return c.handleFrame(ctx, frame)
	})

	if err := driver.Connect(ctx, url); err != nil {
		return false, fmt.Errorf("connecting to stream: %w", err)
	}
	c.setDriver(driver)
	c.metrics.RecordStreamOpen(ctx, 1)
	defer func() {
		c.setDriver(nil)
		if err := driver.Close(); err != nil {
			c.logger.Debug("closing stream", "error", err)
		}
		c.metrics.RecordStreamOpen(ctx, -1)
	}()

	if err := c.trigger(ctx, EventConnected, entity.Frame{Type: EventConnected}); err != nil {
		return false, err
	}
	err = driver.ReadLoop(ctx)
	return delivered.Load(), err
}

// handshake starts a session and seeds the cache from its payload.
func (c *Connection) handshake(ctx context.Context) (string, error) {
	resp, err := c.API(ctx, "rtm.start", nil)
	c.metrics.RecordHandshake(ctx, err == nil)
	if err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	return c.storeContext(resp)
}

func (c *Connection) storeContext(resp Response) (string, error) {
	url := resp.String("url")
	if url == "" {
		return "", domainerrors.NewPermanentError("rtm.start returned no stream url", nil)
	}

	var self slack.UserDetails
	if err := resp.Decode("self", &self); err != nil {
		return "", domainerrors.NewPermanentError("rtm.start", err)
	}
	var team slack.TeamInfo
	if resp.Has("team") {
		if err := resp.Decode("team", &team); err != nil {
			return "", domainerrors.NewPermanentError("rtm.start", err)
		}
	}

	var users []slack.User
	if resp.Has("users") {
		if err := resp.Decode("users", &users); err != nil {
			return "", domainerrors.NewPermanentError("rtm.start", err)
		}
	}
	var conversations []slack.Channel
	for _, key := range []string{"channels", "groups", "ims"} {
		if !resp.Has(key) {
			continue
		}
		var listing []slack.Channel
		if err := resp.Decode(key, &listing); err != nil {
			return "", domainerrors.NewPermanentError("rtm.start", err)
		}
		conversations = append(conversations, listing...)
	}
	c.cache.Seed(users, conversations)

	c.mu.Lock()
	c.bot = entity.BotUser{ID: self.ID, Name: self.Name}
	c.team = entity.Team{ID: team.ID, Name: team.Name, Domain: team.Domain}
	c.mu.Unlock()
	return url, nil
}

// handleFrame keeps the cache current and fans the frame out to observers.
// Untyped frames, messages from the bot itself and empty messages are dropped.
func (c *Connection) handleFrame(ctx context.Context, frame entity.Frame) error {
	c.metrics.RecordFrame(ctx, frame.Type)

	switch frame.Type {
	case "":
		return nil

	case EventGroupJoined, EventChannelJoined:
		var ev slack.ChannelJoinedEvent
		if err := frame.Decode(&ev); err != nil {
			c.logger.Warn("dropping undecodable membership event", "type", frame.Type, "error", err)
			break
		}
		ev.Channel.IsMember = true
		c.cache.PutConversation(ev.Channel)

	case EventChannelCreated:
		var ev slack.ChannelCreatedEvent
		if err := frame.Decode(&ev); err != nil {
			c.logger.Warn("dropping undecodable channel event", "type", frame.Type, "error", err)
			break
		}
		var ch slack.Channel
		ch.ID = ev.Channel.ID
		ch.Name = ev.Channel.Name
		ch.IsChannel = true
		ch.IsMember = ev.Channel.Creator != "" && ev.Channel.Creator == c.Bot().ID
		c.cache.PutConversation(ch)

	case EventTeamJoin:
		var ev slack.TeamJoinEvent
		if err := frame.Decode(&ev); err != nil {
			c.logger.Warn("dropping undecodable team_join event", "error", err)
			break
		}
		c.cache.PutUser(ev.User)

	case EventMessage:
		var msg struct {
			User string `json:"user"`
			Text string `json:"text"`
		}
		if err := frame.Decode(&msg); err != nil {
			c.logger.Warn("dropping undecodable message", "error", err)
			return nil
		}
		if msg.User != "" && msg.User == c.Bot().ID {
			return nil
		}
		if msg.Text == "" {
			return nil
		}
	}

	return c.trigger(ctx, frame.Type, frame)
}

func errorFrame(msg string) entity.Frame {
	raw, _ := json.Marshal(map[string]any{
		"type":  EventError,
		"error": map[string]any{"msg": msg},
	})
	return entity.Frame{Type: EventError, Raw: raw}
}

func (c *Connection) setDriver(d StreamDriver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver = d
}

func (c *Connection) currentDriver() StreamDriver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driver
}

// Listening reports whether a stream is open.
func (c *Connection) Listening() bool {
	d := c.currentDriver()
	return d != nil && d.Connected()
}

// Bot returns the authenticated identity from the last handshake.
func (c *Connection) Bot() entity.BotUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

// Team returns the workspace from the last handshake.
func (c *Connection) Team() entity.Team {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.team
}

// TypingSpeed returns reply pacing in characters per second.
func (c *Connection) TypingSpeed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typingSpeed
}

// SetTypingSpeed changes reply pacing. Non-positive values are ignored.
func (c *Connection) SetTypingSpeed(cps float64) {
	if cps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typingSpeed = cps
}

// Cache exposes the entity cache.
func (c *Connection) Cache() *EntityCache {
	return c.cache
}

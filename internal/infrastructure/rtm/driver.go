// Package rtm owns the raw streaming socket used by the real-time connection.
package rtm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// Driver wraps one websocket connection. A Driver connects at most once;
// the connection creates a fresh Driver for every reconnect.
type Driver struct {
	dialer *websocket.Dialer
	logger logger.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	initialised bool
	onOpen      func()
	onMessage   func(entity.Frame) error
	onError     func(error)

	writeMu   sync.Mutex
	connected atomic.Bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(drv *Driver) {
		drv.dialer = d
	}
}

// WithLogger sets the driver logger.
func WithLogger(l logger.Logger) Option {
	return func(drv *Driver) {
		drv.logger = l
	}
}

// New creates an unconnected driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logger.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnOpen registers the callback fired once the socket is open. Last registration wins.
func (d *Driver) OnOpen(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOpen = fn
}

// OnMessage registers the frame callback. An error returned from it ends the read loop.
func (d *Driver) OnMessage(fn func(entity.Frame) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = fn
}

// OnError registers the transport error callback.
func (d *Driver) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// Connect performs the websocket handshake against a wss:// URL.
func (d *Driver) Connect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "wss" {
		return fmt.Errorf("%w: %q", domainerrors.ErrInsecureURL, rawURL)
	}

	d.mu.Lock()
	if d.initialised {
		d.mu.Unlock()
		return domainerrors.ErrAlreadyConnected
	}
	d.initialised = true
	d.mu.Unlock()

	conn, resp, err := d.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return domainerrors.NewTransientError("dialing stream", err)
	}

	d.mu.Lock()
	d.conn = conn
	onOpen := d.onOpen
	d.mu.Unlock()
	d.connected.Store(true)

	d.logger.Debug("stream opened", "host", u.Host)
	if onOpen != nil {
		onOpen()
	}
	return nil
}

// ReadLoop reads frames until the stream ends, the context is cancelled or
// a frame callback fails. A peer close or EOF yields ErrEndOfStream.
func (d *Driver) ReadLoop(ctx context.Context) error {
	conn := d.current()
	if conn == nil {
		return domainerrors.ErrNotListening
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer d.connected.Store(false)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isEndOfStream(err) {
				return fmt.Errorf("%w: %v", domainerrors.ErrEndOfStream, err)
			}
			connErr := &domainerrors.ConnectionError{Err: err}
			if fn := d.errorHandler(); fn != nil {
				fn(connErr)
			}
			return connErr
		}

		frame, err := entity.ParseFrame(data)
		if err != nil {
			d.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(data))
			continue
		}
		if fn := d.messageHandler(); fn != nil {
			if err := fn(frame); err != nil {
				return err
			}
		}
	}
}

// Write sends v as a JSON text frame.
func (d *Driver) Write(v any) error {
	conn := d.current()
	if conn == nil || !d.connected.Load() {
		return domainerrors.ErrNotListening
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return &domainerrors.ConnectionError{Err: err}
	}
	if err := conn.WriteJSON(v); err != nil {
		return &domainerrors.ConnectionError{Err: err}
	}
	return nil
}

// Ping sends a websocket ping control frame.
func (d *Driver) Ping() error {
	conn := d.current()
	if conn == nil || !d.connected.Load() {
		return domainerrors.ErrNotListening
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		return &domainerrors.ConnectionError{Err: err}
	}
	return nil
}

// Connected reports whether the socket is open.
func (d *Driver) Connected() bool {
	return d.connected.Load()
}

// Close closes the socket with a normal closure frame.
func (d *Driver) Close() error {
	conn := d.current()
	if conn == nil {
		return nil
	}
	d.connected.Store(false)

	d.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	d.writeMu.Unlock()

	return conn.Close()
}

func (d *Driver) current() *websocket.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

func (d *Driver) messageHandler() func(entity.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onMessage
}

func (d *Driver) errorHandler() func(error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onError
}

// isEndOfStream reports closes that mean the upstream is done with us
// rather than a broken transport.
func isEndOfStream(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}

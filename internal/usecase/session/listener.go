package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
)

// Callback handles a matched message. A returned error ends the read loop.
type Callback func(ctx context.Context, e *Event) error

// ListenerOption configures a listener at registration.
type ListenerOption func(*listenerConfig)

type listenerConfig struct {
	flags    []TextFlag
	require  entity.ContextSet
	prohibit entity.ContextSet
}

// WithFlags applies text flags before matching.
func WithFlags(flags ...TextFlag) ListenerOption {
	return func(c *listenerConfig) { c.flags = append(c.flags, flags...) }
}

// Require lists contexts that must all be present.
func Require(contexts ...entity.Context) ListenerOption {
	return func(c *listenerConfig) {
		for _, ctx := range contexts {
			c.require = c.require.With(ctx)
		}
	}
}

// Prohibit lists contexts that must all be absent.
func Prohibit(contexts ...entity.Context) ListenerOption {
	return func(c *listenerConfig) {
		for _, ctx := range contexts {
			c.prohibit = c.prohibit.With(ctx)
		}
	}
}

// Listener pairs a matcher with a callback. Everything but the collection
// membership and the conversation binding is fixed at creation.
type Listener struct {
	id       string
	matcher  Matcher
	flags    []TextFlag
	require  entity.ContextSet
	prohibit entity.ContextSet
	direct   bool
	callback Callback
	owner    *ListenerCollection

	mu           sync.RWMutex
	conversation *Conversation
}

func newListener(owner *ListenerCollection, matcher Matcher, callback Callback, direct bool, opts []ListenerOption) (*Listener, error) {
	if matcher == nil {
		return nil, errors.New("listener needs a matcher")
	}
	if callback == nil {
		return nil, errors.New("listener needs a callback")
	}

	var cfg listenerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	flags, err := normalizeFlags(cfg.flags)
	if err != nil {
		return nil, err
	}
	if !cfg.require.Disjoint(cfg.prohibit) {
		return nil, errors.New("a context cannot be both required and prohibited")
	}

	return &Listener{
		id:       uuid.NewString(),
		matcher:  matcher,
		flags:    flags,
		require:  cfg.require,
		prohibit: cfg.prohibit,
		direct:   direct,
		callback: callback,
		owner:    owner,
	}, nil
}

func (l *Listener) ID() string                    { return l.id }
func (l *Listener) Direct() bool                  { return l.direct }
func (l *Listener) Indirect() bool                { return !l.direct }
func (l *Listener) Flags() []TextFlag             { return append([]TextFlag(nil), l.flags...) }
func (l *Listener) Required() entity.ContextSet   { return l.require }
func (l *Listener) Prohibited() entity.ContextSet { return l.prohibit }

// Conversation returns the owning conversation, if any.
func (l *Listener) Conversation() *Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conversation
}

func (l *Listener) bind(c *Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversation = c
}

// Match runs the matcher over the message text processed with the listener's flags.
func (l *Listener) Match(m *Message) (*Match, bool) {
	return l.matcher.Match(m.Processed(l.flags))
}

// Accepts reports whether a message context set satisfies the listener's
// required and prohibited contexts.
func (l *Listener) Accepts(contexts entity.ContextSet) bool {
	return contexts.Contains(l.require) && contexts.Disjoint(l.prohibit)
}

// StopListening removes the listener from its collection. It is safe to call
// more than once and from inside the listener's own callback.
func (l *Listener) StopListening() *Listener {
	l.owner.Remove(l)
	return l
}

// Active reports whether the listener is still registered.
func (l *Listener) Active() bool {
	return l.owner.Contains(l)
}

func (l *Listener) call(ctx context.Context, e *Event) error {
	return l.callback(ctx, e)
}

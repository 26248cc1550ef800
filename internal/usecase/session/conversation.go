package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// Conversation scopes follow-up listeners to one sender in one channel.
type Conversation struct {
	id      string
	session *Session
	channel entity.Channel
	sender  entity.User

	mu        sync.Mutex
	listeners []*Listener
}

func newConversation(s *Session, channel entity.Channel, sender entity.User) (*Conversation, error) {
	if channel.IsGuest() {
		return nil, &domainerrors.NotInChannelError{Channel: channel.String()}
	}
	return &Conversation{
		id:      uuid.NewString(),
		session: s,
		channel: channel,
		sender:  sender,
	}, nil
}

func (c *Conversation) ID() string              { return c.id }
func (c *Conversation) Channel() entity.Channel { return c.channel }
func (c *Conversation) Sender() entity.User     { return c.sender }

// Includes reports whether a message from sender in channel belongs here.
func (c *Conversation) Includes(sender entity.User, channel entity.Channel) bool {
	return sender.ID != "" && sender.ID == c.sender.ID && channel.ID() == c.channel.ID()
}

// ListenFor registers a direct listener bound to this conversation. It only
// fires for messages the conversation includes.
func (c *Conversation) ListenFor(matcher Matcher, callback Callback, opts ...ListenerOption) (*Listener, error) {
	opts = append(opts, Require(entity.ContextConversation))
	l, err := newListener(c.session.listeners, matcher, callback, true, opts)
	if err != nil {
		return nil, err
	}
	l.bind(c)

	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()

	c.session.listeners.add(l)
	return l, nil
}

// Ask registers a one-shot listener for the answer, then posts question.
// The answered listener is removed and no longer owned by the conversation.
// A nil expect accepts any reply.
func (c *Conversation) Ask(ctx context.Context, question string, expect Matcher, onAnswer Callback, opts ...ListenerOption) error {
	if expect == nil {
		expect = Anything()
	}
	l, err := c.ListenFor(expect, func(ctx context.Context, e *Event) error {
		e.StopListening()
		c.forget(e.Listener())
		return onAnswer(ctx, e)
	}, opts...)
	if err != nil {
		return err
	}

	if err := c.Reply(ctx, question); err != nil {
		l.StopListening()
		c.forget(l)
		return err
	}
	return nil
}

// Listeners returns the listeners the conversation still owns.
func (c *Conversation) Listeners() []*Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Listener(nil), c.listeners...)
}

func (c *Conversation) forget(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, owned := range c.listeners {
		if owned == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Reply posts messages to the conversation's channel.
func (c *Conversation) Reply(ctx context.Context, messages ...string) error {
	return c.session.Reply(ctx, c.channel, messages...)
}

// End removes every listener the conversation registered.
func (c *Conversation) End() {
	c.mu.Lock()
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, l := range listeners {
		l.StopListening()
	}
}

// Active reports whether any of the conversation's listeners is still registered.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	listeners := append([]*Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		if l.Active() {
			return true
		}
	}
	return false
}

package session

import (
	"context"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// Event is handed to a matched listener's callback.
type Event struct {
	Message *Message
	Channel entity.Channel
	Sender  entity.User
	Match   *Match

	listener *Listener
	session  *Session
}

// Listener returns the listener that matched.
func (e *Event) Listener() *Listener { return e.listener }

// Matched returns a named capture from the match.
func (e *Event) Matched(name string) string { return e.Match.Get(name) }

// Reply posts messages to the event's channel, paced by typing speed.
func (e *Event) Reply(ctx context.Context, messages ...string) error {
	return e.session.Reply(ctx, e.Channel, messages...)
}

// RandomReply posts one of replies chosen uniformly.
func (e *Event) RandomReply(ctx context.Context, replies ...string) error {
	return e.session.RandomReply(ctx, e.Channel, replies...)
}

// WeightedReply posts one reply chosen by weight. Weights must sum to 1.
func (e *Event) WeightedReply(ctx context.Context, weights map[string]float64) error {
	return e.session.WeightedReply(ctx, e.Channel, weights)
}

// React adds emoji reactions to the message.
func (e *Event) React(ctx context.Context, emojis ...string) error {
	if e.Channel.IsGuest() {
		return &domainerrors.NotInChannelError{Channel: e.Channel.String()}
	}
	return e.session.conn.AddReaction(ctx, e.Channel.ID(), e.Message.Timestamp(), emojis...)
}

// Typing shows the typing indicator in the event's channel.
func (e *Event) Typing(ctx context.Context) error {
	if e.Channel.IsGuest() {
		return &domainerrors.NotInChannelError{Channel: e.Channel.String()}
	}
	return e.session.conn.Typing(ctx, e.Channel.ID())
}

// StopListening removes the listener that matched.
func (e *Event) StopListening() {
	e.listener.StopListening()
}

// StartConversation opens a conversation with the sender in this channel.
func (e *Event) StartConversation() (*Conversation, error) {
	return e.session.StartConversation(e.Channel, e.Sender)
}

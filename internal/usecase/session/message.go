package session

import (
	"context"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
)

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
)

// NormalizeText unescapes HTML entities, straightens curly quotes and trims whitespace.
func NormalizeText(text string) string {
	return strings.TrimSpace(quoteReplacer.Replace(html.UnescapeString(text)))
}

// Message is one inbound chat message. Sender and channel are resolved on
// first use and memoised.
type Message struct {
	conn Connection
	data slack.Msg
	text string
	bot  entity.BotUser

	senderOnce sync.Once
	sender     entity.User
	senderErr  error

	channelOnce sync.Once
	channel     entity.Channel
	channelErr  error

	mu        sync.Mutex
	processed map[string]string
}

// NewMessage wraps a decoded message frame.
func NewMessage(conn Connection, data slack.Msg, bot entity.BotUser) *Message {
	return &Message{
		conn:      conn,
		data:      data,
		text:      NormalizeText(data.Text),
		bot:       bot,
		processed: make(map[string]string),
	}
}

// Text returns the normalized text.
func (m *Message) Text() string { return m.text }

// String returns the normalized text.
func (m *Message) String() string { return m.text }

// RawText returns the text as delivered.
func (m *Message) RawText() string { return m.data.Text }

// Timestamp returns the message ts, which doubles as its ID within a channel.
func (m *Message) Timestamp() string { return m.data.Timestamp }

// ThreadTimestamp returns the parent thread ts, or "".
func (m *Message) ThreadTimestamp() string { return m.data.ThreadTimestamp }

// Subtype returns the message subtype, or "" for ordinary messages.
func (m *Message) Subtype() string { return m.data.SubType }

// SenderID returns the author's user ID.
func (m *Message) SenderID() string { return m.data.User }

// ChannelID returns the conversation ID.
func (m *Message) ChannelID() string { return m.data.Channel }

// Sender resolves the author. Messages without an author yield a zero user.
func (m *Message) Sender(ctx context.Context) (entity.User, error) {
	m.senderOnce.Do(func() {
		if m.data.User == "" {
			return
		}
		m.sender, m.senderErr = m.conn.FindUser(ctx, m.data.User)
	})
	return m.sender, m.senderErr
}

// Channel resolves the conversation the message was posted in.
func (m *Message) Channel(ctx context.Context) (entity.Channel, error) {
	m.channelOnce.Do(func() {
		m.channel, m.channelErr = m.conn.FindChannel(ctx, m.data.Channel)
	})
	return m.channel, m.channelErr
}

// Contains reports whether the normalized text contains s.
func (m *Message) Contains(s string) bool {
	return strings.Contains(m.text, s)
}

// Matches reports whether the normalized text matches re.
func (m *Message) Matches(re *regexp.Regexp) bool {
	return re.MatchString(m.text)
}

// MentionsBot reports whether the text names the bot.
func (m *Message) MentionsBot() bool {
	if m.bot.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.text), strings.ToLower(m.bot.Name))
}

// Processed returns the text with flags applied, cached per flag set.
func (m *Message) Processed(flags []TextFlag) string {
	if len(flags) == 0 {
		return m.text
	}
	key := flagsKey(flags)

	m.mu.Lock()
	defer m.mu.Unlock()
	if text, ok := m.processed[key]; ok {
		return text
	}
	text := applyFlags(m.text, flags, m.bot)
	m.processed[key] = text
	return text
}

package session

import (
	"context"
	"regexp"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  plain  ", want: "plain"},
		{in: "fish &amp; chips", want: "fish & chips"},
		{in: "&lt;tag&gt;", want: "<tag>"},
		{in: "it’s “quoted”", want: `it's "quoted"`},
		{in: "‘single’", want: "'single'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), tt.in)
	}
}

func TestMessage_Accessors(t *testing.T) {
	conn := newFakeConnection()
	data := msg("C1", "U1", " Hey lilbot, ship it &amp; tell me ")
	data.ThreadTimestamp = "1699999999.000001"
	m := NewMessage(conn, data, conn.Bot())

	assert.Equal(t, "Hey lilbot, ship it & tell me", m.Text())
	assert.Equal(t, m.Text(), m.String())
	assert.Equal(t, data.Text, m.RawText())
	assert.Equal(t, "1700000000.000100", m.Timestamp())
	assert.Equal(t, "1699999999.000001", m.ThreadTimestamp())
	assert.Equal(t, "U1", m.SenderID())
	assert.Equal(t, "C1", m.ChannelID())
	assert.Empty(t, m.Subtype())
	assert.True(t, m.Contains("ship it"))
	assert.True(t, m.Matches(regexp.MustCompile(`^Hey`)))
	assert.True(t, m.MentionsBot())
}

func TestMessage_MentionsBot(t *testing.T) {
	conn := newFakeConnection()

	assert.True(t, NewMessage(conn, msg("C1", "U1", "LILBOT help"), conn.Bot()).MentionsBot())
	assert.False(t, NewMessage(conn, msg("C1", "U1", "help"), conn.Bot()).MentionsBot())
	assert.False(t, NewMessage(conn, msg("C1", "U1", "help"), entity.BotUser{}).MentionsBot())
}

func TestMessage_SenderAndChannelAreMemoised(t *testing.T) {
	conn := newFakeConnection()
	m := NewMessage(conn, msg("G1", "U2", "hi"), conn.Bot())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sender, err := m.Sender(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", sender.Username)
	}
	assert.Equal(t, 1, conn.userLookups)

	ch, err := m.Channel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", ch.String())
	assert.True(t, ch.IsPrivateGroup())
}

func TestMessage_SenderWithoutAuthor(t *testing.T) {
	conn := newFakeConnection()
	m := NewMessage(conn, slack.Msg{Channel: "C1", Text: "system notice"}, conn.Bot())

	sender, err := m.Sender(context.Background())
	require.NoError(t, err)
	assert.True(t, sender.IsZero())
	assert.Zero(t, conn.userLookups)
}

func TestMessage_UnknownSender(t *testing.T) {
	conn := newFakeConnection()
	m := NewMessage(conn, msg("C1", "U404", "hi"), conn.Bot())

	_, err := m.Sender(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestMessage_Processed(t *testing.T) {
	conn := newFakeConnection()
	m := NewMessage(conn, msg("C1", "U1", "@lilbot What's up? :smile: at 10:30"), conn.Bot())

	tests := []struct {
		name  string
		flags []TextFlag
		want  string
	}{
		{name: "no flags", want: "@lilbot What's up? :smile: at 10:30"},
		{name: "downcase", flags: []TextFlag{FlagDowncase}, want: "@lilbot what's up? :smile: at 10:30"},
		{name: "no mentions", flags: []TextFlag{FlagNoMentions}, want: "What's up? :smile: at 10:30"},
		{name: "no emoji keeps times", flags: []TextFlag{FlagNoEmoji}, want: "@lilbot What's up? at 10:30"},
		{name: "no punctuation keeps mention", flags: []TextFlag{FlagNoPunctuation}, want: "@lilbot Whats up smile at 1030"},
		{
			name:  "all",
			flags: []TextFlag{FlagNoPunctuation, FlagNoMentions, FlagNoEmoji, FlagDowncase},
			want:  "whats up at 1030",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := normalizeFlags(tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Processed(flags))
		})
	}
}

func TestApplyFlags_NoEmojiKeepsClockTimes(t *testing.T) {
	bot := entity.BotUser{ID: "U0", Name: "lilbot"}
	got := applyFlags("meet at 10:30:45 :thumbsup: :+1: ok", []TextFlag{FlagNoEmoji}, bot)
	assert.Equal(t, "meet at 10:30:45 ok", got)
}

func TestMessage_ProcessedIsCachedPerFlagSet(t *testing.T) {
	conn := newFakeConnection()
	m := NewMessage(conn, msg("C1", "U1", "Hello THERE"), conn.Bot())

	first := m.Processed([]TextFlag{FlagDowncase})
	second := m.Processed([]TextFlag{FlagDowncase})
	assert.Equal(t, "hello there", first)
	assert.Equal(t, first, second)
	assert.Len(t, m.processed, 1)
}

package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// messageParams collects the whitelisted chat.postMessage parameters.
type messageParams struct {
	values      map[string]string
	attachments []slack.Attachment
}

// MessageOption sets one optional message parameter.
type MessageOption func(*messageParams)

// AsUser posts as the authenticated user. Defaults to true.
func AsUser(v bool) MessageOption {
	return func(p *messageParams) { p.values["as_user"] = strconv.FormatBool(v) }
}

// LinkNames controls whether @names and #channels become links. Defaults to on.
func LinkNames(v bool) MessageOption {
	return func(p *messageParams) {
		if v {
			p.values["link_names"] = "1"
		} else {
			p.values["link_names"] = "0"
		}
	}
}

// Username overrides the display name when not posting as the user.
func Username(name string) MessageOption {
	return func(p *messageParams) { p.values["username"] = name }
}

// Parse sets the message parse mode ("full" or "none").
func Parse(mode string) MessageOption {
	return func(p *messageParams) { p.values["parse"] = mode }
}

// UnfurlLinks toggles link previews.
func UnfurlLinks(v bool) MessageOption {
	return func(p *messageParams) { p.values["unfurl_links"] = strconv.FormatBool(v) }
}

// UnfurlMedia toggles media previews.
func UnfurlMedia(v bool) MessageOption {
	return func(p *messageParams) { p.values["unfurl_media"] = strconv.FormatBool(v) }
}

// IconURL sets the avatar image URL.
func IconURL(u string) MessageOption {
	return func(p *messageParams) { p.values["icon_url"] = u }
}

// IconEmoji sets the avatar emoji.
func IconEmoji(emoji string) MessageOption {
	return func(p *messageParams) { p.values["icon_emoji"] = emoji }
}

// InThread replies in the thread rooted at ts.
func InThread(ts string) MessageOption {
	return func(p *messageParams) { p.values["thread_ts"] = ts }
}

// ReplyBroadcast also posts a threaded reply to the channel.
func ReplyBroadcast() MessageOption {
	return func(p *messageParams) { p.values["reply_broadcast"] = "true" }
}

// Attachments adds legacy message attachments.
func Attachments(a ...slack.Attachment) MessageOption {
	return func(p *messageParams) { p.attachments = append(p.attachments, a...) }
}

func buildMessageParams(opts []MessageOption) (map[string]string, error) {
	p := &messageParams{values: map[string]string{
		"as_user":    "true",
		"link_names": "1",
	}}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.attachments) > 0 {
		data, err := json.Marshal(p.attachments)
		if err != nil {
			return nil, fmt.Errorf("encoding attachments: %w", err)
		}
		p.values["attachments"] = string(data)
	}
	return p.values, nil
}

// SendMessage posts text to a channel reference ("#name", "@user", group name or ID).
func (c *Connection) SendMessage(ctx context.Context, channel, text string, opts ...MessageOption) (Response, error) {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return nil, err
	}
	params, err := buildMessageParams(opts)
	if err != nil {
		return nil, err
	}
	params["channel"] = channelID
	params["text"] = text
	return c.API(ctx, "chat.postMessage", params)
}

// Say posts text with the default message options.
func (c *Connection) Say(ctx context.Context, channel, text string) error {
	_, err := c.SendMessage(ctx, channel, text)
	return err
}

// UpdateMessage replaces the text of the message at ts.
func (c *Connection) UpdateMessage(ctx context.Context, channel, ts, text string, opts ...MessageOption) (Response, error) {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return nil, err
	}
	params, err := buildMessageParams(opts)
	if err != nil {
		return nil, err
	}
	delete(params, "thread_ts")
	delete(params, "reply_broadcast")
	params["channel"] = channelID
	params["ts"] = ts
	params["text"] = text
	return c.API(ctx, "chat.update", params)
}

// GetMessage fetches the message at ts along with its reactions.
func (c *Connection) GetMessage(ctx context.Context, channel, ts string) (slack.Message, error) {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return slack.Message{}, err
	}
	resp, err := c.API(ctx, "reactions.get", map[string]string{
		"channel":   channelID,
		"timestamp": ts,
	})
	if err != nil {
		return slack.Message{}, err
	}
	var msg slack.Message
	if err := resp.Decode("message", &msg); err != nil {
		return slack.Message{}, domainerrors.NewPermanentError("reactions.get", err)
	}
	return msg, nil
}

// AddReaction adds each emoji to the message at ts, one call per emoji.
// Surrounding colons are stripped; the first failure stops the batch.
func (c *Connection) AddReaction(ctx context.Context, channel, ts string, emojis ...string) error {
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return err
	}
	for _, emoji := range emojis {
		name := strings.TrimSuffix(strings.TrimPrefix(emoji, ":"), ":")
		if _, err := c.API(ctx, "reactions.add", map[string]string{
			"name":      name,
			"channel":   channelID,
			"timestamp": ts,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Typing shows the typing indicator in channel over the open stream.
func (c *Connection) Typing(ctx context.Context, channel string) error {
	driver := c.currentDriver()
	if driver == nil || !driver.Connected() {
		return domainerrors.ErrNotListening
	}
	channelID, err := c.ResolveChannelID(ctx, channel)
	if err != nil {
		return err
	}
	return driver.Write(map[string]any{
		"id":      c.messageID.Add(1),
		"type":    "typing",
		"channel": channelID,
	})
}

// Ping sends a keepalive over the open stream.
func (c *Connection) Ping() error {
	driver := c.currentDriver()
	if driver == nil || !driver.Connected() {
		return domainerrors.ErrNotListening
	}
	return driver.Ping()
}

// ResolveChannelID turns a channel reference into a conversation ID.
func (c *Connection) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	return c.cache.ResolveChannelID(ctx, ref)
}

// CanSee reports whether ref resolves to a conversation.
func (c *Connection) CanSee(ctx context.Context, ref string) bool {
	_, err := c.ResolveChannelID(ctx, ref)
	return err == nil
}

// FindChannel returns the conversation for an ID. A user ID yields the
// direct message channel with that user.
func (c *Connection) FindChannel(ctx context.Context, id string) (entity.Channel, error) {
	switch {
	case strings.HasPrefix(id, "U"), strings.HasPrefix(id, "W"):
		user, err := c.cache.FindUser(ctx, id)
		if err != nil {
			return entity.Channel{}, err
		}
		dmID, err := c.cache.ResolveChannelID(ctx, user.String())
		if err != nil {
			return entity.Channel{}, err
		}
		return c.cache.FindDirectMessage(ctx, dmID)
	case strings.HasPrefix(id, "D"):
		return c.cache.FindDirectMessage(ctx, id)
	default:
		return c.cache.FindConversation(ctx, id)
	}
}

// FindUser returns the user with the given ID.
func (c *Connection) FindUser(ctx context.Context, id string) (entity.User, error) {
	return c.cache.FindUser(ctx, id)
}

// FindUserByNickname returns the user with the given username.
func (c *Connection) FindUserByNickname(ctx context.Context, name string) (entity.User, error) {
	return c.cache.FindUserByName(ctx, name)
}

// UserExists reports whether a username resolves.
func (c *Connection) UserExists(ctx context.Context, name string) bool {
	_, err := c.cache.FindUserByName(ctx, name)
	return err == nil
}

// Users returns every known user, fetching the directory when the cache is empty.
func (c *Connection) Users(ctx context.Context) ([]entity.User, error) {
	if users := c.cache.Users(); len(users) > 0 {
		return users, nil
	}
	if err := c.cache.RefreshUsers(ctx); err != nil {
		return nil, err
	}
	return c.cache.Users(), nil
}

// Channels returns the names of every known user and conversation,
// fetching both directories when the cache is empty.
func (c *Connection) Channels(ctx context.Context) ([]string, error) {
	if c.cache.Empty() {
		if err := c.cache.RefreshUsers(ctx); err != nil {
			return nil, err
		}
		if err := c.cache.RefreshConversations(ctx); err != nil {
			return nil, err
		}
	}
	return c.cache.Names(), nil
}

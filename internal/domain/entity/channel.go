package entity

// ChannelKind distinguishes the conversation families Slack exposes.
type ChannelKind int

const (
	// ChannelPublic is an ordinary #channel.
	ChannelPublic ChannelKind = iota
	// ChannelPrivateGroup is a private channel or multi-party group.
	ChannelPrivateGroup
	// ChannelDirectMessage is a one-to-one conversation with the bot.
	ChannelDirectMessage
)

// String returns a readable kind name.
func (k ChannelKind) String() string {
	switch k {
	case ChannelPrivateGroup:
		return "private_group"
	case ChannelDirectMessage:
		return "direct_message"
	default:
		return "public"
	}
}

// KindFromID infers the channel kind from the identifier prefix.
func KindFromID(id string) ChannelKind {
	if id == "" {
		return ChannelPublic
	}
	switch id[0] {
	case 'D':
		return ChannelDirectMessage
	case 'G':
		return ChannelPrivateGroup
	default:
		return ChannelPublic
	}
}

// Channel is an immutable view of a conversation the bot can see.
// A guest channel is visible to the bot but the bot is not a member of it.
type Channel struct {
	id    string
	name  string
	kind  ChannelKind
	guest bool
}

// NewChannel builds a channel the bot is a member of.
func NewChannel(id, name string, kind ChannelKind) Channel {
	return Channel{id: id, name: name, kind: kind}
}

// NewGuestChannel builds a channel the bot can observe but not post in.
func NewGuestChannel(id, name string) Channel {
	return Channel{id: id, name: name, kind: KindFromID(id), guest: true}
}

func (c Channel) ID() string        { return c.id }
func (c Channel) Name() string      { return c.name }
func (c Channel) Kind() ChannelKind { return c.kind }

// IsGuest reports whether the bot lacks membership in the channel.
func (c Channel) IsGuest() bool { return c.guest }

func (c Channel) IsDirectMessage() bool { return c.kind == ChannelDirectMessage }
func (c Channel) IsPrivateGroup() bool  { return c.kind == ChannelPrivateGroup }

// IsZero reports whether the channel carries no identity.
func (c Channel) IsZero() bool { return c.id == "" }

// String renders the channel by kind: private groups by bare name,
// direct messages as "@name", everything else as "#name".
func (c Channel) String() string {
	switch c.kind {
	case ChannelPrivateGroup:
		return c.name
	case ChannelDirectMessage:
		return "@" + c.name
	default:
		return "#" + c.name
	}
}

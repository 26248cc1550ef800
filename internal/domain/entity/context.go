package entity

import "strings"

// Context describes how an inbound message reached the bot.
type Context uint8

const (
	// ContextDirectMessage marks messages sent in a direct message channel.
	ContextDirectMessage Context = 1 << iota
	// ContextMention marks messages that mention the bot by name.
	ContextMention
	// ContextConversation marks messages belonging to an active conversation.
	ContextConversation
)

func (c Context) String() string {
	switch c {
	case ContextDirectMessage:
		return "direct_message"
	case ContextMention:
		return "mention"
	case ContextConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// ContextSet is a set of contexts.
type ContextSet uint8

// NewContextSet builds a set from the given contexts.
func NewContextSet(contexts ...Context) ContextSet {
	var s ContextSet
	for _, c := range contexts {
		s = s.With(c)
	}
	return s
}

// With returns a copy of the set including c.
func (s ContextSet) With(c Context) ContextSet {
	return s | ContextSet(c)
}

// Has reports whether c is in the set.
func (s ContextSet) Has(c Context) bool {
	return s&ContextSet(c) != 0
}

// Contains reports whether every context in other is also in s.
func (s ContextSet) Contains(other ContextSet) bool {
	return s&other == other
}

// Disjoint reports whether s and other share no context.
func (s ContextSet) Disjoint(other ContextSet) bool {
	return s&other == 0
}

// IsEmpty reports whether the set has no members.
func (s ContextSet) IsEmpty() bool {
	return s == 0
}

func (s ContextSet) String() string {
	var names []string
	for _, c := range []Context{ContextDirectMessage, ContextMention, ContextConversation} {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return "[" + strings.Join(names, ",") + "]"
}

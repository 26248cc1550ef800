package entity

import "strings"

// User is a workspace member as observed at the last directory fetch.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// Name returns the user's full name, falling back to the username.
func (u User) Name() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

// String renders the user the way a mention would appear in chat.
func (u User) String() string {
	return "@" + u.Username
}

// IsZero reports whether the user carries no identity.
func (u User) IsZero() bool {
	return u.ID == ""
}

// BotUser is the identity the connection authenticated as.
type BotUser struct {
	ID   string
	Name string
}

// String renders the bot as a mention.
func (b BotUser) String() string {
	return "@" + b.Name
}

// Team is the workspace the connection belongs to.
type Team struct {
	ID     string
	Name   string
	Domain string
}

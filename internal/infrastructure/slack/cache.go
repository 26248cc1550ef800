package slack

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/slack-go/slack"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// idPattern matches references that are already IDs. User IDs are accepted
// as message targets by the Web API, so they pass through too.
var idPattern = regexp.MustCompile(`^[CDGUW][A-Z0-9]+$`)

// Directory is the upstream source the cache refreshes from.
type Directory interface {
	FetchUsers(ctx context.Context) ([]slack.User, error)
	FetchConversations(ctx context.Context) ([]slack.Channel, error)
}

// EntityCache holds the user and conversation directories. Lookups that
// miss trigger exactly one refresh of the relevant directory before failing.
type EntityCache struct {
	directory Directory
	onRefresh func(ctx context.Context, kind string)

	mu              sync.RWMutex
	usersByID       map[string]entity.User
	userIDByName    map[string]string
	channelsByID    map[string]entity.Channel
	channelIDByName map[string]string
	groupsByID      map[string]entity.Channel
	groupIDByName   map[string]string
	dmByUserID      map[string]string
	userIDByDM      map[string]string
}

// NewEntityCache returns an empty cache backed by directory.
func NewEntityCache(directory Directory) *EntityCache {
	return &EntityCache{
		directory:       directory,
		usersByID:       make(map[string]entity.User),
		userIDByName:    make(map[string]string),
		channelsByID:    make(map[string]entity.Channel),
		channelIDByName: make(map[string]string),
		groupsByID:      make(map[string]entity.Channel),
		groupIDByName:   make(map[string]string),
		dmByUserID:      make(map[string]string),
		userIDByDM:      make(map[string]string),
	}
}

// SetRefreshHook registers fn to run after every successful refresh.
func (c *EntityCache) SetRefreshHook(fn func(ctx context.Context, kind string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = fn
}

// Seed merges a handshake payload into the cache. Existing entries survive.
func (c *EntityCache) Seed(users []slack.User, conversations []slack.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range users {
		c.putUserLocked(userFromSlack(u))
	}
	for _, ch := range conversations {
		c.putConversationLocked(ch)
	}
}

// PutUser inserts or replaces a user.
func (c *EntityCache) PutUser(u slack.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putUserLocked(userFromSlack(u))
}

// PutConversation inserts or replaces a conversation.
func (c *EntityCache) PutConversation(ch slack.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putConversationLocked(ch)
}

// RefreshUsers replaces the user directory wholesale.
func (c *EntityCache) RefreshUsers(ctx context.Context) error {
	users, err := c.directory.FetchUsers(ctx)
	if err != nil {
		return err
	}
	c.notify(ctx, "users")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.usersByID = make(map[string]entity.User, len(users))
	c.userIDByName = make(map[string]string, len(users))
	for _, u := range users {
		c.putUserLocked(userFromSlack(u))
	}
	return nil
}

// RefreshConversations replaces channels and groups wholesale. Direct
// message channels are only ever added.
func (c *EntityCache) RefreshConversations(ctx context.Context) error {
	conversations, err := c.directory.FetchConversations(ctx)
	if err != nil {
		return err
	}
	c.notify(ctx, "conversations")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelsByID = make(map[string]entity.Channel)
	c.channelIDByName = make(map[string]string)
	c.groupsByID = make(map[string]entity.Channel)
	c.groupIDByName = make(map[string]string)
	for _, ch := range conversations {
		c.putConversationLocked(ch)
	}
	return nil
}

func (c *EntityCache) notify(ctx context.Context, kind string) {
	c.mu.RLock()
	fn := c.onRefresh
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx, kind)
	}
}

// ResolveChannelID turns a reference into a conversation ID. IDs pass
// through unchanged, "@name" resolves to the user's direct message channel,
// "#name" to a channel and a bare name to a private group.
func (c *EntityCache) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	switch {
	case idPattern.MatchString(ref):
		return ref, nil
	case strings.HasPrefix(ref, "@"):
		return c.resolveDirectMessage(ctx, ref)
	case strings.HasPrefix(ref, "#"):
		id, err := c.lookupWithRefresh(ctx, func() (string, bool) {
			return c.lookupName(c.channelIDByName, strings.TrimPrefix(ref, "#"))
		}, c.RefreshConversations)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", domainerrors.NewChannelNotFound(ref)
		}
		return id, nil
	default:
		id, err := c.lookupWithRefresh(ctx, func() (string, bool) {
			return c.lookupName(c.groupIDByName, ref)
		}, c.RefreshConversations)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", domainerrors.NewGroupNotFound(ref)
		}
		return id, nil
	}
}

func (c *EntityCache) resolveDirectMessage(ctx context.Context, ref string) (string, error) {
	userID, err := c.lookupWithRefresh(ctx, func() (string, bool) {
		return c.lookupName(c.userIDByName, strings.TrimPrefix(ref, "@"))
	}, c.RefreshUsers)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", domainerrors.NewCannotMessageUser(ref)
	}

	dmID, err := c.lookupWithRefresh(ctx, func() (string, bool) {
		return c.lookupName(c.dmByUserID, userID)
	}, c.RefreshConversations)
	if err != nil {
		return "", err
	}
	if dmID == "" {
		return "", domainerrors.NewCannotMessageUser(ref)
	}
	return dmID, nil
}

// lookupWithRefresh runs lookup, and on a miss refreshes once and retries.
// A miss after the refresh yields "" and no error.
func (c *EntityCache) lookupWithRefresh(ctx context.Context, lookup func() (string, bool), refresh func(context.Context) error) (string, error) {
	if v, ok := lookup(); ok {
		return v, nil
	}
	if err := refresh(ctx); err != nil {
		return "", err
	}
	v, _ := lookup()
	return v, nil
}

func (c *EntityCache) lookupName(m map[string]string, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := m[key]
	return v, ok
}

// FindUser returns the user with the given ID.
func (c *EntityCache) FindUser(ctx context.Context, id string) (entity.User, error) {
	get := func() (entity.User, bool) {
		c.mu.RLock()
		defer c.mu.RUnlock()
		u, ok := c.usersByID[id]
		return u, ok
	}
	if u, ok := get(); ok {
		return u, nil
	}
	if err := c.RefreshUsers(ctx); err != nil {
		return entity.User{}, err
	}
	if u, ok := get(); ok {
		return u, nil
	}
	return entity.User{}, domainerrors.NewUserNotFound(id)
}

// FindUserByName returns the user with the given username, with or without a leading "@".
func (c *EntityCache) FindUserByName(ctx context.Context, name string) (entity.User, error) {
	name = strings.TrimPrefix(name, "@")
	id, err := c.lookupWithRefresh(ctx, func() (string, bool) {
		return c.lookupName(c.userIDByName, name)
	}, c.RefreshUsers)
	if err != nil {
		return entity.User{}, err
	}
	if id == "" {
		return entity.User{}, domainerrors.NewUserNotFound("@" + name)
	}
	return c.FindUser(ctx, id)
}

// FindConversation returns the channel or group with the given ID.
func (c *EntityCache) FindConversation(ctx context.Context, id string) (entity.Channel, error) {
	get := func() (entity.Channel, bool) {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if ch, ok := c.channelsByID[id]; ok {
			return ch, true
		}
		ch, ok := c.groupsByID[id]
		return ch, ok
	}
	if ch, ok := get(); ok {
		return ch, nil
	}
	if err := c.RefreshConversations(ctx); err != nil {
		return entity.Channel{}, err
	}
	if ch, ok := get(); ok {
		return ch, nil
	}
	return entity.Channel{}, domainerrors.NewChannelNotFound(id)
}

// FindDirectMessage returns the direct message channel with the given ID,
// named after the user on the other end.
func (c *EntityCache) FindDirectMessage(ctx context.Context, id string) (entity.Channel, error) {
	userID, err := c.lookupWithRefresh(ctx, func() (string, bool) {
		return c.lookupName(c.userIDByDM, id)
	}, c.RefreshConversations)
	if err != nil {
		return entity.Channel{}, err
	}
	if userID == "" {
		return entity.Channel{}, &domainerrors.ResolutionError{
			Kind:      "direct_message",
			Reference: id,
			Reason:    "no user for direct message",
		}
	}
	user, err := c.FindUser(ctx, userID)
	if err != nil {
		return entity.Channel{}, err
	}
	return entity.NewChannel(id, user.Username, entity.ChannelDirectMessage), nil
}

// Users returns every cached user ordered by username.
func (c *EntityCache) Users() []entity.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	users := make([]entity.User, 0, len(c.usersByID))
	for _, u := range c.usersByID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Names returns "@user", "#channel" and group names known to the cache, sorted.
func (c *EntityCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.userIDByName)+len(c.channelIDByName)+len(c.groupIDByName))
	for name := range c.userIDByName {
		names = append(names, "@"+name)
	}
	for name := range c.channelIDByName {
		names = append(names, "#"+name)
	}
	for name := range c.groupIDByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether the cache holds no users and no conversations.
func (c *EntityCache) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.usersByID) == 0 && len(c.channelsByID) == 0 && len(c.groupsByID) == 0
}

func (c *EntityCache) putUserLocked(u entity.User) {
	if u.ID == "" {
		return
	}
	if old, ok := c.usersByID[u.ID]; ok && old.Username != u.Username {
		delete(c.userIDByName, old.Username)
	}
	c.usersByID[u.ID] = u
	if u.Username != "" {
		c.userIDByName[u.Username] = u.ID
	}
}

func (c *EntityCache) putConversationLocked(ch slack.Channel) {
	id := ch.ID
	if id == "" {
		return
	}
	switch {
	case ch.IsIM:
		if ch.User != "" {
			c.dmByUserID[ch.User] = id
			c.userIDByDM[id] = ch.User
		}
	case ch.IsGroup || ch.IsMpIM || ch.IsPrivate:
		group := entity.NewChannel(id, ch.Name, entity.ChannelPrivateGroup)
		c.groupsByID[id] = group
		if ch.Name != "" {
			c.groupIDByName[ch.Name] = id
		}
	default:
		channel := entity.NewChannel(id, ch.Name, entity.ChannelPublic)
		if ch.IsChannel && !ch.IsMember {
			channel = entity.NewGuestChannel(id, ch.Name)
		}
		c.channelsByID[id] = channel
		if ch.Name != "" {
			c.channelIDByName[ch.Name] = id
		}
	}
}

func userFromSlack(u slack.User) entity.User {
	return entity.User{
		ID:        u.ID,
		Username:  u.Name,
		Email:     u.Profile.Email,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
	}
}

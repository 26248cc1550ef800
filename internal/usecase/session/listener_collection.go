package session

import (
	"sync"
)

// ListenerCollection is an ordered, concurrency-safe set of listeners.
// Dispatch iterates a snapshot, so callbacks may register or remove
// listeners while a message is being handled.
type ListenerCollection struct {
	mu        sync.RWMutex
	listeners []*Listener
	onChange  func(delta int64)
}

// NewListenerCollection returns an empty collection.
func NewListenerCollection() *ListenerCollection {
	return &ListenerCollection{}
}

// ListenFor registers a direct listener: it fires only for direct messages,
// mentions of the bot, or messages within its conversation.
func (c *ListenerCollection) ListenFor(matcher Matcher, callback Callback, opts ...ListenerOption) (*Listener, error) {
	return c.register(matcher, callback, true, opts)
}

// Overhear registers an indirect listener that fires on any visible message.
func (c *ListenerCollection) Overhear(matcher Matcher, callback Callback, opts ...ListenerOption) (*Listener, error) {
	return c.register(matcher, callback, false, opts)
}

func (c *ListenerCollection) register(matcher Matcher, callback Callback, direct bool, opts []ListenerOption) (*Listener, error) {
	l, err := newListener(c, matcher, callback, direct, opts)
	if err != nil {
		return nil, err
	}
	c.add(l)
	return l, nil
}

func (c *ListenerCollection) add(l *Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(1)
	}
}

// Remove unregisters l and reports whether it was present.
func (c *ListenerCollection) Remove(l *Listener) bool {
	c.mu.Lock()
	removed := false
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			removed = true
			break
		}
	}
	fn := c.onChange
	c.mu.Unlock()
	if removed && fn != nil {
		fn(-1)
	}
	return removed
}

// Contains reports whether l is registered.
func (c *ListenerCollection) Contains(l *Listener) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, existing := range c.listeners {
		if existing == l {
			return true
		}
	}
	return false
}

// Snapshot returns the listeners in registration order.
func (c *ListenerCollection) Snapshot() []*Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Listener(nil), c.listeners...)
}

// Len returns the number of registered listeners.
func (c *ListenerCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

func (c *ListenerCollection) setChangeHook(fn func(delta int64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

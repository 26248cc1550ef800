package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
)

type observers struct {
	mu       sync.RWMutex
	handlers map[string][]entity.FrameHandler
}

// On subscribes handler to frames of the given event type. Handlers run in
// subscription order; the first error stops the chain and ends Listen.
func (c *Connection) On(event string, handler entity.FrameHandler) {
	c.observers.mu.Lock()
	defer c.observers.mu.Unlock()
	if c.observers.handlers == nil {
		c.observers.handlers = make(map[string][]entity.FrameHandler)
	}
	c.observers.handlers[event] = append(c.observers.handlers[event], handler)
}

func (c *Connection) trigger(ctx context.Context, event string, frame entity.Frame) error {
	c.observers.mu.RLock()
	handlers := append([]entity.FrameHandler(nil), c.observers.handlers[event]...)
	c.observers.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, frame); err != nil {
			return fmt.Errorf("%s handler: %w", event, err)
		}
	}
	return nil
}

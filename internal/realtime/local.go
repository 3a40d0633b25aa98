package realtime

import (
	"context"
	"fmt"
	"sync"

	"readalong/internal/apperr"
	"readalong/internal/protocol"
)

// Local is an in-process transport backed directly by a Hub.
type Local struct {
	hub *Hub
}

// NewLocal returns a transport whose channels live in hub.
func NewLocal(hub *Hub) *Local {
	return &Local{hub: hub}
}

// Channel returns a fresh, unsubscribed handle.
func (l *Local) Channel(name string) Channel {
	return &localChannel{
		hub:    l.hub,
		name:   name,
		events: make(chan protocol.Event, defaultMemberBuffer),
		done:   make(chan struct{}),
	}
}

type localChannel struct {
	hub    *Hub
	name   string
	events chan protocol.Event

	mu     sync.Mutex
	member *Member
	done   chan struct{}
	closed bool
}

func (c *localChannel) Name() string { return c.name }

func (c *localChannel) Events() <-chan protocol.Event { return c.events }

func (c *localChannel) Subscribe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: channel %s already closed", apperr.ErrConnectivity, c.name)
	}
	if c.member != nil {
		return nil
	}

	m, err := c.hub.Join(c.name)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.name, err)
	}
	c.member = m
	go c.forward(m)
	return nil
}

func (c *localChannel) forward(m *Member) {
	defer close(c.events)
	for ev := range m.Events() {
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *localChannel) subscribed() (*Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.member == nil || c.closed {
		return nil, fmt.Errorf("%w: channel %s not subscribed", apperr.ErrConnectivity, c.name)
	}
	return c.member, nil
}

func (c *localChannel) Track(ctx context.Context, p protocol.Presence) error {
	m, err := c.subscribed()
	if err != nil {
		return err
	}
	m.Track(p)
	return nil
}

func (c *localChannel) Send(ctx context.Context, ev protocol.Event) error {
	if err := protocol.Validate(ev); err != nil {
		return err
	}
	m, err := c.subscribed()
	if err != nil {
		return err
	}
	m.Broadcast(ev)
	return nil
}

func (c *localChannel) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.member != nil {
		c.member.Leave()
	} else {
		close(c.events)
	}
	return nil
}

// Package realtime binds a session code to a named broadcast channel with
// presence. Hub is the relay; Local and Websocket are client transports.
package realtime

import (
	"context"

	"readalong/internal/protocol"
)

// Channel is one participant's handle on a named realtime channel.
//
// Events delivers presence changes and broadcasts from other members; a
// member never receives its own broadcasts. The events channel is closed
// after Unsubscribe or when the connection drops.
type Channel interface {
	Name() string
	Subscribe(ctx context.Context) error
	Track(ctx context.Context, p protocol.Presence) error
	Send(ctx context.Context, ev protocol.Event) error
	Events() <-chan protocol.Event
	Unsubscribe(ctx context.Context) error
}

// Transport opens channel handles by name.
type Transport interface {
	Channel(name string) Channel
}

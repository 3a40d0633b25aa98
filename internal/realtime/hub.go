package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"readalong/internal/protocol"
)

const (
	defaultMemberBuffer = 64
	// MaxMembers is the number of readers a session channel admits.
	MaxMembers = 2
)

// ErrChannelFull is returned by Join when the channel already has
// MaxMembers members.
var ErrChannelFull = errors.New("session already has two readers")

// Hub relays broadcasts between the members of named channels and
// synthesizes presence join/leave events from membership changes.
// A channel exists while it has at least one member.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]*Member
	buffer int
	log    zerolog.Logger
}

// NewHub creates an empty relay.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Member),
		buffer: defaultMemberBuffer,
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Member is a subscription to one channel of a Hub.
type Member struct {
	id       string
	channel  string
	hub      *Hub
	out      chan protocol.Event
	presence *protocol.Presence
	left     bool
}

// Join subscribes a new member to the named channel, creating it if needed.
func (h *Hub) Join(channel string) (*Member, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[channel]
	if len(room) >= MaxMembers {
		h.log.Warn().Str("channel", channel).Msg("channel_full")
		return nil, ErrChannelFull
	}
	if !ok {
		room = make(map[string]*Member)
		h.rooms[channel] = room
		h.log.Debug().Str("channel", channel).Msg("channel_created")
	}

	m := &Member{
		id:      uuid.NewString(),
		channel: channel,
		hub:     h,
		out:     make(chan protocol.Event, h.buffer),
	}
	room[m.id] = m
	return m, nil
}

// Channels returns the number of live channels.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Members returns the number of members subscribed to channel.
func (h *Hub) Members(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[channel])
}

// deliver queues ev for m. Callers hold h.mu. A full queue drops the event
// rather than stalling the whole channel on one slow reader.
func (h *Hub) deliver(m *Member, ev protocol.Event) {
	if m.left {
		return
	}
	select {
	case m.out <- ev:
	default:
		h.log.Warn().
			Str("channel", m.channel).
			Str("member", m.id).
			Str("kind", string(ev.Kind)).
			Msg("member_queue_full")
	}
}

// ID returns the relay-assigned member id.
func (m *Member) ID() string { return m.id }

// Events returns the member's inbound queue. It is closed by Leave.
func (m *Member) Events() <-chan protocol.Event { return m.out }

// Track records the member's presence, announces it to the other members
// and replays their presences to m. A member keeps the participant id it
// first tracked, and an id already tracked by another member is refused.
func (m *Member) Track(p protocol.Presence) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.left {
		return
	}
	if m.presence != nil && m.presence.ParticipantID != p.ParticipantID {
		h.log.Warn().
			Str("member", m.id).
			Str("tracked", m.presence.ParticipantID).
			Str("participant", p.ParticipantID).
			Msg("presence_change_refused")
		return
	}
	for id, other := range h.rooms[m.channel] {
		if id != m.id && other.presence != nil && other.presence.ParticipantID == p.ParticipantID {
			h.log.Warn().Str("member", m.id).Str("participant", p.ParticipantID).Msg("presence_duplicate_refused")
			return
		}
	}
	m.presence = &p

	join := protocol.PresenceJoin(p)
	for id, other := range h.rooms[m.channel] {
		if id == m.id {
			continue
		}
		h.deliver(other, join)
		if other.presence != nil {
			h.deliver(m, protocol.PresenceJoin(*other.presence))
		}
	}
}

// Broadcast sends ev to every other member of the channel. The sender is
// stamped from the member's tracked presence; an untracked member cannot
// broadcast.
func (m *Member) Broadcast(ev protocol.Event) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.left {
		return
	}
	if m.presence == nil {
		h.log.Warn().Str("member", m.id).Str("kind", string(ev.Kind)).Msg("broadcast_untracked")
		return
	}
	if ev.From != m.presence.ParticipantID {
		h.log.Warn().
			Str("member", m.id).
			Str("claimed", ev.From).
			Str("participant", m.presence.ParticipantID).
			Msg("broadcast_sender_restamped")
		ev.From = m.presence.ParticipantID
		if ev.Peer != nil {
			peer := *ev.Peer
			peer.UserID = ev.From
			ev.Peer = &peer
		}
	}
	for id, other := range h.rooms[m.channel] {
		if id != m.id {
			h.deliver(other, ev)
		}
	}
}

// Leave removes the member, announces a presence-leave if it was tracked
// and closes its queue. Leaving twice is a no-op.
func (m *Member) Leave() {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.left {
		return
	}
	room := h.rooms[m.channel]
	delete(room, m.id)

	if m.presence != nil {
		leave := protocol.PresenceLeave(m.presence.ParticipantID)
		for _, other := range room {
			h.deliver(other, leave)
		}
	}
	if len(room) == 0 {
		delete(h.rooms, m.channel)
		h.log.Debug().Str("channel", m.channel).Msg("channel_destroyed")
	}

	m.left = true
	close(m.out)
}

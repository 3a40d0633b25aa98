// Package presence tracks whether the reading partner is connected.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/models"
	"readalong/internal/protocol"
	"readalong/internal/realtime"
)

// DefaultLeaveDebounce is how long a transport-level leave must stand
// before the partner is considered gone.
const DefaultLeaveDebounce = 3 * time.Second

// EndReason says how the partner's departure was detected.
type EndReason int

const (
	// EndExplicit means the partner broadcast peer_disconnect or session_ended.
	EndExplicit EndReason = iota
	// EndPresenceTimeout means the partner's presence left and did not return.
	EndPresenceTimeout
)

func (r EndReason) String() string {
	switch r {
	case EndExplicit:
		return "explicit"
	case EndPresenceTimeout:
		return "presence_timeout"
	}
	return "unknown"
}

// Options configures a Tracker.
type Options struct {
	LeaveDebounce time.Duration
	// OnPeerJoined fires once, on the first observation of the partner.
	OnPeerJoined func(models.Participant)
	// OnPeerEnded fires at most once per session.
	OnPeerEnded func(models.Participant, EndReason)
	Logger      zerolog.Logger
}

// Tracker follows the partner's presence on one session channel.
type Tracker struct {
	ch       realtime.Channel
	self     models.Participant
	debounce time.Duration
	onJoined func(models.Participant)
	onEnded  func(models.Participant, EndReason)
	log      zerolog.Logger

	mu         sync.Mutex
	joined     bool
	left       bool
	peer       models.Participant
	seenPeer   bool
	connected  bool
	peerEnded  bool
	completed  bool
	leaveTimer *time.Timer
}

// New creates a tracker for self on ch.
func New(ch realtime.Channel, self models.Participant, opts Options) *Tracker {
	if opts.LeaveDebounce <= 0 {
		opts.LeaveDebounce = DefaultLeaveDebounce
	}
	return &Tracker{
		ch:       ch,
		self:     self,
		debounce: opts.LeaveDebounce,
		onJoined: opts.OnPeerJoined,
		onEnded:  opts.OnPeerEnded,
		log: opts.Logger.With().
			Str("component", "presence").
			Str("channel", ch.Name()).
			Str("self", self.ID).
			Logger(),
	}
}

// Join subscribes to the channel and tracks self. A peer additionally
// announces itself with peer-joined. Calling Join again is a no-op.
func (t *Tracker) Join(ctx context.Context) error {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return nil
	}
	t.joined = true
	t.mu.Unlock()

	if err := t.ch.Subscribe(ctx); err != nil {
		t.resetJoin()
		return err
	}
	if err := t.ch.Track(ctx, protocol.Presence{ParticipantID: t.self.ID, DisplayName: t.self.Name()}); err != nil {
		t.resetJoin()
		return err
	}
	if !t.self.IsHost() {
		if err := t.ch.Send(ctx, protocol.NewPeerJoined(t.self.ID, t.self.Name())); err != nil {
			t.log.Warn().Err(err).Msg("peer_joined_broadcast_failed")
		}
	}

	t.log.Info().Str("role", string(t.self.Role)).Msg("channel_joined")
	return nil
}

func (t *Tracker) resetJoin() {
	t.mu.Lock()
	t.joined = false
	t.mu.Unlock()
}

// Handle updates presence state from an inbound channel event.
func (t *Tracker) Handle(ev protocol.Event) {
	if ev.From == "" || ev.From == t.self.ID {
		return
	}
	if t.stranger(ev.From) {
		t.log.Warn().Str("from", ev.From).Str("kind", string(ev.Kind)).Msg("stranger_event_ignored")
		return
	}

	switch ev.Kind {
	case protocol.KindPresenceLeave:
		t.presenceLeft(ev.From)
	case protocol.KindPeerDisconnect, protocol.KindSessionEnded:
		t.remember(ev)
		t.end(EndExplicit)
	default:
		t.observe(ev)
	}
}

func (t *Tracker) observe(ev protocol.Event) {
	t.mu.Lock()
	if t.left || t.peerEnded {
		t.mu.Unlock()
		return
	}
	if t.leaveTimer != nil {
		t.leaveTimer.Stop()
		t.leaveTimer = nil
		t.log.Debug().Msg("peer_leave_cancelled")
	}

	first := !t.seenPeer
	t.connected = true
	t.setPeer(ev)
	peer := t.peer
	t.mu.Unlock()

	if first {
		t.log.Info().Str("peer", peer.ID).Str("peer_name", peer.Name()).Msg("peer_joined")
		if t.onJoined != nil {
			t.onJoined(peer)
		}
	}
}

// stranger reports whether id differs from the partner already observed.
// The first participant seen stays the partner for the whole session.
func (t *Tracker) stranger(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seenPeer && t.peer.ID != id
}

// remember records the sender as the partner without treating the event
// as a sign of life.
func (t *Tracker) remember(ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seenPeer {
		t.setPeer(ev)
	}
}

// setPeer requires t.mu.
func (t *Tracker) setPeer(ev protocol.Event) {
	t.seenPeer = true
	t.peer.ID = ev.From
	if name := ev.SenderName(); name != "" {
		t.peer.DisplayName = name
	}
	if t.self.IsHost() {
		t.peer.Role = models.RolePeer
	} else {
		t.peer.Role = models.RoleHost
	}
}

func (t *Tracker) presenceLeft(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.left || !t.connected || t.peer.ID != id || t.completed || t.peerEnded {
		return
	}
	if t.leaveTimer != nil {
		return
	}

	t.log.Debug().Dur("debounce", t.debounce).Msg("peer_presence_left")
	var timer *time.Timer
	timer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		stale := t.leaveTimer != timer
		if !stale {
			t.leaveTimer = nil
		}
		t.mu.Unlock()
		if !stale {
			t.end(EndPresenceTimeout)
		}
	})
	t.leaveTimer = timer
}

func (t *Tracker) end(reason EndReason) {
	t.mu.Lock()
	if t.left || t.completed || t.peerEnded {
		t.mu.Unlock()
		return
	}
	t.peerEnded = true
	t.connected = false
	if t.leaveTimer != nil {
		t.leaveTimer.Stop()
		t.leaveTimer = nil
	}
	peer := t.peer
	t.mu.Unlock()

	t.log.Info().Str("peer", peer.ID).Stringer("reason", reason).Msg("peer_ended")
	if t.onEnded != nil {
		t.onEnded(peer, reason)
	}
}

// MarkCompleted records that the session finished; later departures of the
// partner are no longer reported.
func (t *Tracker) MarkCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
	if t.leaveTimer != nil {
		t.leaveTimer.Stop()
		t.leaveTimer = nil
	}
}

// Peer returns the partner, if one has been observed.
func (t *Tracker) Peer() (models.Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer, t.seenPeer
}

// PeerConnected reports whether the partner is currently considered present.
func (t *Tracker) PeerConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// PeerEnded reports whether the partner has left the session.
func (t *Tracker) PeerEnded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerEnded
}

// Leave unsubscribes from the channel. When the partner is still connected
// and the session is unfinished, a peer_disconnect notice goes out first.
func (t *Tracker) Leave(ctx context.Context) error {
	t.mu.Lock()
	if !t.joined || t.left {
		t.mu.Unlock()
		return nil
	}
	t.left = true
	if t.leaveTimer != nil {
		t.leaveTimer.Stop()
		t.leaveTimer = nil
	}
	notify := t.connected && !t.completed && !t.peerEnded
	t.mu.Unlock()

	var errs []error
	if notify {
		if err := t.ch.Send(ctx, protocol.NewPeerDisconnect(t.self.ID, t.self.Name())); err != nil {
			t.log.Warn().Err(err).Msg("disconnect_notice_failed")
			errs = append(errs, err)
		}
	}
	if err := t.ch.Unsubscribe(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to unsubscribe: %w", err))
	}

	t.log.Info().Bool("notified", notify).Msg("channel_left")
	return errors.Join(errs...)
}

// Package turn implements the shared turn state machine of a reading session.
package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/models"
	"readalong/internal/protocol"
)

// DefaultSettleDelay is how long the host waits after seeing its partner
// before seeding the first turn, so the partner's subscription is ready.
const DefaultSettleDelay = time.Second

var (
	// ErrNotYourTurn is returned when a participant that does not hold the
	// turn tries to advance or skip.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNotActive is returned for local moves outside the Active phase.
	ErrNotActive = errors.New("session is not active")
	// ErrNoCounterpart is returned when handing over the turn before the
	// partner is known.
	ErrNoCounterpart = errors.New("reading partner not known yet")
	// ErrAlreadySeeded is returned by a second Seed.
	ErrAlreadySeeded = errors.New("turn already seeded")
	// ErrNotHost is returned when a peer tries to seed.
	ErrNotHost = errors.New("only the host seeds the first turn")
	// ErrBroadcastFailed wraps a send failure after a local move was
	// applied. The local state stays advanced; call Resync to retry.
	ErrBroadcastFailed = errors.New("turn broadcast failed")
)

// Phase is the coarse state of the machine.
type Phase int

const (
	WaitingForPeer Phase = iota
	Active
	Completed
)

func (p Phase) String() string {
	switch p {
	case WaitingForPeer:
		return "waiting_for_peer"
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Sender broadcasts an event on the session channel.
type Sender interface {
	Send(ctx context.Context, ev protocol.Event) error
}

// Outcome describes what a move did.
type Outcome int

const (
	// Ignored means the move left the state unchanged.
	Ignored Outcome = iota
	// Advanced means the cursor moved to a new owner or sentence.
	Advanced
	// Finished means the session reached Completed.
	Finished
)

// Transition is the result of applying a move.
type Transition struct {
	Outcome Outcome
	Phase   Phase
	State   models.TurnState
}

// Options configures a Machine.
type Options struct {
	SettleDelay time.Duration
	Logger      zerolog.Logger
}

// Machine holds one device's view of the shared turn.
type Machine struct {
	sender Sender
	self   models.Participant
	length int
	settle time.Duration
	log    zerolog.Logger

	mu          sync.Mutex
	phase       Phase
	state       models.TurnState
	counterpart string
	seeded      bool
}

// New creates a machine for a passage of length sentences.
func New(sender Sender, self models.Participant, length int, opts Options) *Machine {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Machine{
		sender: sender,
		self:   self,
		length: length,
		settle: opts.SettleDelay,
		log: opts.Logger.With().
			Str("component", "turn").
			Str("self", self.ID).
			Logger(),
	}
}

// SetCounterpart records the partner's participant id.
func (m *Machine) SetCounterpart(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" && id != m.self.ID {
		m.counterpart = id
	}
}

// State returns the current turn cursor.
func (m *Machine) State() models.TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// IsMyTurn reports whether this device holds an active turn.
func (m *Machine) IsMyTurn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == Active && m.state.IsOwnedBy(m.self.ID)
}

// Seed hands the first sentence to the host once the settle delay has
// passed. Only the host seeds, and only once.
func (m *Machine) Seed(ctx context.Context) (Transition, error) {
	if !m.self.IsHost() {
		return Transition{}, ErrNotHost
	}

	m.mu.Lock()
	if m.seeded {
		m.mu.Unlock()
		return Transition{}, ErrAlreadySeeded
	}
	m.seeded = true
	m.mu.Unlock()

	if m.settle > 0 {
		timer := time.NewTimer(m.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.mu.Lock()
			m.seeded = false
			m.mu.Unlock()
			return Transition{}, ctx.Err()
		}
	}

	m.mu.Lock()
	if m.phase != WaitingForPeer {
		tr := m.transition(Ignored)
		m.mu.Unlock()
		return tr, nil
	}
	m.phase = Active
	m.state = models.TurnState{ActiveParticipantID: m.self.ID, SentenceIndex: 0}
	tr := m.transition(Advanced)
	m.mu.Unlock()

	m.log.Info().Msg("turn_seeded")
	return tr, m.broadcast(ctx, protocol.NewTurnChange(m.self.ID, m.self.ID, 0))
}

// Advance moves past the current sentence after a passing grade.
func (m *Machine) Advance(ctx context.Context) (Transition, error) {
	return m.move(ctx, "advance")
}

// Skip moves past the current sentence without a grade.
func (m *Machine) Skip(ctx context.Context) (Transition, error) {
	return m.move(ctx, "skip")
}

func (m *Machine) move(ctx context.Context, reason string) (Transition, error) {
	m.mu.Lock()
	if m.phase != Active {
		m.mu.Unlock()
		return Transition{}, ErrNotActive
	}
	if !m.state.IsOwnedBy(m.self.ID) {
		m.mu.Unlock()
		return Transition{}, ErrNotYourTurn
	}

	next := m.state.SentenceIndex + 1
	var ev protocol.Event
	var tr Transition
	if next >= m.length {
		m.phase = Completed
		ev = protocol.NewSessionComplete(m.self.ID)
		tr = m.transition(Finished)
	} else {
		if m.counterpart == "" {
			m.mu.Unlock()
			return Transition{}, ErrNoCounterpart
		}
		m.state = models.TurnState{ActiveParticipantID: m.counterpart, SentenceIndex: next}
		ev = protocol.NewTurnChange(m.self.ID, m.counterpart, next)
		tr = m.transition(Advanced)
	}
	m.mu.Unlock()

	m.log.Info().
		Str("reason", reason).
		Str("next_turn", tr.State.ActiveParticipantID).
		Int("sentence", tr.State.SentenceIndex).
		Stringer("phase", tr.Phase).
		Msg("turn_moved")
	return tr, m.broadcast(ctx, ev)
}

// Apply folds a remote event into the local state.
func (m *Machine) Apply(ev protocol.Event) Transition {
	if ev.From == m.self.ID {
		return m.snapshot(Ignored)
	}
	if !m.fromCounterpart(ev.From) {
		m.log.Warn().Str("from", ev.From).Str("kind", string(ev.Kind)).Msg("event_from_stranger")
		return m.snapshot(Ignored)
	}

	switch ev.Kind {
	case protocol.KindTurnChange:
		return m.applyTurnChange(ev)
	case protocol.KindSessionComplete:
		m.mu.Lock()
		if m.phase == Completed {
			tr := m.transition(Ignored)
			m.mu.Unlock()
			return tr
		}
		m.phase = Completed
		tr := m.transition(Finished)
		m.mu.Unlock()
		m.log.Info().Str("from", ev.From).Msg("session_completed_remotely")
		return tr
	}
	return m.snapshot(Ignored)
}

// fromCounterpart reports whether id is the partner, or could become it
// because no partner is known yet.
func (m *Machine) fromCounterpart(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counterpart == "" || m.counterpart == id
}

func (m *Machine) applyTurnChange(ev protocol.Event) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == Completed || ev.Turn == nil {
		return m.transition(Ignored)
	}
	if m.counterpart == "" {
		m.counterpart = ev.From
	}

	next := ev.Turn
	if next.NextTurn != m.self.ID && next.NextTurn != m.counterpart {
		m.log.Warn().Str("next_turn", next.NextTurn).Msg("turn_change_unknown_participant")
		return m.transition(Ignored)
	}
	if next.SentenceIndex < 0 || next.SentenceIndex >= m.length {
		m.log.Warn().
			Int("remote", next.SentenceIndex).
			Int("length", m.length).
			Msg("turn_change_out_of_range")
		return m.transition(Ignored)
	}
	if m.phase == Active && next.SentenceIndex < m.state.SentenceIndex {
		m.log.Warn().
			Int("local", m.state.SentenceIndex).
			Int("remote", next.SentenceIndex).
			Msg("turn_change_stale")
		return m.transition(Ignored)
	}

	m.phase = Active
	m.seeded = true
	m.state = models.TurnState{ActiveParticipantID: next.NextTurn, SentenceIndex: next.SentenceIndex}
	m.log.Debug().
		Str("next_turn", next.NextTurn).
		Int("sentence", next.SentenceIndex).
		Msg("turn_applied")
	return m.transition(Advanced)
}

// Resync re-broadcasts the current state, for use after ErrBroadcastFailed.
func (m *Machine) Resync(ctx context.Context) error {
	m.mu.Lock()
	phase, state := m.phase, m.state
	m.mu.Unlock()

	switch phase {
	case Active:
		return m.broadcast(ctx, protocol.NewTurnChange(m.self.ID, state.ActiveParticipantID, state.SentenceIndex))
	case Completed:
		return m.broadcast(ctx, protocol.NewSessionComplete(m.self.ID))
	}
	return nil
}

func (m *Machine) broadcast(ctx context.Context, ev protocol.Event) error {
	if err := m.sender.Send(ctx, ev); err != nil {
		m.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("turn_broadcast_failed")
		return fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	return nil
}

func (m *Machine) snapshot(outcome Outcome) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(outcome)
}

// transition requires m.mu.
func (m *Machine) transition(outcome Outcome) Transition {
	return Transition{Outcome: outcome, Phase: m.phase, State: m.state}
}

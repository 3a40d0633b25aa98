package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readalong/internal/models"
	"readalong/internal/protocol"
)

var (
	host = models.Participant{ID: "host-1", Role: models.RoleHost}
	peer = models.Participant{ID: "peer-1", Role: models.RolePeer}
)

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Event
	err  error
}

func (f *fakeSender) Send(_ context.Context, ev protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeSender) last() protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func newMachine(self models.Participant, length int) (*Machine, *fakeSender) {
	sender := &fakeSender{}
	m := New(sender, self, length, Options{Logger: zerolog.Nop()})
	return m, sender
}

// relay delivers the last event sent by one machine to another.
func relay(t *testing.T, from *fakeSender, to *Machine) Transition {
	t.Helper()
	return to.Apply(from.last())
}

func TestSeedAndAdvanceConverge(t *testing.T) {
	ctx := context.Background()
	h, hostOut := newMachine(host, 4)
	p, peerOut := newMachine(peer, 4)
	h.SetCounterpart(peer.ID)

	assert.Equal(t, WaitingForPeer, h.Phase())
	assert.Equal(t, WaitingForPeer, p.Phase())

	tr, err := h.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, Advanced, tr.Outcome)
	assert.True(t, h.IsMyTurn())

	relay(t, hostOut, p)
	assert.Equal(t, Active, p.Phase())
	assert.Equal(t, models.TurnState{ActiveParticipantID: host.ID, SentenceIndex: 0}, p.State())
	assert.False(t, p.IsMyTurn())

	tr, err = h.Advance(ctx)
	require.NoError(t, err)
	want := models.TurnState{ActiveParticipantID: peer.ID, SentenceIndex: 1}
	assert.Equal(t, want, tr.State)
	assert.Equal(t, want, h.State(), "local state is applied before the broadcast lands")

	relay(t, hostOut, p)
	assert.Equal(t, want, p.State())
	assert.True(t, p.IsMyTurn())
	assert.False(t, h.IsMyTurn())

	_, err = p.Advance(ctx)
	require.NoError(t, err)
	relay(t, peerOut, h)
	assert.Equal(t, h.State(), p.State())
	assert.Equal(t, models.TurnState{ActiveParticipantID: host.ID, SentenceIndex: 2}, h.State())
}

func TestOnlyOwnerMoves(t *testing.T) {
	ctx := context.Background()
	h, hostOut := newMachine(host, 3)
	p, _ := newMachine(peer, 3)
	h.SetCounterpart(peer.ID)

	_, err := p.Advance(ctx)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = h.Seed(ctx)
	require.NoError(t, err)
	relay(t, hostOut, p)

	_, err = p.Advance(ctx)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = p.Skip(ctx)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// Exactly one side holds the turn.
	assert.NotEqual(t, h.IsMyTurn(), p.IsMyTurn())
}

func TestFinalSentenceCompletesBothSides(t *testing.T) {
	ctx := context.Background()
	h, hostOut := newMachine(host, 2)
	p, peerOut := newMachine(peer, 2)
	h.SetCounterpart(peer.ID)

	_, err := h.Seed(ctx)
	require.NoError(t, err)
	relay(t, hostOut, p)
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	relay(t, hostOut, p)

	tr, err := p.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, Finished, tr.Outcome)
	assert.Equal(t, Completed, p.Phase())
	assert.Equal(t, protocol.KindSessionComplete, peerOut.last().Kind)

	tr = relay(t, peerOut, h)
	assert.Equal(t, Finished, tr.Outcome)
	assert.Equal(t, Completed, h.Phase())
	assert.False(t, h.IsMyTurn())

	// Completed absorbs everything.
	tr = h.Apply(protocol.NewTurnChange(peer.ID, host.ID, 5))
	assert.Equal(t, Ignored, tr.Outcome)
	tr = h.Apply(protocol.NewSessionComplete(peer.ID))
	assert.Equal(t, Ignored, tr.Outcome)
}

func TestSkipOnLastSentenceCompletes(t *testing.T) {
	ctx := context.Background()
	h, hostOut := newMachine(host, 1)
	_, err := h.Seed(ctx)
	require.NoError(t, err)

	tr, err := h.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, Finished, tr.Outcome)
	assert.Equal(t, protocol.KindSessionComplete, hostOut.last().Kind)
}

func TestRemoteLowerIndexDropped(t *testing.T) {
	p, _ := newMachine(peer, 10)

	p.Apply(protocol.NewTurnChange(host.ID, peer.ID, 3))
	require.Equal(t, 3, p.State().SentenceIndex)

	tr := p.Apply(protocol.NewTurnChange(host.ID, host.ID, 2))
	assert.Equal(t, Ignored, tr.Outcome)
	assert.Equal(t, models.TurnState{ActiveParticipantID: peer.ID, SentenceIndex: 3}, p.State())

	// Equal index is adopted unconditionally.
	tr = p.Apply(protocol.NewTurnChange(host.ID, host.ID, 3))
	assert.Equal(t, Advanced, tr.Outcome)
	assert.Equal(t, host.ID, p.State().ActiveParticipantID)
}

func TestRemoteUnknownParticipantDropped(t *testing.T) {
	p, _ := newMachine(peer, 10)
	p.Apply(protocol.NewTurnChange(host.ID, host.ID, 0))

	tr := p.Apply(protocol.NewTurnChange(host.ID, "stranger", 1))
	assert.Equal(t, Ignored, tr.Outcome)
	assert.Equal(t, host.ID, p.State().ActiveParticipantID)
}

func TestRemoteIndexPastEndDropped(t *testing.T) {
	p, _ := newMachine(peer, 2)

	for _, index := range []int{2, 4, -1} {
		tr := p.Apply(protocol.NewTurnChange(host.ID, peer.ID, index))
		assert.Equal(t, Ignored, tr.Outcome, "index %d", index)
		assert.Equal(t, WaitingForPeer, p.Phase())
		assert.False(t, p.IsMyTurn())
	}

	tr := p.Apply(protocol.NewTurnChange(host.ID, peer.ID, 1))
	assert.Equal(t, Advanced, tr.Outcome)
	assert.Equal(t, models.TurnState{ActiveParticipantID: peer.ID, SentenceIndex: 1}, p.State())
}

func TestEventsFromThirdParticipantIgnored(t *testing.T) {
	h, _ := newMachine(host, 5)
	h.SetCounterpart(peer.ID)
	_, err := h.Seed(context.Background())
	require.NoError(t, err)

	tr := h.Apply(protocol.NewTurnChange("intruder-9", host.ID, 3))
	assert.Equal(t, Ignored, tr.Outcome)
	assert.Equal(t, models.TurnState{ActiveParticipantID: host.ID, SentenceIndex: 0}, h.State())

	tr = h.Apply(protocol.NewSessionComplete("intruder-9"))
	assert.Equal(t, Ignored, tr.Outcome)
	assert.Equal(t, Active, h.Phase())

	tr = h.Apply(protocol.NewSessionComplete(peer.ID))
	assert.Equal(t, Finished, tr.Outcome)
}

func TestOwnEchoIgnored(t *testing.T) {
	h, _ := newMachine(host, 3)
	tr := h.Apply(protocol.NewSessionComplete(host.ID))
	assert.Equal(t, Ignored, tr.Outcome)
	assert.Equal(t, WaitingForPeer, h.Phase())
}

func TestSeedRules(t *testing.T) {
	ctx := context.Background()

	p, _ := newMachine(peer, 3)
	_, err := p.Seed(ctx)
	assert.ErrorIs(t, err, ErrNotHost)

	h, hostOut := newMachine(host, 3)
	_, err = h.Seed(ctx)
	require.NoError(t, err)
	_, err = h.Seed(ctx)
	assert.ErrorIs(t, err, ErrAlreadySeeded)
	assert.Len(t, hostOut.sent, 1)

	ev := hostOut.last()
	assert.Equal(t, protocol.KindTurnChange, ev.Kind)
	assert.Equal(t, protocol.TurnChange{NextTurn: host.ID, SentenceIndex: 0}, *ev.Turn)
}

func TestSeedWaitsForSettleDelay(t *testing.T) {
	sender := &fakeSender{}
	h := New(sender, host, 3, Options{SettleDelay: 40 * time.Millisecond, Logger: zerolog.Nop()})

	start := time.Now()
	_, err := h.Seed(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSeedCancelled(t *testing.T) {
	sender := &fakeSender{}
	h := New(sender, host, 3, Options{SettleDelay: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Seed(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, WaitingForPeer, h.Phase())
	assert.Empty(t, sender.sent)
}

func TestAdvanceWithoutCounterpart(t *testing.T) {
	h, _ := newMachine(host, 3)
	_, err := h.Seed(context.Background())
	require.NoError(t, err)

	_, err = h.Advance(context.Background())
	assert.ErrorIs(t, err, ErrNoCounterpart)
	assert.Equal(t, 0, h.State().SentenceIndex)
}

func TestBroadcastFailureKeepsLocalStateAndResyncs(t *testing.T) {
	ctx := context.Background()
	h, hostOut := newMachine(host, 5)
	h.SetCounterpart(peer.ID)
	_, err := h.Seed(ctx)
	require.NoError(t, err)

	boom := errors.New("socket closed")
	hostOut.err = boom
	tr, err := h.Advance(ctx)
	assert.ErrorIs(t, err, ErrBroadcastFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.TurnState{ActiveParticipantID: peer.ID, SentenceIndex: 1}, tr.State)
	assert.Equal(t, tr.State, h.State())

	hostOut.err = nil
	require.NoError(t, h.Resync(ctx))
	ev := hostOut.last()
	assert.Equal(t, protocol.TurnChange{NextTurn: peer.ID, SentenceIndex: 1}, *ev.Turn)
}

func TestIndexNeverDecreases(t *testing.T) {
	p, _ := newMachine(peer, 100)
	indexes := []int{0, 2, 1, 5, 4, 5, 9, 3}

	prev := -1
	for _, idx := range indexes {
		p.Apply(protocol.NewTurnChange(host.ID, host.ID, idx))
		cur := p.State().SentenceIndex
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 9, prev)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "waiting_for_peer", WaitingForPeer.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "completed", Completed.String())
}

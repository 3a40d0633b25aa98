package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readalong/internal/models"
	"readalong/internal/protocol"
	"readalong/internal/realtime"
)

var (
	host = models.Participant{ID: "host-1", DisplayName: "Maya", Role: models.RoleHost}
	peer = models.Participant{ID: "peer-1", DisplayName: "Sam", Role: models.RolePeer}
)

type recorder struct {
	mu      sync.Mutex
	joined  []models.Participant
	ended   []EndReason
	endedBy []models.Participant
}

func (r *recorder) options(debounce time.Duration) Options {
	return Options{
		LeaveDebounce: debounce,
		Logger:        zerolog.Nop(),
		OnPeerJoined: func(p models.Participant) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.joined = append(r.joined, p)
		},
		OnPeerEnded: func(p models.Participant, reason EndReason) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ended = append(r.ended, reason)
			r.endedBy = append(r.endedBy, p)
		},
	}
}

func (r *recorder) joinedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joined)
}

func (r *recorder) endedReasons() []EndReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EndReason(nil), r.ended...)
}

// pump feeds channel events into the tracker until the channel closes.
func pump(ch realtime.Channel, tr *Tracker) {
	go func() {
		for ev := range ch.Events() {
			tr.Handle(ev)
		}
	}()
}

func newPair(t *testing.T, debounce time.Duration) (hostCh, peerCh realtime.Channel, hostTr, peerTr *Tracker, hostRec, peerRec *recorder) {
	t.Helper()
	transport := realtime.NewLocal(realtime.NewHub(zerolog.Nop()))
	name := models.ChannelName("123456")

	hostCh = transport.Channel(name)
	peerCh = transport.Channel(name)
	hostRec, peerRec = &recorder{}, &recorder{}
	hostTr = New(hostCh, host, hostRec.options(debounce))
	peerTr = New(peerCh, peer, peerRec.options(debounce))
	pump(hostCh, hostTr)
	pump(peerCh, peerTr)
	return
}

func TestFirstObservationFiresJoinedOnce(t *testing.T) {
	ctx := context.Background()
	_, _, hostTr, peerTr, hostRec, peerRec := newPair(t, time.Second)

	require.NoError(t, hostTr.Join(ctx))
	require.NoError(t, hostTr.Join(ctx))
	require.NoError(t, peerTr.Join(ctx))

	require.Eventually(t, func() bool {
		return hostRec.joinedCount() == 1 && peerRec.joinedCount() == 1
	}, time.Second, 5*time.Millisecond)

	// presence-join and peer-joined both arrive at the host; only one hook call.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, hostRec.joinedCount())

	p, ok := hostTr.Peer()
	require.True(t, ok)
	assert.Equal(t, "peer-1", p.ID)
	assert.Equal(t, "Sam", p.DisplayName)
	assert.Equal(t, models.RolePeer, p.Role)
	assert.True(t, hostTr.PeerConnected())

	p, _ = peerTr.Peer()
	assert.Equal(t, models.RoleHost, p.Role)
}

func TestExplicitDisconnectEndsOnce(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(time.Second))

	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))
	tr.Handle(protocol.NewPeerDisconnect("peer-1", "Sam"))
	tr.Handle(protocol.NewSessionEnded("peer-1", "Sam"))

	assert.Equal(t, []EndReason{EndExplicit}, rec.endedReasons())
	assert.True(t, tr.PeerEnded())
	assert.False(t, tr.PeerConnected())

	// A late sign of life does not revive the partner.
	tr.Handle(protocol.NewTurnChange("peer-1", "host-1", 2))
	assert.False(t, tr.PeerConnected())
}

func TestOwnEventsIgnored(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(time.Second))

	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "host-1"}))
	tr.Handle(protocol.NewPeerDisconnect("host-1", "Maya"))

	assert.Equal(t, 0, rec.joinedCount())
	assert.Empty(t, rec.endedReasons())
}

func TestPresenceLeaveIsDebounced(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(60*time.Millisecond))

	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))
	tr.Handle(protocol.PresenceLeave("peer-1"))
	time.Sleep(20 * time.Millisecond)
	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.endedReasons(), "rejoin inside the window cancels the leave")
	assert.True(t, tr.PeerConnected())

	tr.Handle(protocol.PresenceLeave("peer-1"))
	require.Eventually(t, func() bool {
		return len(rec.endedReasons()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, EndPresenceTimeout, rec.endedReasons()[0])
}

func TestPresenceLeaveOfUnknownMemberIgnored(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(10*time.Millisecond))

	tr.Handle(protocol.PresenceLeave("peer-1"))
	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))
	tr.Handle(protocol.PresenceLeave("stranger"))

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.endedReasons())
}

func TestCompletedSuppressesPeerEnded(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(20*time.Millisecond))

	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))
	tr.Handle(protocol.PresenceLeave("peer-1"))
	tr.MarkCompleted()
	tr.Handle(protocol.NewPeerDisconnect("peer-1", ""))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.endedReasons())
}

func TestHostVanishesPeerEndsAfterDebounce(t *testing.T) {
	ctx := context.Background()
	hostCh, _, hostTr, peerTr, _, peerRec := newPair(t, 80*time.Millisecond)

	require.NoError(t, hostTr.Join(ctx))
	require.NoError(t, peerTr.Join(ctx))
	require.Eventually(t, peerTr.PeerConnected, time.Second, 5*time.Millisecond)

	// The host's connection drops without a disconnect notice.
	require.NoError(t, hostCh.Unsubscribe(ctx))

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, peerRec.endedReasons())

	require.Eventually(t, func() bool {
		return len(peerRec.endedReasons()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, EndPresenceTimeout, peerRec.endedReasons()[0])
}

func TestStrangerCannotReplacePartner(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	rec := &recorder{}
	tr := New(ch, host, rec.options(30*time.Millisecond))

	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1", DisplayName: "Sam"}))
	tr.Handle(protocol.NewPeerJoined("intruder-9", "Zed"))
	tr.Handle(protocol.NewPeerDisconnect("intruder-9", "Zed"))

	p, _ := tr.Peer()
	assert.Equal(t, "peer-1", p.ID)
	assert.Equal(t, "Sam", p.DisplayName)
	assert.Empty(t, rec.endedReasons())
	assert.True(t, tr.PeerConnected())

	tr.Handle(protocol.PresenceLeave("peer-1"))
	require.Eventually(t, func() bool {
		return len(rec.endedReasons()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, EndPresenceTimeout, rec.endedReasons()[0])
}

func TestForgedSenderStillEndsOnPartnerVanish(t *testing.T) {
	ctx := context.Background()
	_, peerCh, hostTr, peerTr, hostRec, _ := newPair(t, 50*time.Millisecond)

	require.NoError(t, hostTr.Join(ctx))
	require.NoError(t, peerTr.Join(ctx))
	require.Eventually(t, hostTr.PeerConnected, time.Second, 5*time.Millisecond)

	require.NoError(t, peerCh.Send(ctx, protocol.NewPeerJoined("intruder-9", "Zed")))
	time.Sleep(20 * time.Millisecond)
	p, _ := hostTr.Peer()
	assert.Equal(t, "peer-1", p.ID)

	// The partner drops without a disconnect notice.
	require.NoError(t, peerCh.Unsubscribe(ctx))
	require.Eventually(t, func() bool {
		return len(hostRec.endedReasons()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, EndPresenceTimeout, hostRec.endedReasons()[0])
	assert.False(t, hostTr.PeerConnected())
}

func TestLeaveSendsDisconnectBeforeUnsubscribing(t *testing.T) {
	ctx := context.Background()
	_, _, hostTr, peerTr, hostRec, _ := newPair(t, time.Second)

	require.NoError(t, hostTr.Join(ctx))
	require.NoError(t, peerTr.Join(ctx))
	require.Eventually(t, peerTr.PeerConnected, time.Second, 5*time.Millisecond)

	require.NoError(t, peerTr.Leave(ctx))
	require.NoError(t, peerTr.Leave(ctx))

	require.Eventually(t, func() bool {
		return len(hostRec.endedReasons()) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, EndExplicit, hostRec.endedReasons()[0])
}

type countingChannel struct {
	realtime.Channel
	sends atomic.Int32
}

func (c *countingChannel) Send(ctx context.Context, ev protocol.Event) error {
	c.sends.Add(1)
	return c.Channel.Send(ctx, ev)
}

func TestLeaveAfterCompletionIsSilent(t *testing.T) {
	ctx := context.Background()
	ch := &countingChannel{Channel: realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")}
	tr := New(ch, host, Options{Logger: zerolog.Nop()})

	require.NoError(t, tr.Join(ctx))
	tr.Handle(protocol.PresenceJoin(protocol.Presence{ParticipantID: "peer-1"}))
	tr.MarkCompleted()

	require.NoError(t, tr.Leave(ctx))
	assert.Equal(t, int32(0), ch.sends.Load())
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	ch := realtime.NewLocal(realtime.NewHub(zerolog.Nop())).Channel("c")
	tr := New(ch, peer, Options{Logger: zerolog.Nop()})
	assert.NoError(t, tr.Leave(context.Background()))
}

func TestEndReasonString(t *testing.T) {
	assert.Equal(t, "explicit", EndExplicit.String())
	assert.Equal(t, "presence_timeout", EndPresenceTimeout.String())
}

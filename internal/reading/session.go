// Package reading runs a two-device reading session: presence, the shared
// turn, graded attempts and scoring, all driven from one event loop.
package reading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/apperr"
	"readalong/internal/credentials"
	"readalong/internal/grading"
	"readalong/internal/models"
	"readalong/internal/presence"
	"readalong/internal/realtime"
	"readalong/internal/scoring"
	"readalong/internal/turn"
)

const (
	updateBuffer = 64
	leaveTimeout = 2 * time.Second
)

var (
	// ErrClosed is returned for commands sent after Run has returned.
	ErrClosed = errors.New("reading session closed")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("reading session already running")
	// ErrNoContent is returned for a session without sentences.
	ErrNoContent = errors.New("reading session needs at least one sentence")
	// ErrNoSentence is returned when the shared cursor points past the passage.
	ErrNoSentence = errors.New("no sentence at the current turn")
)

// Ending says why Run returned.
type Ending int

const (
	// EndCompleted means every sentence was read.
	EndCompleted Ending = iota
	// EndPeerLeft means the partner disconnected or vanished.
	EndPeerLeft
	// EndLeft means the local reader left (the Run context was cancelled).
	EndLeft
	// EndDisconnected means the realtime connection dropped.
	EndDisconnected
)

func (e Ending) String() string {
	switch e {
	case EndCompleted:
		return "completed"
	case EndPeerLeft:
		return "peer_left"
	case EndLeft:
		return "left"
	case EndDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Config describes one device's side of a session.
type Config struct {
	SessionCode   string
	Self          models.Participant
	Sentences     []string
	SettleDelay   time.Duration
	LeaveDebounce time.Duration
	MaxRecording  time.Duration
}

// Deps are the session's collaborators.
type Deps struct {
	Transport realtime.Transport
	Recorder  grading.Recorder
	Grader    grading.Grader
	Profiles  scoring.ProfileStore
	Context   *SessionContext
	Logger    zerolog.Logger
}

// Session is one device's reading session.
type Session struct {
	cfg     Config
	ch      realtime.Channel
	tracker *presence.Tracker
	machine *turn.Machine
	cycle   *grading.Cycle
	ledger  *scoring.Ledger
	sctx    *SessionContext
	log     zerolog.Logger

	requests chan request
	internal chan any
	updates  chan Update
	done     chan struct{}

	runOnce sync.Once
}

// New validates cfg and wires the session components.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := credentials.ValidateSessionCode(cfg.SessionCode); err != nil {
		return nil, err
	}
	if len(cfg.Sentences) == 0 {
		return nil, ErrNoContent
	}
	if cfg.Self.ID == "" {
		return nil, fmt.Errorf("%w: participant id required", apperr.ErrUnauthorized)
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = turn.DefaultSettleDelay
	}
	sctx := deps.Context
	if sctx == nil {
		sctx = NewSessionContext()
	}

	log := deps.Logger.With().
		Str("session", cfg.SessionCode).
		Str("role", string(cfg.Self.Role)).
		Logger()

	s := &Session{
		cfg:      cfg,
		ch:       deps.Transport.Channel(models.ChannelName(cfg.SessionCode)),
		sctx:     sctx,
		log:      log,
		requests: make(chan request),
		internal: make(chan any, 16),
		updates:  make(chan Update, updateBuffer),
		done:     make(chan struct{}),
	}

	s.tracker = presence.New(s.ch, cfg.Self, presence.Options{
		LeaveDebounce: cfg.LeaveDebounce,
		OnPeerJoined:  func(p models.Participant) { s.post(peerJoined{peer: p}) },
		OnPeerEnded: func(p models.Participant, r presence.EndReason) {
			s.post(peerEnded{peer: p, reason: r})
		},
		Logger: log,
	})
	s.machine = turn.New(s.ch, cfg.Self, len(cfg.Sentences), turn.Options{
		SettleDelay: cfg.SettleDelay,
		Logger:      log,
	})
	s.cycle = grading.NewCycle(deps.Recorder, deps.Grader, grading.CycleOptions{
		MaxRecording: cfg.MaxRecording,
		IsOwner:      s.machine.IsMyTurn,
		Logger:       log,
	})
	s.ledger = scoring.NewLedger(deps.Profiles, cfg.Self.ID, log)
	return s, nil
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStop
	reqSkip
	reqResync
)

type request struct {
	kind  requestKind
	reply chan error
}

type peerJoined struct{ peer models.Participant }

type peerEnded struct {
	peer   models.Participant
	reason presence.EndReason
}

type seeded struct {
	tr  turn.Transition
	err error
}

type attemptDone struct {
	index   int
	outcome grading.Outcome
}

// post hands an internal message to the loop unless it has exited.
func (s *Session) post(msg any) {
	select {
	case s.internal <- msg:
	case <-s.done:
	}
}

// Updates streams what the UI should show. Slow consumers miss updates
// rather than stalling the session.
func (s *Session) Updates() <-chan Update { return s.updates }

// Context returns the session context object.
func (s *Session) Context() *SessionContext { return s.sctx }

// Sentences returns the passage being read.
func (s *Session) Sentences() []string { return s.cfg.Sentences }

// Turn returns the current phase and cursor.
func (s *Session) Turn() (turn.Phase, models.TurnState) {
	return s.machine.Phase(), s.machine.State()
}

// IsMyTurn reports whether the local reader holds the turn.
func (s *Session) IsMyTurn() bool { return s.machine.IsMyTurn() }

// Peer returns the partner once observed.
func (s *Session) Peer() (models.Participant, bool) { return s.tracker.Peer() }

// Run joins the session channel and processes events until the session
// completes, the partner leaves, the connection drops or ctx is cancelled.
func (s *Session) Run(ctx context.Context) (Ending, error) {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return EndLeft, ErrAlreadyRunning
	}
	defer close(s.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.tracker.Join(runCtx); err != nil {
		return EndDisconnected, err
	}
	defer func() {
		leaveCtx, cancelLeave := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
		defer cancelLeave()
		if err := s.tracker.Leave(leaveCtx); err != nil {
			s.log.Warn().Err(err).Msg("leave_failed")
		}
	}()

	events := s.ch.Events()
	for {
		select {
		case <-runCtx.Done():
			s.log.Info().Msg("session_left")
			return EndLeft, nil

		case ev, ok := <-events:
			if !ok {
				s.log.Warn().Msg("channel_closed")
				return EndDisconnected, fmt.Errorf("%w: session channel closed", apperr.ErrConnectivity)
			}
			s.tracker.Handle(ev)
			if s.applyTransition(s.machine.Apply(ev), nil) {
				return EndCompleted, nil
			}

		case req := <-s.requests:
			finished, err := s.handleRequest(runCtx, req.kind)
			req.reply <- err
			if finished {
				return EndCompleted, nil
			}

		case msg := <-s.internal:
			switch m := msg.(type) {
			case peerJoined:
				s.machine.SetCounterpart(m.peer.ID)
				s.emit(Update{Kind: UpdatePeerJoined, Peer: m.peer})
				if s.cfg.Self.IsHost() {
					go func() {
						tr, err := s.machine.Seed(runCtx)
						s.post(seeded{tr: tr, err: err})
					}()
				}
			case seeded:
				if m.err != nil && !errors.Is(m.err, context.Canceled) {
					s.log.Warn().Err(m.err).Msg("seed_failed")
				}
				if s.applyTransition(m.tr, m.err) {
					return EndCompleted, nil
				}
			case attemptDone:
				if s.handleAttempt(runCtx, m) {
					return EndCompleted, nil
				}
			case peerEnded:
				s.emit(Update{Kind: UpdatePeerEnded, Peer: m.peer, Reason: m.reason})
				return EndPeerLeft, nil
			}
		}
	}
}

func (s *Session) handleRequest(ctx context.Context, kind requestKind) (bool, error) {
	switch kind {
	case reqStart:
		_, state := s.Turn()
		if state.SentenceIndex < 0 || state.SentenceIndex >= len(s.cfg.Sentences) {
			return false, fmt.Errorf("%w: sentence %d of %d", ErrNoSentence, state.SentenceIndex, len(s.cfg.Sentences))
		}
		future, err := s.cycle.StartAttempt(ctx, s.cfg.Sentences[state.SentenceIndex])
		if err != nil || future == nil {
			return false, err
		}
		s.emit(Update{Kind: UpdateRecording, Turn: state, MyTurn: true})
		go func() {
			select {
			case out := <-future:
				s.post(attemptDone{index: state.SentenceIndex, outcome: out})
			case <-s.done:
			}
		}()
		return false, nil

	case reqStop:
		if !s.cycle.Recording() {
			return false, grading.ErrNoAttempt
		}
		// The future is already being watched; its outcome arrives as
		// attemptDone.
		s.cycle.FinishAttempt(ctx)
		s.emit(Update{Kind: UpdateUploading})
		return false, nil

	case reqSkip:
		if s.cycle.Recording() || s.cycle.Uploading() {
			return false, grading.ErrBusy
		}
		tr, err := s.machine.Skip(ctx)
		if err != nil && !errors.Is(err, turn.ErrBroadcastFailed) {
			return false, err
		}
		return s.applyTransition(tr, err), err

	case reqResync:
		return false, s.machine.Resync(ctx)
	}
	return false, nil
}

func (s *Session) handleAttempt(ctx context.Context, done attemptDone) bool {
	if done.outcome.Err != nil {
		s.emit(Update{Kind: UpdateSubmissionFailed, Err: done.outcome.Err})
		return false
	}

	result := done.outcome.Result
	s.sctx.SetFrustrated(result.Frustrated)
	fb := grading.Interpret(result.Grade)

	update := Update{Kind: UpdateGraded, Result: &result, Feedback: fb}
	if fb.Verdict != grading.Advance {
		s.emit(update)
		return false
	}

	_, state := s.Turn()
	if !s.machine.IsMyTurn() || state.SentenceIndex != done.index {
		// The turn moved on while the attempt was being graded.
		s.log.Warn().Int("attempt", done.index).Int("current", state.SentenceIndex).Msg("stale_attempt_ignored")
		s.emit(update)
		return false
	}

	tr, err := s.machine.Advance(ctx)
	if err != nil && !errors.Is(err, turn.ErrBroadcastFailed) {
		s.log.Warn().Err(err).Msg("advance_failed")
		s.emit(update)
		return false
	}
	update.Score = s.ledger.RecordScore(result.Grade)
	s.emit(update)
	return s.applyTransition(tr, err)
}

// applyTransition publishes a turn transition and reports whether the
// session is now complete.
func (s *Session) applyTransition(tr turn.Transition, err error) bool {
	if errors.Is(err, turn.ErrBroadcastFailed) {
		s.emit(Update{Kind: UpdateBroadcastFailed, Err: err})
	}
	switch tr.Outcome {
	case turn.Advanced:
		s.emit(Update{Kind: UpdateTurn, Turn: tr.State, MyTurn: tr.State.IsOwnedBy(s.cfg.Self.ID)})
	case turn.Finished:
		s.tracker.MarkCompleted()
		s.emit(Update{Kind: UpdateCompleted, Turn: tr.State, Total: s.ledger.Total()})
		return true
	}
	return false
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		s.log.Warn().Stringer("update", u.Kind).Msg("update_dropped")
	}
}

func (s *Session) do(ctx context.Context, kind requestKind) error {
	req := request{kind: kind, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartAttempt begins recording the current sentence. It does nothing when
// it is not the local reader's turn.
func (s *Session) StartAttempt(ctx context.Context) error { return s.do(ctx, reqStart) }

// StopAttempt stops recording and submits the attempt for grading.
func (s *Session) StopAttempt(ctx context.Context) error { return s.do(ctx, reqStop) }

// Skip hands the turn on without a grade.
func (s *Session) Skip(ctx context.Context) error { return s.do(ctx, reqSkip) }

// Resync re-broadcasts the local turn state after a failed broadcast.
func (s *Session) Resync(ctx context.Context) error { return s.do(ctx, reqResync) }

// Finish flushes the session total into the reader's profile. It may be
// retried after a failure and is a no-op once it has succeeded.
func (s *Session) Finish(ctx context.Context) error {
	return s.ledger.Finish(ctx)
}

// Summary is the end-of-session result.
type Summary struct {
	Scores []int
	Total  int
	Grade  float64
	Award  grading.Award
}

// Summary returns the local reader's scores and award.
func (s *Session) Summary() Summary {
	grade := s.ledger.Grade(len(s.cfg.Sentences))
	return Summary{
		Scores: s.ledger.Scores(),
		Total:  s.ledger.Total(),
		Grade:  grade,
		Award:  grading.AwardFor(grade),
	}
}

// Package grading runs the record, upload and interpret cycle for one
// reading attempt.
package grading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/apperr"
	"readalong/internal/models"
)

// DefaultMaxRecording bounds a single attempt; capture stops and is
// submitted automatically when it elapses.
const DefaultMaxRecording = 5 * time.Second

var (
	// ErrBusy is returned when an attempt is started while another one is
	// still recording or uploading.
	ErrBusy = errors.New("attempt already in progress")
	// ErrNoAttempt resolves FinishAttempt when nothing was recording.
	ErrNoAttempt = errors.New("no attempt in progress")
)

// Outcome resolves an attempt future. Err wraps apperr.ErrSubmission when
// the upload or response failed.
type Outcome struct {
	Result models.AttemptResult
	Err    error
}

type cycleState int

const (
	idle cycleState = iota
	recording
	uploading
)

// CycleOptions configures a Cycle.
type CycleOptions struct {
	MaxRecording time.Duration
	// IsOwner gates StartAttempt; attempts outside the local turn are no-ops.
	IsOwner func() bool
	Logger  zerolog.Logger
}

// Cycle drives one attempt at a time through Recorder and Grader.
type Cycle struct {
	recorder     Recorder
	grader       Grader
	isOwner      func() bool
	maxRecording time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	state    cycleState
	expected string
	timer    *time.Timer
	future   chan Outcome
}

// NewCycle wires a recorder to a grader.
func NewCycle(recorder Recorder, grader Grader, opts CycleOptions) *Cycle {
	if opts.MaxRecording <= 0 {
		opts.MaxRecording = DefaultMaxRecording
	}
	return &Cycle{
		recorder:     recorder,
		grader:       grader,
		isOwner:      opts.IsOwner,
		maxRecording: opts.MaxRecording,
		log:          opts.Logger.With().Str("component", "attempt").Logger(),
	}
}

// StartAttempt begins capturing a reading of expectedText. It returns the
// attempt's future, or nil when the caller does not hold the turn.
func (c *Cycle) StartAttempt(ctx context.Context, expectedText string) (<-chan Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != idle {
		return nil, ErrBusy
	}
	if c.isOwner != nil && !c.isOwner() {
		c.log.Debug().Msg("attempt_ignored_not_owner")
		return nil, nil
	}
	if err := c.recorder.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}

	c.state = recording
	c.expected = expectedText
	c.future = make(chan Outcome, 1)
	c.timer = time.AfterFunc(c.maxRecording, c.autoStop)

	c.log.Debug().Dur("max", c.maxRecording).Msg("attempt_started")
	return c.future, nil
}

// FinishAttempt stops capture and submits the recording. The returned
// future is the one StartAttempt handed out; if the attempt already
// auto-stopped, the same in-flight future is returned.
func (c *Cycle) FinishAttempt(ctx context.Context) <-chan Outcome {
	c.mu.Lock()
	switch c.state {
	case recording:
		c.timer.Stop()
		c.state = uploading
		future, expected := c.future, c.expected
		c.mu.Unlock()
		go c.submit(ctx, future, expected)
		return future
	case uploading:
		future := c.future
		c.mu.Unlock()
		return future
	}
	c.mu.Unlock()

	done := make(chan Outcome, 1)
	done <- Outcome{Err: ErrNoAttempt}
	return done
}

func (c *Cycle) autoStop() {
	c.mu.Lock()
	if c.state != recording {
		c.mu.Unlock()
		return
	}
	c.state = uploading
	future, expected := c.future, c.expected
	c.mu.Unlock()

	c.log.Info().Dur("max", c.maxRecording).Msg("attempt_auto_stopped")
	c.submit(context.Background(), future, expected)
}

func (c *Cycle) submit(ctx context.Context, future chan Outcome, expected string) {
	outcome := c.grade(ctx, expected)

	c.mu.Lock()
	c.state = idle
	c.future = nil
	c.timer = nil
	c.mu.Unlock()

	future <- outcome
}

func (c *Cycle) grade(ctx context.Context, expected string) Outcome {
	clip, err := c.recorder.Stop(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("attempt_stop_failed")
		return Outcome{Err: fmt.Errorf("%w: %w", apperr.ErrSubmission, err)}
	}

	result, err := c.grader.Grade(ctx, clip, expected)
	if err != nil {
		if !errors.Is(err, apperr.ErrSubmission) {
			err = fmt.Errorf("%w: %w", apperr.ErrSubmission, err)
		}
		c.log.Warn().Err(err).Msg("attempt_submission_failed")
		return Outcome{Err: err}
	}
	return Outcome{Result: result}
}

// Recording reports whether capture is in progress.
func (c *Cycle) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == recording
}

// Uploading reports whether a recording is being graded.
func (c *Cycle) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == uploading
}

package grading

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readalong/internal/apperr"
	"readalong/internal/models"
)

func await(t *testing.T, future <-chan Outcome) Outcome {
	t.Helper()
	require.NotNil(t, future)
	select {
	case out := <-future:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for attempt outcome")
	}
	return Outcome{}
}

func newCycle(grader Grader, owner *atomic.Bool, max time.Duration) (*Cycle, *FakeRecorder) {
	rec := &FakeRecorder{Clip: Clip{Data: []byte("pcm")}}
	c := NewCycle(rec, grader, CycleOptions{
		MaxRecording: max,
		IsOwner:      owner.Load,
		Logger:       zerolog.Nop(),
	})
	return c, rec
}

func owner(v bool) *atomic.Bool {
	b := &atomic.Bool{}
	b.Store(v)
	return b
}

func TestAttemptRoundTrip(t *testing.T) {
	ctx := context.Background()
	grader := &FakeGrader{Results: []models.AttemptResult{{Grade: 0.9, Frustrated: true}}}
	c, rec := newCycle(grader, owner(true), time.Minute)

	future, err := c.StartAttempt(ctx, "The wolf knocked on the door.")
	require.NoError(t, err)
	assert.True(t, c.Recording())

	same := c.FinishAttempt(ctx)
	out := await(t, same)
	require.NoError(t, out.Err)
	assert.Equal(t, 0.9, out.Result.Grade)
	assert.True(t, out.Result.Frustrated)

	select {
	case <-future:
		t.Fatal("future resolved twice")
	default:
	}

	assert.False(t, c.Recording())
	assert.False(t, c.Uploading())
	assert.Equal(t, []string{"The wolf knocked on the door."}, grader.Expected())
	starts, stops := rec.Counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestStartAttemptNotOwnerIsNoop(t *testing.T) {
	c, rec := newCycle(&FakeGrader{}, owner(false), time.Minute)

	future, err := c.StartAttempt(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Nil(t, future)
	assert.False(t, c.Recording())

	starts, _ := rec.Counts()
	assert.Equal(t, 0, starts)
}

func TestStartAttemptWhileBusy(t *testing.T) {
	ctx := context.Background()
	grader := &FakeGrader{Delay: 80 * time.Millisecond}
	c, _ := newCycle(grader, owner(true), time.Minute)

	_, err := c.StartAttempt(ctx, "one")
	require.NoError(t, err)
	_, err = c.StartAttempt(ctx, "two")
	assert.ErrorIs(t, err, ErrBusy)

	future := c.FinishAttempt(ctx)
	assert.True(t, c.Uploading())
	_, err = c.StartAttempt(ctx, "three")
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, await(t, future).Err)

	_, err = c.StartAttempt(ctx, "four")
	assert.NoError(t, err)
}

func TestAutoStopSubmits(t *testing.T) {
	ctx := context.Background()
	grader := &FakeGrader{Results: []models.AttemptResult{{Grade: 0.4}}}
	c, _ := newCycle(grader, owner(true), 30*time.Millisecond)

	future, err := c.StartAttempt(ctx, "Reading is fun.")
	require.NoError(t, err)

	out := await(t, future)
	require.NoError(t, out.Err)
	assert.Equal(t, 0.4, out.Result.Grade)
	assert.False(t, c.Recording())

	// Finishing after the auto-stop has nothing left to submit.
	late := await(t, c.FinishAttempt(ctx))
	assert.ErrorIs(t, late.Err, ErrNoAttempt)
}

func TestFinishDuringUploadReturnsSameFuture(t *testing.T) {
	ctx := context.Background()
	grader := &FakeGrader{Delay: 50 * time.Millisecond}
	c, _ := newCycle(grader, owner(true), time.Minute)

	_, err := c.StartAttempt(ctx, "x")
	require.NoError(t, err)
	first := c.FinishAttempt(ctx)
	second := c.FinishAttempt(ctx)
	assert.Equal(t, first, second)
	require.NoError(t, await(t, first).Err)
}

func TestSubmissionFailureResetsCycle(t *testing.T) {
	ctx := context.Background()
	grader := &FakeGrader{Err: errors.New("connection refused")}
	c, _ := newCycle(grader, owner(true), time.Minute)

	_, err := c.StartAttempt(ctx, "x")
	require.NoError(t, err)
	out := await(t, c.FinishAttempt(ctx))
	assert.ErrorIs(t, out.Err, apperr.ErrSubmission)
	assert.ErrorContains(t, out.Err, "connection refused")

	// The reader can retry right away.
	_, err = c.StartAttempt(ctx, "x")
	assert.NoError(t, err)
}

func TestRecorderFailures(t *testing.T) {
	ctx := context.Background()

	rec := &FakeRecorder{StartErr: errors.New("mic busy")}
	c := NewCycle(rec, &FakeGrader{}, CycleOptions{Logger: zerolog.Nop()})
	_, err := c.StartAttempt(ctx, "x")
	assert.ErrorContains(t, err, "mic busy")
	assert.False(t, c.Recording())

	rec = &FakeRecorder{StopErr: errors.New("disk full")}
	c = NewCycle(rec, &FakeGrader{}, CycleOptions{Logger: zerolog.Nop()})
	_, err = c.StartAttempt(ctx, "x")
	require.NoError(t, err)
	out := await(t, c.FinishAttempt(ctx))
	assert.ErrorIs(t, out.Err, apperr.ErrSubmission)
}

func TestFinishWithoutStart(t *testing.T) {
	c, _ := newCycle(&FakeGrader{}, owner(true), time.Minute)
	out := await(t, c.FinishAttempt(context.Background()))
	assert.ErrorIs(t, out.Err, ErrNoAttempt)
}

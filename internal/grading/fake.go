package grading

import (
	"context"
	"sync"
	"time"

	"readalong/internal/models"
)

// FakeRecorder returns a fixed clip. It is meant for tests and dry runs.
type FakeRecorder struct {
	Clip     Clip
	StartErr error
	StopErr  error

	mu     sync.Mutex
	active bool
	starts int
	stops  int
}

func (r *FakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.active = true
	r.starts++
	return nil
}

func (r *FakeRecorder) Stop(ctx context.Context) (Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return Clip{}, ErrNotRecording
	}
	r.active = false
	r.stops++
	if r.StopErr != nil {
		return Clip{}, r.StopErr
	}
	clip := r.Clip
	if clip.Filename == "" {
		clip.Filename = "attempt.m4a"
	}
	return clip, nil
}

// Counts returns how many times Start and Stop succeeded.
func (r *FakeRecorder) Counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

// FakeGrader answers from a queue of results; the last one repeats.
type FakeGrader struct {
	Results []models.AttemptResult
	Err     error
	Delay   time.Duration

	mu       sync.Mutex
	calls    int
	expected []string
}

func (g *FakeGrader) Grade(ctx context.Context, clip Clip, expectedText string) (models.AttemptResult, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return models.AttemptResult{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.expected = append(g.expected, expectedText)
	if g.Err != nil {
		return models.AttemptResult{}, g.Err
	}
	if len(g.Results) == 0 {
		return models.AttemptResult{Grade: 1}, nil
	}
	res := g.Results[0]
	if len(g.Results) > 1 {
		g.Results = g.Results[1:]
	}
	return res, nil
}

// Expected returns the expected texts submitted so far.
func (g *FakeGrader) Expected() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.expected...)
}

// Package scoring accumulates per-sentence scores and flushes the session
// total into the reader's profile.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// ProfileStore reads and writes a reader's cumulative score.
type ProfileStore interface {
	GetScore(ctx context.Context, participantID string) (int, error)
	UpdateScore(ctx context.Context, participantID string, score int) error
}

// SentenceScore converts a grade in [0,1] to sentence points.
func SentenceScore(grade float64) int {
	return int(math.Ceil(grade * 10))
}

// Ledger is the local, ordered list of sentence scores for one session.
type Ledger struct {
	store         ProfileStore
	participantID string
	log           zerolog.Logger

	mu      sync.Mutex
	scores  []int
	flushed bool
}

// NewLedger creates an empty ledger for participantID.
func NewLedger(store ProfileStore, participantID string, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:         store,
		participantID: participantID,
		log:           log.With().Str("component", "scoring").Str("participant", participantID).Logger(),
	}
}

// RecordScore appends the score for a passing grade and returns it.
func (l *Ledger) RecordScore(grade float64) int {
	score := SentenceScore(grade)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.scores = append(l.scores, score)
	return score
}

// Scores returns a copy of the recorded scores in order.
func (l *Ledger) Scores() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.scores...)
}

// Total returns the sum of recorded scores.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total()
}

func (l *Ledger) total() int {
	sum := 0
	for _, s := range l.scores {
		sum += s
	}
	return sum
}

// Grade returns the session grade for a passage of contentLength sentences.
func (l *Ledger) Grade(contentLength int) float64 {
	if contentLength <= 0 {
		return 0
	}
	return float64(l.Total()) / float64(contentLength*10)
}

// Flushed reports whether Finish has succeeded.
func (l *Ledger) Flushed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushed
}

// Finish adds the session total to the stored profile score. On failure
// the ledger is kept so Finish can be called again; after a successful
// Finish further calls do nothing.
func (l *Ledger) Finish(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flushed {
		return nil
	}
	total := l.total()

	current, err := l.store.GetScore(ctx, l.participantID)
	if err != nil {
		l.log.Error().Err(err).Msg("score_read_failed")
		return fmt.Errorf("failed to read profile score: %w", err)
	}

	if err := l.store.UpdateScore(ctx, l.participantID, current+total); err != nil {
		l.log.Error().Err(err).Int("total", total).Msg("score_write_failed")
		return fmt.Errorf("failed to update profile score: %w", err)
	}

	l.flushed = true
	l.log.Info().Int("session_total", total).Int("profile_score", current+total).Msg("score_flushed")
	return nil
}

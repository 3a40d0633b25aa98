package models

import (
	"fmt"
	"strings"
)

// FeedbackKind tags a WordFeedback variant.
type FeedbackKind string

const (
	FeedbackMissing       FeedbackKind = "missing"
	FeedbackExtra         FeedbackKind = "extra"
	FeedbackCorrect       FeedbackKind = "correct"
	FeedbackMispronounced FeedbackKind = "mispronounced"
)

// Valid reports whether k is one of the known feedback kinds.
func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackMissing, FeedbackExtra, FeedbackCorrect, FeedbackMispronounced:
		return true
	}
	return false
}

// WordFeedback is the grader's verdict on a single word. Expected is only
// set for mispronounced words.
type WordFeedback struct {
	Kind     FeedbackKind `json:"type"`
	Word     string       `json:"word"`
	Expected string       `json:"expected,omitempty"`
}

// Text renders the feedback as a sentence for a young reader.
func (f WordFeedback) Text() string {
	switch f.Kind {
	case FeedbackMissing:
		return fmt.Sprintf("You missed the word %q", f.Word)
	case FeedbackExtra:
		return fmt.Sprintf("You said an extra word %q", f.Word)
	case FeedbackCorrect:
		return fmt.Sprintf("You said %q correctly", f.Word)
	case FeedbackMispronounced:
		return fmt.Sprintf("You mispronounced %q. Expected: %q", f.Word, f.Expected)
	}
	return ""
}

// AttemptResult is the grading server's response to one recorded attempt.
type AttemptResult struct {
	Grade      float64        `json:"grade"`
	Frustrated bool           `json:"frustrated"`
	Feedback   []WordFeedback `json:"feedback"`
}

// AllCorrect reports whether every word was read correctly.
func (r AttemptResult) AllCorrect() bool {
	for _, f := range r.Feedback {
		if f.Kind != FeedbackCorrect {
			return false
		}
	}
	return true
}

// FriendlyFeedback joins the per-word renderings, one per line.
func FriendlyFeedback(feedback []WordFeedback) string {
	lines := make([]string, 0, len(feedback))
	for _, f := range feedback {
		if text := f.Text(); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}

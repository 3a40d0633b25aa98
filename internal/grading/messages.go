package grading

import "math/rand/v2"

// AdvanceThreshold is the lowest grade that moves the turn on.
const AdvanceThreshold = 0.8

// Prompts shown around an attempt.
const (
	PromptIdle  = "Hold the button and read the sentence!"
	PromptRetry = "Almost there...Try again!"
)

// Verdict is what the reader should do after a graded attempt.
type Verdict int

const (
	Retry Verdict = iota
	Advance
)

func (v Verdict) String() string {
	if v == Advance {
		return "advance"
	}
	return "retry"
}

var passingMessages = []string{
	"Great job!",
	"Awesome reading!",
	"You nailed it!",
	"Fantastic!",
	"Super star reader!",
	"Wonderful, keep it up!",
}

var encouragementMessages = []string{
	PromptRetry,
	"Good try! Give it another go.",
	"So close! One more time.",
	"Keep going, you can do it!",
	"Take a deep breath and try again!",
}

// Feedback is the interpreted verdict with a message for the reader.
type Feedback struct {
	Verdict Verdict
	Message string
}

// Interpret turns a grade into a verdict. Passing grades get a passing
// message, everything else a random encouragement.
func Interpret(grade float64) Feedback {
	if grade >= AdvanceThreshold {
		return Feedback{Verdict: Advance, Message: pick(passingMessages)}
	}
	return Feedback{Verdict: Retry, Message: pick(encouragementMessages)}
}

func pick(pool []string) string {
	return pool[rand.IntN(len(pool))]
}

// Tier is an end-of-session award level.
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
	TierNone   Tier = "none"
)

// Award is shown when a session finishes.
type Award struct {
	Tier    Tier
	Message string
	Emoji   string
}

// AwardFor maps a session grade in [0,1] to an award.
func AwardFor(grade float64) Award {
	switch {
	case grade >= 0.8:
		return Award{Tier: TierGold, Message: "You earned a Gold Award!", Emoji: "🎖️"}
	case grade >= 0.65:
		return Award{Tier: TierSilver, Message: "You earned a Silver Award!", Emoji: "🥈"}
	case grade >= 0.5:
		return Award{Tier: TierBronze, Message: "You earned a Bronze Award!", Emoji: "🥉"}
	}
	return Award{Tier: TierNone, Message: "Keep practicing to earn an award!", Emoji: "😊"}
}

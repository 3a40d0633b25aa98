package models

// TurnState is the shared cursor of a reading session.
type TurnState struct {
	ActiveParticipantID string
	SentenceIndex       int
}

// IsOwnedBy reports whether participantID holds the turn.
func (s TurnState) IsOwnedBy(participantID string) bool {
	return participantID != "" && s.ActiveParticipantID == participantID
}

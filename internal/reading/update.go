package reading

import (
	"readalong/internal/grading"
	"readalong/internal/models"
	"readalong/internal/presence"
)

// UpdateKind tags an Update.
type UpdateKind int

const (
	UpdatePeerJoined UpdateKind = iota
	UpdateTurn
	UpdateRecording
	UpdateUploading
	UpdateGraded
	UpdateSubmissionFailed
	UpdateBroadcastFailed
	UpdateCompleted
	UpdatePeerEnded
)

func (k UpdateKind) String() string {
	switch k {
	case UpdatePeerJoined:
		return "peer_joined"
	case UpdateTurn:
		return "turn"
	case UpdateRecording:
		return "recording"
	case UpdateUploading:
		return "uploading"
	case UpdateGraded:
		return "graded"
	case UpdateSubmissionFailed:
		return "submission_failed"
	case UpdateBroadcastFailed:
		return "broadcast_failed"
	case UpdateCompleted:
		return "completed"
	case UpdatePeerEnded:
		return "peer_ended"
	}
	return "unknown"
}

// Update is something the reader's screen should reflect.
type Update struct {
	Kind     UpdateKind
	Turn     models.TurnState
	MyTurn   bool
	Peer     models.Participant
	Reason   presence.EndReason
	Result   *models.AttemptResult
	Feedback grading.Feedback
	Score    int
	Total    int
	Err      error
}

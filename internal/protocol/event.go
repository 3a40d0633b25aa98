// Package protocol defines the realtime messages exchanged on a session
// channel. The set of kinds is closed; frames are validated on decode.
package protocol

// Kind identifies an event variant on the wire.
type Kind string

const (
	KindPresenceJoin    Kind = "presence-join"
	KindPresenceLeave   Kind = "presence-leave"
	KindTurnChange      Kind = "turn_change"
	KindSessionComplete Kind = "session_complete"
	KindPeerDisconnect  Kind = "peer_disconnect"
	KindSessionEnded    Kind = "session_ended"
	KindPeerJoined      Kind = "peer-joined"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPresenceJoin, KindPresenceLeave, KindTurnChange, KindSessionComplete,
		KindPeerDisconnect, KindSessionEnded, KindPeerJoined:
		return true
	}
	return false
}

// IsPresence reports whether the kind is synthesized by the relay from
// subscription state rather than broadcast by a participant.
func (k Kind) IsPresence() bool {
	return k == KindPresenceJoin || k == KindPresenceLeave
}

// Ends reports whether the kind announces that the sender left for good.
func (k Kind) Ends() bool {
	return k == KindPeerDisconnect || k == KindSessionEnded
}

// Presence is the tracked state of a channel member.
type Presence struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
}

// TurnChange hands the turn to NextTurn at SentenceIndex.
type TurnChange struct {
	NextTurn      string `json:"nextTurn"`
	SentenceIndex int    `json:"sentenceIndex"`
}

// Peer identifies the participant announcing a join or departure.
type Peer struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// Event is a decoded channel message. Exactly one payload field is set,
// matching Kind; SessionComplete carries none.
type Event struct {
	Kind     Kind
	From     string
	Presence *Presence
	Turn     *TurnChange
	Peer     *Peer
}

// PresenceJoin announces that p subscribed to the channel.
func PresenceJoin(p Presence) Event {
	return Event{Kind: KindPresenceJoin, From: p.ParticipantID, Presence: &p}
}

// PresenceLeave announces that participantID's subscription went away.
func PresenceLeave(participantID string) Event {
	return Event{
		Kind:     KindPresenceLeave,
		From:     participantID,
		Presence: &Presence{ParticipantID: participantID},
	}
}

// NewTurnChange builds a turn_change broadcast from sender.
func NewTurnChange(from, nextTurn string, sentenceIndex int) Event {
	return Event{
		Kind: KindTurnChange,
		From: from,
		Turn: &TurnChange{NextTurn: nextTurn, SentenceIndex: sentenceIndex},
	}
}

// NewSessionComplete builds a session_complete broadcast from sender.
func NewSessionComplete(from string) Event {
	return Event{Kind: KindSessionComplete, From: from}
}

// NewPeerDisconnect builds the notice a participant sends when leaving
// an unfinished session.
func NewPeerDisconnect(from, name string) Event {
	return Event{Kind: KindPeerDisconnect, From: from, Peer: &Peer{UserID: from, Name: name}}
}

// NewSessionEnded builds the notice a participant sends when ending the
// session for both sides.
func NewSessionEnded(from, name string) Event {
	return Event{Kind: KindSessionEnded, From: from, Peer: &Peer{UserID: from, Name: name}}
}

// NewPeerJoined builds the announcement a joining peer broadcasts once
// subscribed.
func NewPeerJoined(from, name string) Event {
	return Event{Kind: KindPeerJoined, From: from, Peer: &Peer{UserID: from, Name: name}}
}

// SenderName returns the display name carried by the event, if any.
func (e Event) SenderName() string {
	switch {
	case e.Presence != nil:
		return e.Presence.DisplayName
	case e.Peer != nil:
		return e.Peer.Name
	}
	return ""
}

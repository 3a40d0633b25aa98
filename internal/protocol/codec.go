package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEvent is returned for frames that are not a known, well formed
// event.
var ErrInvalidEvent = errors.New("invalid event")

type frame struct {
	Event   Kind            `json:"event"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode validates ev and renders it as a wire frame.
func Encode(ev Event) ([]byte, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}

	var payload any
	switch ev.Kind {
	case KindPresenceJoin, KindPresenceLeave:
		payload = ev.Presence
	case KindTurnChange:
		payload = ev.Turn
	case KindSessionComplete:
		payload = struct{}{}
	case KindPeerDisconnect, KindSessionEnded, KindPeerJoined:
		payload = ev.Peer
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Kind, err)
	}
	return json.Marshal(frame{Event: ev.Kind, From: ev.From, Payload: raw})
}

// Decode parses and validates a wire frame.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if !f.Event.Valid() {
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, f.Event)
	}

	ev := Event{Kind: f.Event, From: f.From}
	switch f.Event {
	case KindPresenceJoin, KindPresenceLeave:
		var p Presence
		if err := decodePayload(f.Payload, &p); err != nil {
			return Event{}, err
		}
		ev.Presence = &p
	case KindTurnChange:
		// sentenceIndex is required, so decode through a pointer to tell
		// a missing field from zero.
		var t struct {
			NextTurn      string `json:"nextTurn"`
			SentenceIndex *int   `json:"sentenceIndex"`
		}
		if err := decodePayload(f.Payload, &t); err != nil {
			return Event{}, err
		}
		if t.SentenceIndex == nil {
			return Event{}, fmt.Errorf("%w: turn_change without sentenceIndex", ErrInvalidEvent)
		}
		ev.Turn = &TurnChange{NextTurn: t.NextTurn, SentenceIndex: *t.SentenceIndex}
	case KindSessionComplete:
	case KindPeerDisconnect, KindSessionEnded, KindPeerJoined:
		var p Peer
		if err := decodePayload(f.Payload, &p); err != nil {
			return Event{}, err
		}
		ev.Peer = &p
	}

	if err := Validate(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing payload", ErrInvalidEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Validate checks that ev carries the payload its kind requires.
func Validate(ev Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.From == "" {
		return fmt.Errorf("%w: %s without sender", ErrInvalidEvent, ev.Kind)
	}

	switch ev.Kind {
	case KindPresenceJoin, KindPresenceLeave:
		if ev.Presence == nil || ev.Presence.ParticipantID == "" {
			return fmt.Errorf("%w: %s without participant_id", ErrInvalidEvent, ev.Kind)
		}
	case KindTurnChange:
		if ev.Turn == nil || ev.Turn.NextTurn == "" {
			return fmt.Errorf("%w: turn_change without nextTurn", ErrInvalidEvent)
		}
		if ev.Turn.SentenceIndex < 0 {
			return fmt.Errorf("%w: negative sentenceIndex %d", ErrInvalidEvent, ev.Turn.SentenceIndex)
		}
	case KindPeerDisconnect, KindSessionEnded, KindPeerJoined:
		if ev.Peer == nil || ev.Peer.UserID == "" {
			return fmt.Errorf("%w: %s without userId", ErrInvalidEvent, ev.Kind)
		}
	}
	return nil
}

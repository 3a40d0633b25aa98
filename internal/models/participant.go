package models

import "strings"

const channelPrefix = "peer_session:"

// Role is a participant's role in a shared reading session.
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// DefaultReaderName is shown when a participant has no display name.
const DefaultReaderName = "Reader"

// Participant is one of the two devices in a session.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
}

// Name returns the display name, falling back to DefaultReaderName.
func (p Participant) Name() string {
	if p.DisplayName == "" {
		return DefaultReaderName
	}
	return p.DisplayName
}

// IsHost reports whether the participant created the session.
func (p Participant) IsHost() bool {
	return p.Role == RoleHost
}

// ChannelName returns the realtime channel bound to a session code.
func ChannelName(sessionCode string) string {
	return channelPrefix + sessionCode
}

// SessionCodeFromChannel returns the session code of a channel name built
// by ChannelName.
func SessionCodeFromChannel(name string) (string, bool) {
	return strings.CutPrefix(name, channelPrefix)
}

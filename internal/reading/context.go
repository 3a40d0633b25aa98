package reading

import (
	"errors"
	"fmt"
	"sync"
)

// Key names a value held by a SessionContext.
type Key string

const (
	KeyAvatar     Key = "avatar"
	KeyFrustrated Key = "frustrated"
)

// Avatar is the reading companion shown to the child.
type Avatar string

const (
	AvatarGiraffe  Avatar = "giraffe"
	AvatarElephant Avatar = "elephant"
	AvatarBear     Avatar = "bear"
	AvatarTiger    Avatar = "tiger"
)

// Avatars lists the selectable avatars.
var Avatars = []Avatar{AvatarGiraffe, AvatarElephant, AvatarBear, AvatarTiger}

// Valid reports whether a is a known avatar.
func (a Avatar) Valid() bool {
	for _, known := range Avatars {
		if a == known {
			return true
		}
	}
	return false
}

var (
	ErrUnknownKey   = errors.New("unknown session context key")
	ErrInvalidValue = errors.New("invalid session context value")
)

// SessionContext is the small piece of state shared across screens of one
// reader: the chosen avatar and whether the last attempt sounded frustrated.
type SessionContext struct {
	mu         sync.RWMutex
	avatar     Avatar
	frustrated bool
}

// NewSessionContext starts with the giraffe and a calm reader.
func NewSessionContext() *SessionContext {
	return &SessionContext{avatar: AvatarGiraffe}
}

// Set assigns value to key, checking its type.
func (c *SessionContext) Set(key Key, value any) error {
	switch key {
	case KeyAvatar:
		var a Avatar
		switch v := value.(type) {
		case Avatar:
			a = v
		case string:
			a = Avatar(v)
		default:
			return fmt.Errorf("%w: %s wants an avatar, got %T", ErrInvalidValue, key, value)
		}
		return c.SetAvatar(a)
	case KeyFrustrated:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants a bool, got %T", ErrInvalidValue, key, value)
		}
		c.SetFrustrated(b)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Get returns the value held under key.
func (c *SessionContext) Get(key Key) (any, error) {
	switch key {
	case KeyAvatar:
		return c.Avatar(), nil
	case KeyFrustrated:
		return c.Frustrated(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

func (c *SessionContext) Avatar() Avatar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.avatar
}

func (c *SessionContext) SetAvatar(a Avatar) error {
	if !a.Valid() {
		return fmt.Errorf("%w: unknown avatar %q", ErrInvalidValue, a)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avatar = a
	return nil
}

func (c *SessionContext) Frustrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frustrated
}

func (c *SessionContext) SetFrustrated(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frustrated = b
}

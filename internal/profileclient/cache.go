package profileclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/oauth2"
)

// ErrNoSession is returned by TokenCache.Load when nobody is logged in.
var ErrNoSession = errors.New("not logged in")

// TokenCache stores the logged-in session in a TOML file readable only by
// its owner.
type TokenCache struct {
	path string
}

type cachedSession struct {
	Server      string    `toml:"server"`
	UserID      string    `toml:"user_id"`
	Name        string    `toml:"name"`
	AccessToken string    `toml:"access_token"`
	TokenType   string    `toml:"token_type"`
	Expiry      time.Time `toml:"expiry"`
}

// NewTokenCache returns a cache backed by path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the cache file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Save writes the session for server.
func (c *TokenCache) Save(server string, s *Session) error {
	data, err := toml.Marshal(cachedSession{
		Server:      server,
		UserID:      s.UserID,
		Name:        s.Name,
		AccessToken: s.Token.AccessToken,
		TokenType:   s.Token.TokenType,
		Expiry:      s.Token.Expiry.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode token cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache: %w", err)
	}
	return nil
}

// Load returns the cached session for server. A missing file, a session
// for another server or an expired token yield ErrNoSession.
func (c *TokenCache) Load(server string) (*Session, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	var cached cachedSession
	if err := toml.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if cached.Server != server || cached.AccessToken == "" {
		return nil, ErrNoSession
	}

	tok := &oauth2.Token{
		AccessToken: cached.AccessToken,
		TokenType:   cached.TokenType,
		Expiry:      cached.Expiry,
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: token expired", ErrNoSession)
	}
	return &Session{Token: tok, UserID: cached.UserID, Name: cached.Name}, nil
}

// Clear removes the cache file.
func (c *TokenCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

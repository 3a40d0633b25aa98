package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"readalong/internal/auth"
	"readalong/internal/models"
	"readalong/internal/repository"
	"readalong/internal/security"
	"readalong/internal/validation"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNameNotAllowed     = validation.ValidationError{Field: "name", Message: "please choose a different name"}
)

// NameFilter reports whether a display name contains a filtered word.
// *database.DB implements it.
type NameFilter interface {
	ContainsBadWord(ctx context.Context, text string) (bool, error)
}

// Welcomer sends the sign-up email.
type Welcomer interface {
	SendWelcomeEmail(ctx context.Context, toEmail, toName string) error
}

// AuthService handles account creation and token issuance
type AuthService struct {
	users   *repository.UserRepository
	tokens  *auth.TokenIssuer
	names   NameFilter
	welcome Welcomer
	log     zerolog.Logger
}

// NewAuthService creates a new auth service. names and welcome may be nil.
func NewAuthService(users *repository.UserRepository, tokens *auth.TokenIssuer, names NameFilter, welcome Welcomer, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		names:   names,
		welcome: welcome,
		log:     log,
	}
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if err := checkName(ctx, s.names, name); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, security.NewID(), email, passwordHash, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Info().Str("user", user.ID).Msg("user_registered")

	if s.welcome != nil {
		if err := s.welcome.SendWelcomeEmail(ctx, user.Email, user.Name); err != nil {
			s.log.Warn().Err(err).Str("user", user.ID).Msg("welcome_email_failed")
		}
	}
	return user, nil
}

// Login checks credentials and returns the user with a signed access token
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return nil, "", err
	}
	s.log.Debug().Str("user", user.ID).Msg("token_issued")
	return user, token, nil
}

// Authenticate verifies a bearer token
func (s *AuthService) Authenticate(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

// TokenTTL returns the lifetime of issued tokens.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func checkName(ctx context.Context, names NameFilter, name string) error {
	if names == nil {
		return nil
	}
	bad, err := names.ContainsBadWord(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check name: %w", err)
	}
	if bad {
		return ErrNameNotAllowed
	}
	return nil
}

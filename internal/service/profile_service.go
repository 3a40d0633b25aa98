package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"readalong/internal/apperr"
	"readalong/internal/database"
	"readalong/internal/models"
	"readalong/internal/repository"
	"readalong/internal/validation"
)

var ErrProfileNotFound = errors.New("profile not found")

var allowedAvatars = map[string]bool{
	"giraffe":  true,
	"elephant": true,
	"bear":     true,
	"tiger":    true,
}

// Summarizer sends the end-of-session email.
type Summarizer interface {
	SendSessionSummary(ctx context.Context, toEmail, toName string, points, total int) error
}

// ProfileService reads and updates reader profiles
type ProfileService struct {
	db       *database.DB
	users    *repository.UserRepository
	readings *repository.ReadingRepository
	names    NameFilter
	summary  Summarizer
	log      zerolog.Logger
}

// NewProfileService creates a new profile service. names and summary may be nil.
func NewProfileService(db *database.DB, names NameFilter, summary Summarizer, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		db:       db,
		users:    repository.NewUserRepository(db),
		readings: repository.NewReadingRepository(db),
		names:    names,
		summary:  summary,
		log:      log,
	}
}

// Get returns a profile. The email is only visible to its owner.
func (s *ProfileService) Get(ctx context.Context, actorID, id string) (*models.Profile, error) {
	if actorID == "" {
		return nil, apperr.ErrUnauthorized
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrProfileNotFound
	}
	profile := user.Profile()
	if actorID != id {
		profile.Email = ""
	}
	return &profile, nil
}

// Update applies a partial update to the actor's own profile. A score
// change is recorded as a reading record in the same transaction.
func (s *ProfileService) Update(ctx context.Context, actorID, id string, upd models.ProfileUpdate) (*models.Profile, error) {
	if actorID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if actorID != id {
		return nil, apperr.ErrForbidden
	}
	if err := s.validate(ctx, upd); err != nil {
		return nil, err
	}

	var (
		user  *models.User
		delta int
	)
	err := s.db.InTx(ctx, func(tx database.DBTX) error {
		users := s.users.WithTx(tx)
		var err error
		user, err = users.GetUserByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrProfileNotFound
		}

		if upd.Name != nil {
			user.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Age != nil {
			user.Age = *upd.Age
		}
		if upd.Avatar != nil {
			user.Avatar = *upd.Avatar
		}
		if upd.Score != nil {
			delta = *upd.Score - user.Score
			user.Score = *upd.Score
		}

		if err := users.UpdateProfile(ctx, user); err != nil {
			return err
		}
		if delta != 0 {
			if _, err := s.readings.WithTx(tx).Record(ctx, user.ID, delta, user.Score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user", id).Int("delta", delta).Int("score", user.Score).Msg("profile_updated")
	if delta > 0 && s.summary != nil {
		if err := s.summary.SendSessionSummary(ctx, user.Email, user.Name, delta, user.Score); err != nil {
			s.log.Warn().Err(err).Str("user", id).Msg("summary_email_failed")
		}
	}

	profile := user.Profile()
	return &profile, nil
}

// History returns the actor's most recent score changes.
func (s *ProfileService) History(ctx context.Context, actorID, id string, limit int) ([]models.ReadingRecord, error) {
	if actorID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if actorID != id {
		return nil, apperr.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.readings.ListForUser(ctx, id, limit)
}

func (s *ProfileService) validate(ctx context.Context, upd models.ProfileUpdate) error {
	if upd.IsEmpty() {
		return validation.ValidationError{Field: "profile", Message: "nothing to update"}
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := validation.ValidateName(name); err != nil {
			return err
		}
		if err := checkName(ctx, s.names, name); err != nil {
			return err
		}
	}
	if upd.Age != nil {
		if err := validation.ValidateAge(*upd.Age); err != nil {
			return err
		}
	}
	if upd.Score != nil {
		if err := validation.ValidateScore(*upd.Score); err != nil {
			return err
		}
	}
	if upd.Avatar != nil && !allowedAvatars[*upd.Avatar] {
		return validation.ValidationError{Field: "avatar", Message: fmt.Sprintf("unknown avatar %q", *upd.Avatar)}
	}
	return nil
}

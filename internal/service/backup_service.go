package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"readalong/internal/database"
	"readalong/internal/models"
	"readalong/internal/repository"
)

const backupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string                 `json:"version"`
	ExportedAt   time.Time              `json:"exported_at"`
	DatabaseType string                 `json:"database_type"`
	Users        []UserBackup           `json:"users"`
	Readings     []models.ReadingRecord `json:"readings"`
}

// UserBackup represents a user record for backup
type UserBackup struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Avatar       string    `json:"avatar"`
	Score        int       `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ImportStats counts the rows written by an import.
type ImportStats struct {
	Users    int
	Readings int
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, log zerolog.Logger) *BackupService {
	return &BackupService{db: db, log: log}
}

// Export writes a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	s.log.Info().Str("path", outputPath).Msg("backup_exported")
	return nil
}

// ExportToWriter exports the database to an io.Writer
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: "universal",
	}

	users, err := repository.NewUserRepository(s.db).ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, UserBackup{
			ID:           u.ID,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			Name:         u.Name,
			Age:          u.Age,
			Avatar:       u.Avatar,
			Score:        u.Score,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
	}

	backup.Readings, err = repository.NewReadingRepository(s.db).ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to export readings: %w", err)
	}

	s.log.Info().Int("users", len(backup.Users)).Int("readings", len(backup.Readings)).Msg("backup_collected")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(backup)
}

// Import restores a database from a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) (ImportStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a database from a backup reader. Users are
// upserted by id; reading records already present are skipped.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) (ImportStats, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return ImportStats{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return ImportStats{}, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	s.log.Info().Time("exported_at", backup.ExportedAt).Msg("backup_import_started")

	var stats ImportStats
	err := s.db.InTx(ctx, func(tx database.DBTX) error {
		users := repository.NewUserRepository(tx)
		for _, u := range backup.Users {
			err := users.UpsertUser(ctx, models.User{
				ID:           u.ID,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				Name:         u.Name,
				Age:          u.Age,
				Avatar:       u.Avatar,
				Score:        u.Score,
				CreatedAt:    u.CreatedAt,
				UpdatedAt:    u.UpdatedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to import users: %w", err)
			}
			stats.Users++
		}

		readings := repository.NewReadingRepository(tx)
		for _, rec := range backup.Readings {
			added, err := readings.Import(ctx, rec)
			if err != nil {
				return fmt.Errorf("failed to import readings: %w", err)
			}
			if added {
				stats.Readings++
			}
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}

	s.log.Info().Int("users", stats.Users).Int("readings", stats.Readings).Msg("backup_import_completed")
	return stats, nil
}

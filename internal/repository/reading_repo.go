package repository

import (
	"context"
	"fmt"
	"time"

	"readalong/internal/database"
	"readalong/internal/models"
)

// ReadingRepository stores the score flushes of finished sessions
type ReadingRepository struct {
	db database.DBTX
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db database.DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ReadingRepository) WithTx(tx database.DBTX) *ReadingRepository {
	return &ReadingRepository{db: tx}
}

// Record stores a score change for a user.
func (r *ReadingRepository) Record(ctx context.Context, userID string, points, totalAfter int) (*models.ReadingRecord, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO reading_records (user_id, points, total_after, recorded_at)
		VALUES (?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, userID, points, totalAfter, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record reading: %w", err)
	}
	return &models.ReadingRecord{
		ID:         id,
		UserID:     userID,
		Points:     points,
		TotalAfter: totalAfter,
		RecordedAt: now,
	}, nil
}

// ListForUser returns a user's records, newest first.
func (r *ReadingRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.ReadingRecord, error) {
	query := `
		SELECT id, user_id, points, total_after, recorded_at
		FROM reading_records
		WHERE user_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, userID, limit)
}

// ListAll returns every record in insertion order.
func (r *ReadingRepository) ListAll(ctx context.Context) ([]models.ReadingRecord, error) {
	query := `
		SELECT id, user_id, points, total_after, recorded_at
		FROM reading_records
		ORDER BY id
	`
	return r.list(ctx, query)
}

// Import inserts a record from a backup unless one with the same user and
// timestamp already exists. It reports whether a row was added.
func (r *ReadingRepository) Import(ctx context.Context, rec models.ReadingRecord) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reading_records WHERE user_id = ? AND recorded_at = ? AND points = ?",
		rec.UserID, rec.RecordedAt, rec.Points,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check reading record: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO reading_records (user_id, points, total_after, recorded_at) VALUES (?, ?, ?, ?)",
		rec.UserID, rec.Points, rec.TotalAfter, rec.RecordedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to import reading record: %w", err)
	}
	return true, nil
}

func (r *ReadingRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ReadingRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reading records: %w", err)
	}
	defer rows.Close()

	var records []models.ReadingRecord
	for rows.Next() {
		var rec models.ReadingRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Points, &rec.TotalAfter, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"meditrace/internal/verification/models"
)

// Postgres persists failed attempts in the failed_attempts table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed attempt store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) RecordAttempt(ctx context.Context, attempt *models.FailedAttempt) error {
	query := `
		INSERT INTO failed_attempts (scanned_id, attempt_type, reason, client_ip, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		attempt.ScannedID,
		string(attempt.AttemptType),
		attempt.Reason,
		attempt.ClientIP,
		attempt.Timestamp,
	).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("insert failed attempt: %w", err)
	}
	return nil
}

func (s *Postgres) AttemptsByScannedID(ctx context.Context, scannedID string) ([]models.FailedAttempt, error) {
	query := `
		SELECT id, scanned_id, attempt_type, reason, client_ip, timestamp
		FROM failed_attempts
		WHERE scanned_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, scannedID)
	if err != nil {
		return nil, fmt.Errorf("query failed attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (s *Postgres) RecentAttempts(ctx context.Context, limit int) ([]models.FailedAttempt, error) {
	query := `
		SELECT id, scanned_id, attempt_type, reason, client_ip, timestamp
		FROM failed_attempts
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.FailedAttempt, error) {
	var attempts []models.FailedAttempt
	for rows.Next() {
		var (
			a           models.FailedAttempt
			attemptType string
		)
		if err := rows.Scan(&a.ID, &a.ScannedID, &attemptType, &a.Reason, &a.ClientIP, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan failed attempt: %w", err)
		}
		a.AttemptType = models.AttemptType(attemptType)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed attempts: %w", err)
	}
	return attempts, nil
}

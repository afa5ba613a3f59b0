package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"meditrace/internal/unit/models"
	"meditrace/pkg/platform/sentinel"
)

// Postgres persists units and their custody event mirror.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed unit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateUnit(ctx context.Context, unit *models.Unit) error {
	query := `
		INSERT INTO units (
			unique_id, batch_token, fingerprint_hash, name, generic_name,
			manufacturer, license_number, dosage, composition, mrp,
			mfg_date, exp_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		unit.UniqueID,
		unit.BatchToken,
		unit.FingerprintHash,
		unit.Name,
		unit.GenericName,
		unit.Manufacturer,
		unit.LicenseNumber,
		unit.Dosage,
		unit.Composition,
		unit.MRP.String(),
		unit.MfgDate,
		unit.ExpDate,
		unit.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

func (s *Postgres) FindByUniqueID(ctx context.Context, uniqueID string) (*models.Unit, error) {
	query := `
		SELECT unique_id, batch_token, fingerprint_hash, name, generic_name,
		       manufacturer, license_number, dosage, composition, mrp,
		       mfg_date, exp_date, created_at
		FROM units
		WHERE unique_id = $1
	`
	unit, err := scanUnit(s.db.QueryRowContext(ctx, query, uniqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query unit: %w", err)
	}
	return unit, nil
}

func (s *Postgres) UnitsByBatch(ctx context.Context, batchToken string) ([]models.Unit, error) {
	query := `
		SELECT unique_id, batch_token, fingerprint_hash, name, generic_name,
		       manufacturer, license_number, dosage, composition, mrp,
		       mfg_date, exp_date, created_at
		FROM units
		WHERE batch_token = $1
		ORDER BY unique_id
	`
	rows, err := s.db.QueryContext(ctx, query, batchToken)
	if err != nil {
		return nil, fmt.Errorf("query batch units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

func (s *Postgres) AppendEvent(ctx context.Context, event *models.CustodyEvent) error {
	query := `
		INSERT INTO custody_events (unit_id, location_name, latitude, longitude, event_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		event.UnitID,
		event.LocationName,
		event.Latitude,
		event.Longitude,
		string(event.EventType),
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert custody event: %w", err)
	}
	return nil
}

func (s *Postgres) EventsByUnit(ctx context.Context, unitID string) ([]models.CustodyEvent, error) {
	query := `
		SELECT id, unit_id, location_name, latitude, longitude, event_type, timestamp
		FROM custody_events
		WHERE unit_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("query custody events: %w", err)
	}
	defer rows.Close()

	var events []models.CustodyEvent
	for rows.Next() {
		var e models.CustodyEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.UnitID, &e.LocationName, &e.Latitude, &e.Longitude, &eventType, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan custody event: %w", err)
		}
		e.EventType = models.EventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custody events: %w", err)
	}
	return events, nil
}

func (s *Postgres) LastEventTime(ctx context.Context, unitID string) (time.Time, error) {
	query := `
		SELECT timestamp FROM custody_events
		WHERE unit_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var t time.Time
	err := s.db.QueryRowContext(ctx, query, unitID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, sentinel.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query last event time: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*models.Unit, error) {
	var (
		unit models.Unit
		mrp  string
	)
	err := row.Scan(
		&unit.UniqueID,
		&unit.BatchToken,
		&unit.FingerprintHash,
		&unit.Name,
		&unit.GenericName,
		&unit.Manufacturer,
		&unit.LicenseNumber,
		&unit.Dosage,
		&unit.Composition,
		&mrp,
		&unit.MfgDate,
		&unit.ExpDate,
		&unit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(mrp)
	if err != nil {
		return nil, fmt.Errorf("parse mrp: %w", err)
	}
	unit.MRP = parsed
	return &unit, nil
}

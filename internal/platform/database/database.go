// Package database opens the PostgreSQL connection and owns the logical
// schema shared by the store packages.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Schema is the DDL for the logical tables. Applied idempotently at startup
// and by the integration test containers.
const Schema = `
CREATE TABLE IF NOT EXISTS units (
	unique_id        TEXT PRIMARY KEY,
	batch_token      TEXT NOT NULL,
	fingerprint_hash TEXT UNIQUE NOT NULL,
	name             TEXT NOT NULL,
	generic_name     TEXT NOT NULL DEFAULT '',
	manufacturer     TEXT NOT NULL,
	license_number   TEXT NOT NULL DEFAULT '',
	dosage           TEXT NOT NULL DEFAULT '',
	composition      TEXT NOT NULL DEFAULT '',
	mrp              NUMERIC(10,2) NOT NULL DEFAULT 0,
	mfg_date         DATE NOT NULL,
	exp_date         DATE NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS custody_events (
	id            BIGSERIAL PRIMARY KEY,
	unit_id       TEXT NOT NULL REFERENCES units(unique_id),
	location_name TEXT NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	event_type    TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS custody_events_unit_idx ON custody_events (unit_id, id);

CREATE TABLE IF NOT EXISTS ledger_blocks (
	block_index     BIGINT PRIMARY KEY,
	unit_id         TEXT REFERENCES units(unique_id),
	block_hash      TEXT UNIQUE NOT NULL,
	previous_hash   TEXT NOT NULL,
	-- TEXT, not JSONB: block hashes cover the exact serialized bytes, and
	-- JSONB re-renders values on read (key order, whitespace), which would
	-- fail every integrity walk over reloaded rows.
	payload         TEXT NOT NULL,
	block_timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_blocks_unit_idx ON ledger_blocks (unit_id, block_index);

CREATE TABLE IF NOT EXISTS failed_attempts (
	id           BIGSERIAL PRIMARY KEY,
	scanned_id   TEXT NOT NULL,
	attempt_type TEXT NOT NULL,
	reason       TEXT NOT NULL,
	client_ip    TEXT NOT NULL DEFAULT '',
	timestamp    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the schema. Uses IF NOT EXISTS throughout, so calling
// it on every boot is safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

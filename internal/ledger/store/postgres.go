package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"meditrace/internal/ledger"
	"meditrace/pkg/platform/sentinel"
)

// Postgres persists the chain in the ledger_blocks table. The primary key on
// block_index makes concurrent appends that raced past the service lock fail
// with sentinel.ErrConflict instead of forking the chain.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed chain store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) AppendBlock(ctx context.Context, block *ledger.Block) error {
	query := `
		INSERT INTO ledger_blocks (block_index, unit_id, block_hash, previous_hash, payload, block_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		block.Index,
		nullString(block.UnitID),
		block.Hash,
		block.PrevHash,
		block.Payload,
		block.Timestamp,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ledger block: %w", err)
	}
	return nil
}

func (s *Postgres) Tail(ctx context.Context) (*ledger.Block, error) {
	query := `
		SELECT block_index, unit_id, block_hash, previous_hash, payload, block_timestamp
		FROM ledger_blocks
		ORDER BY block_index DESC
		LIMIT 1
	`
	block, err := scanBlock(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chain tail: %w", err)
	}
	return block, nil
}

func (s *Postgres) Blocks(ctx context.Context) ([]ledger.Block, error) {
	query := `
		SELECT block_index, unit_id, block_hash, previous_hash, payload, block_timestamp
		FROM ledger_blocks
		ORDER BY block_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ledger blocks: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

func (s *Postgres) UnitBlocks(ctx context.Context, unitID string) ([]ledger.Block, error) {
	query := `
		SELECT block_index, unit_id, block_hash, previous_hash, payload, block_timestamp
		FROM ledger_blocks
		WHERE unit_id = $1
		ORDER BY block_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("query unit blocks: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

func (s *Postgres) Length(ctx context.Context) (int64, error) {
	var length int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_blocks`).Scan(&length); err != nil {
		return 0, fmt.Errorf("count ledger blocks: %w", err)
	}
	return length, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*ledger.Block, error) {
	var (
		block  ledger.Block
		unitID sql.NullString
	)
	err := row.Scan(
		&block.Index,
		&unitID,
		&block.Hash,
		&block.PrevHash,
		&block.Payload,
		&block.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	block.UnitID = unitID.String
	return &block, nil
}

func scanBlocks(rows *sql.Rows) ([]ledger.Block, error) {
	var blocks []ledger.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger block: %w", err)
		}
		blocks = append(blocks, *block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger blocks: %w", err)
	}
	return blocks, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

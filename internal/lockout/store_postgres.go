package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicgate/pkg/requestcontext"
)

// PostgresStore persists lockout records so locks survive restarts and are
// shared across instances. This store is pure I/O; lock decisions belong to
// the Tracker.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Schema is the table this store expects; applied by the deployment's
// migration tooling, not by the gateway.
const Schema = `
CREATE TABLE IF NOT EXISTS lockout_records (
    identifier      TEXT PRIMARY KEY,
    failed_attempts INT NOT NULL DEFAULT 0,
    last_attempt_at TIMESTAMPTZ NOT NULL,
    locked_until    TIMESTAMPTZ
);
`

// NewPostgres constructs a Postgres-backed lockout store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RecordFailure atomically increments the failure counter via a single
// INSERT ... ON CONFLICT ... RETURNING, preventing TOCTOU races where two
// concurrent attempts both observe a pre-threshold count.
func (s *PostgresStore) RecordFailure(ctx context.Context, identifier string) (*Record, error) {
	query := `
		INSERT INTO lockout_records (identifier, failed_attempts, last_attempt_at, locked_until)
		VALUES ($1, 1, $2, NULL)
		ON CONFLICT (identifier) DO UPDATE SET
			failed_attempts = lockout_records.failed_attempts + 1,
			last_attempt_at = $2
		RETURNING identifier, failed_attempts, last_attempt_at, locked_until
	`
	record, err := scanRecord(s.pool.QueryRow(ctx, query, identifier, requestcontext.Now(ctx)))
	if err != nil {
		return nil, fmt.Errorf("record lockout failure: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*Record, error) {
	query := `
		SELECT identifier, failed_attempts, last_attempt_at, locked_until
		FROM lockout_records
		WHERE identifier = $1
	`
	record, err := scanRecord(s.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lockout record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO lockout_records (identifier, failed_attempts, last_attempt_at, locked_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			last_attempt_at = EXCLUDED.last_attempt_at,
			locked_until    = EXCLUDED.locked_until
	`
	_, err := s.pool.Exec(ctx, query,
		record.Identifier,
		record.FailedAttempts,
		record.LastAttemptAt,
		record.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("update lockout record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, identifier string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lockout_records WHERE identifier = $1`, identifier)
	if err != nil {
		return fmt.Errorf("clear lockout record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lockout_records WHERE last_attempt_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale lockout records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var record Record
	if err := row.Scan(&record.Identifier, &record.FailedAttempts, &record.LastAttemptAt, &record.LockedUntil); err != nil {
		return nil, err
	}
	return &record, nil
}

// Package archive pulls metering data from a DCS server and persists it
// into PostgreSQL for local analysis.
//
// Architecture:
//   - Repository abstracts the storage layer (PostgreSQL via lib/pq)
//   - Archiver drives incremental, windowed synchronisation per channel
//   - Idempotent upserts keyed on (channel, timestamp) make repeated
//     syncs of overlapping ranges safe
//
// Example usage:
//
//	repo, err := archive.NewPostgresRepo(cfg.Database.ConnString())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	arc := archive.New(session, repo, logger, opts)
//	err = arc.Sync(ctx)
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"

	"github.com/jarvisms/godcs/dcs"
)

// Repository defines the storage operations the archiver needs.
type Repository interface {
	// UpsertReadings stores a batch of readings for a channel.
	// Existing rows with the same (channel, timestamp) are overwritten,
	// so re-syncing an overlapping range updates values in place.
	UpsertReadings(ctx context.Context, channel string, readings []dcs.Reading) error

	// LatestTimestamp returns the newest stored timestamp for a channel.
	// The zero time and a nil error mean no rows exist yet.
	LatestTimestamp(ctx context.Context, channel string) (time.Time, error)

	// Close releases any resources held by the repository.
	Close() error
}

// PostgresRepo implements Repository on PostgreSQL.
type PostgresRepo struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS readings (
    channel TEXT             NOT NULL,
    ts      TIMESTAMPTZ      NOT NULL,
    value   DOUBLE PRECISION,
    status  INTEGER          NOT NULL,
    PRIMARY KEY (channel, ts)
)`

// NewPostgresRepo connects to PostgreSQL and ensures the readings
// table exists. The connection string uses lib/pq keyword=value form,
// see config.DatabaseConfig.ConnString.
func NewPostgresRepo(connStr string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create readings table: %w", err)
	}

	return &PostgresRepo{db: db}, nil
}

// SetMaxConnections caps the connection pool size.
func (r *PostgresRepo) SetMaxConnections(n int) {
	r.db.SetMaxOpenConns(n)
}

// UpsertReadings inserts a batch atomically. Either all readings are
// stored or none. NaN values are stored as SQL NULL since PostgreSQL
// double precision cannot represent them portably through lib/pq.
func (r *PostgresRepo) UpsertReadings(ctx context.Context, channel string, readings []dcs.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // rollback if not committed

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO readings (channel, ts, value, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (channel, ts)
        DO UPDATE SET value = EXCLUDED.value, status = EXCLUDED.status
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range readings {
		value := sql.NullFloat64{Float64: rec.Value, Valid: !math.IsNaN(rec.Value)}
		if _, err := stmt.ExecContext(ctx, channel, rec.Timestamp, value, rec.Status); err != nil {
			return fmt.Errorf("failed to upsert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LatestTimestamp reports the newest stored reading for a channel so
// the archiver can resume from where the previous sync stopped.
func (r *PostgresRepo) LatestTimestamp(ctx context.Context, channel string) (time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT max(ts) FROM readings WHERE channel = $1",
		channel,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.UTC(), nil
}

// Close releases all database resources.
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

// Compile-time interface implementation check
var _ Repository = (*PostgresRepo)(nil)

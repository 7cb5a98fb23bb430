// Package store persists batch history and detection matches to
// Postgres. The store is optional; the CLI runs fine without it.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hashguard/hashguard/internal/detect"
)

// Batch is one recorded run, detection or rotation.
type Batch struct {
	ID           uuid.UUID `json:"id"`
	Kind         string    `json:"kind"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	TotalHosts   int       `json:"total_hosts"`
	AliveHosts   int       `json:"alive_hosts"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
}

// Store wraps the connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects, pings, and runs the embedded migrations.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:   pool,
		logger: logger.With("component", "store"),
	}, nil
}

// runMigrations applies pending goose migrations from the embedded
// filesystem through a database/sql view of the pool.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(EmbeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveBatch inserts one batch row.
func (s *Store) SaveBatch(ctx context.Context, b Batch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, kind, started_at, completed_at, total_hosts, alive_hosts, success_count, failure_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Kind, b.StartedAt, b.CompletedAt,
		b.TotalHosts, b.AliveHosts, b.SuccessCount, b.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	s.logger.Debug("batch saved", "batch_id", b.ID, "kind", b.Kind)
	return nil
}

// InsertEvents bulk-inserts detection matches with the COPY protocol.
func (s *Store) InsertEvents(ctx context.Context, batchID uuid.UUID, events []detect.Event) error {
	if len(events) == 0 {
		return nil
	}

	copyCount, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"detection_events"},
		[]string{"batch_id", "host", "os_version", "event_time", "event_id", "message"},
		pgx.CopyFromSlice(len(events), func(i int) ([]interface{}, error) {
			e := events[i]
			return []interface{}{
				batchID, e.Host, e.OSVersion, e.Timestamp, e.EventID, e.Message,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("COPY operation failed: %w", err)
	}
	if copyCount != int64(len(events)) {
		return fmt.Errorf("COPY count mismatch: expected %d, got %d", len(events), copyCount)
	}

	s.logger.Debug("detection events stored", "batch_id", batchID, "count", len(events))
	return nil
}

// ListBatches returns the most recent batches, newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, started_at, completed_at, total_hosts, alive_hosts, success_count, failure_count
		 FROM batches ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Kind, &b.StartedAt, &b.CompletedAt,
			&b.TotalHosts, &b.AliveHosts, &b.SuccessCount, &b.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

const upsertEventSQL = `
INSERT INTO audit_events (event_id, event_time, access_key_id, username, event, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id, event_time) DO UPDATE SET
    access_key_id = EXCLUDED.access_key_id,
    username      = EXCLUDED.username,
    event         = EXCLUDED.event,
    expires_at    = EXCLUDED.expires_at,
    written_at    = now()
RETURNING (xmax <> 0) AS replaced`

// PostgresStore upserts records into the audit_events table. Postgres has no
// native row TTL, so expires_at is enforced by DeleteExpired.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to connString and pings it.
func NewPostgresStore(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Name implements Store.
func (s *PostgresStore) Name() string { return "postgres" }

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, record *models.PersistenceRecord) (Response, error) {
	if err := validate(record); err != nil {
		return Response{}, err
	}

	var replaced bool
	err := s.pool.QueryRow(ctx, upsertEventSQL,
		record.EventID,
		record.EventTime,
		record.AccessKeyID,
		record.User,
		record.Event,
		record.ExpiresAt(),
	).Scan(&replaced)
	if err != nil {
		return Response{}, fmt.Errorf("upsert event %s: %w", record.EventID, err)
	}

	return Response{Backend: s.Name(), Target: "audit_events", Key: record.Key(), Replaced: replaced}, nil
}

// DeleteExpired removes rows whose retention window has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

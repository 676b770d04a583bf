package eventlog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the processing log in PostgreSQL, keyed by the
// (event_id, event_type) primary key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed processing log.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("eventlog: pgxpool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, entry Entry) error {
	if entry.EventID == "" || entry.EventType == "" {
		return ErrInvalidEntryKey
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, status, message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (event_id, event_type)
		DO UPDATE SET status = EXCLUDED.status, message = EXCLUDED.message,
		              metadata = EXCLUDED.metadata, updated_at = now()`,
		entry.EventID, entry.EventType, string(entry.Status), entry.Message, entry.Metadata)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID, eventType string) (*Entry, error) {
	if eventID == "" || eventType == "" {
		return nil, ErrInvalidEntryKey
	}
	row := s.pool.QueryRow(ctx, `
		SELECT event_id, event_type, status, message, metadata, created_at, updated_at
		FROM webhook_events
		WHERE event_id = $1 AND event_type = $2`, eventID, eventType)

	var e Entry
	var status string
	err := row.Scan(&e.EventID, &e.EventType, &status, &e.Message, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	e.Status = Status(status)
	return &e, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, event_type, status, message, metadata, created_at, updated_at
		FROM webhook_events
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.EventID, &e.EventType, &status, &e.Message, &e.Metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return entries, nil
}

package eventlog

import (
	"context"
	"errors"
	"time"
)

// Status is the terminal or in-flight state of a processing attempt.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Entry is one row of the durable processing log. Entries are keyed by
// (EventID, EventType) and upserted last-write-wins: the log is an audit
// and idempotency aid, never the source of truth for money.
type Entry struct {
	EventID   string
	EventType string
	Status    Status
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrEntryNotFound   = errors.New("processing log entry not found")
	ErrInvalidEntryKey = errors.New("processing log entry requires event id and type")
	ErrStoreFailure    = errors.New("processing log store failure")
)

// Store persists processing log entries.
type Store interface {
	// Upsert records the entry, replacing any prior row with the same
	// (event id, event type) key.
	Upsert(ctx context.Context, entry Entry) error

	// Get returns the entry for the key, or ErrEntryNotFound.
	Get(ctx context.Context, eventID, eventType string) (*Entry, error)

	// Recent returns the newest entries, most recently updated first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

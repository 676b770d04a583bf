package eventlog_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/pg"
)

func setupPostgresStore(t *testing.T) *eventlog.PostgresStore {
	t.Helper()

	connURL := os.Getenv("POSTGRES_TEST_URL")
	if connURL == "" {
		t.Skip("POSTGRES_TEST_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: connURL,
		MaxOpenConns:     5,
		RetryAttempts:    1,
		MigrationsPath:   "../../migrations",
		MigrationsTable:  "schema_migrations",
	}

	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, slog.New(slog.DiscardHandler)))
	return eventlog.NewPostgresStore(pool)
}

func TestPostgresStore_UpsertReplacesByKey(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	eventID := "evt_" + uuid.NewString()

	require.NoError(t, store.Upsert(ctx, eventlog.Entry{
		EventID:   eventID,
		EventType: "checkout.session.completed",
		Status:    eventlog.StatusProcessing,
		Message:   "received",
		Metadata:  map[string]string{"user_id": uuid.NewString()},
	}))

	require.NoError(t, store.Upsert(ctx, eventlog.Entry{
		EventID:   eventID,
		EventType: "checkout.session.completed",
		Status:    eventlog.StatusSuccess,
		Message:   "processed: credited 10",
	}))

	entry, err := store.Get(ctx, eventID, "checkout.session.completed")
	require.NoError(t, err)
	assert.Equal(t, eventlog.StatusSuccess, entry.Status)
	assert.Equal(t, "processed: credited 10", entry.Message)
	assert.True(t, entry.UpdatedAt.After(entry.CreatedAt) || entry.UpdatedAt.Equal(entry.CreatedAt))
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store := setupPostgresStore(t)

	_, err := store.Get(context.Background(), "evt_"+uuid.NewString(), "checkout.session.completed")
	assert.ErrorIs(t, err, eventlog.ErrEntryNotFound)
}

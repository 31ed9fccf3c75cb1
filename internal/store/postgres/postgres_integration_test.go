package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mindatlas/backend/internal/outbox"
)

// setupIntegrationDB starts a Postgres testcontainer, applies the embedded
// migrations, and hands the caller a ready *Store. Each test gets its own
// container: the outbox tables are small and the container boot dwarfs any
// savings from sharing one across tests in this package.
func setupIntegrationDB(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("mindatlas_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("skipping: failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, Migrate(st.DB()))

	return st
}

func insertTestEntry(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	var typeID uuid.UUID
	require.NoError(t, db.QueryRow(`
		INSERT INTO entry_types (code, name) VALUES ('note', 'Note') RETURNING id
	`).Scan(&typeID))

	var entryID uuid.UUID
	require.NoError(t, db.QueryRow(`
		INSERT INTO entries (title, type_id) VALUES ('test entry', $1) RETURNING id
	`, typeID).Scan(&entryID))
	return entryID
}

func TestEntryOutboxRepo_EnqueueUpsert_Coalesces(t *testing.T) {
	st := setupIntegrationDB(t)
	ctx := context.Background()
	repo := st.EntryOutbox
	entryID := insertTestEntry(t, st.DB())

	first := time.Now().Add(-time.Hour)
	require.NoError(t, repo.EnqueueUpsert(ctx, entryID, first))

	second := time.Now()
	require.NoError(t, repo.EnqueueUpsert(ctx, entryID, second))

	var count int
	require.NoError(t, st.DB().QueryRow(`SELECT count(*) FROM entry_index_outbox WHERE entry_id = $1`, entryID).Scan(&count))
	require.Equal(t, 1, count, "a second upsert for the same entry must coalesce into the existing row")

	var storedUpdatedAt time.Time
	require.NoError(t, st.DB().QueryRow(`SELECT entry_updated_at FROM entry_index_outbox WHERE entry_id = $1`, entryID).Scan(&storedUpdatedAt))
	require.WithinDuration(t, second, storedUpdatedAt, time.Second, "coalescing must advance entry_updated_at to the latest value")
}

func TestEntryOutboxRepo_ClaimBatch_LeasesRows(t *testing.T) {
	st := setupIntegrationDB(t)
	ctx := context.Background()
	repo := st.EntryOutbox
	entryID := insertTestEntry(t, st.DB())

	require.NoError(t, repo.EnqueueUpsert(ctx, entryID, time.Now()))

	claimed, err := repo.ClaimBatch(ctx, "worker-1", 10, time.Minute, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, entryID, claimed[0].EntryID)
	require.Equal(t, outbox.StatusProcessing, claimed[0].Status)
	require.Equal(t, 1, claimed[0].Attempts)

	// A second claim before the lease expires must see nothing: the row is
	// locked to worker-1.
	againClaimed, err := repo.ClaimBatch(ctx, "worker-2", 10, time.Minute, 5)
	require.NoError(t, err)
	require.Empty(t, againClaimed)

	require.NoError(t, repo.MarkSucceeded(ctx, claimed[0].ID, "worker-1"))

	var status string
	require.NoError(t, st.DB().QueryRow(`SELECT status FROM entry_index_outbox WHERE id = $1`, claimed[0].ID).Scan(&status))
	require.Equal(t, string(outbox.StatusSucceeded), status)
}

func TestEntryOutboxRepo_ClaimBatch_ReclaimsExpiredLease(t *testing.T) {
	st := setupIntegrationDB(t)
	ctx := context.Background()
	repo := st.EntryOutbox
	entryID := insertTestEntry(t, st.DB())

	require.NoError(t, repo.EnqueueUpsert(ctx, entryID, time.Now()))

	first, err := repo.ClaimBatch(ctx, "worker-1", 10, time.Millisecond, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(50 * time.Millisecond)

	second, err := repo.ClaimBatch(ctx, "worker-2", 10, time.Millisecond, 5)
	require.NoError(t, err)
	require.Len(t, second, 1, "an expired lease must be reclaimable by another worker")
	require.Equal(t, 2, second[0].Attempts)
}

func TestEntryOutboxRepo_MarkRetry_ReturnsToPending(t *testing.T) {
	st := setupIntegrationDB(t)
	ctx := context.Background()
	repo := st.EntryOutbox
	entryID := insertTestEntry(t, st.DB())

	require.NoError(t, repo.EnqueueUpsert(ctx, entryID, time.Now()))
	claimed, err := repo.ClaimBatch(ctx, "worker-1", 10, time.Minute, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	retryAt := time.Now().Add(-time.Second)
	require.NoError(t, repo.MarkRetry(ctx, claimed[0].ID, "worker-1", retryAt, "sidecar unreachable"))

	reclaimed, err := repo.ClaimBatch(ctx, "worker-2", 10, time.Minute, 5)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1, "a retried row must become claimable again once available_at has passed")
	require.Equal(t, fmt.Sprintf("%d", claimed[0].ID), fmt.Sprintf("%d", reclaimed[0].ID))
}

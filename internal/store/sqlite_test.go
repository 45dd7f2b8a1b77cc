package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadSyncState_MissingOwnerIsZero(t *testing.T) {
	s := newTestStore(t)

	lastSyncAt, count, err := s.LoadSyncState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, lastSyncAt)
	assert.Zero(t, count)
}

func TestRecordSyncCompletion_IncrementsAcrossCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	count, err := s.RecordSyncCompletion(ctx, "o1", first)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	second := first.Add(time.Hour)
	count, err = s.RecordSyncCompletion(ctx, "o1", second)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	lastSyncAt, loaded, err := s.LoadSyncState(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	require.NotNil(t, lastSyncAt)
	assert.True(t, lastSyncAt.Equal(second), "want %v, got %v", second, lastSyncAt)
}

func TestRecordSyncCompletion_OwnersAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.RecordSyncCompletion(ctx, "o1", now)
	require.NoError(t, err)
	_, err = s.RecordSyncCompletion(ctx, "o1", now)
	require.NoError(t, err)

	count, err := s.RecordSyncCompletion(ctx, "o2", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCountersSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.RecordSyncCompletion(ctx, "o1", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, count, err := reopened.LoadSyncState(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "counters must survive restarts")
}

func TestAppendMessageBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessageBatch(ctx, "o1", 5, time.Now()))
	require.NoError(t, s.AppendMessageBatch(ctx, "o1", 3, time.Now()))

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(message_count), 0) FROM message_batches WHERE owner_id = ?`, "o1",
	).Scan(&total)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
}

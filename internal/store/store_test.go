package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/model"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "irontrack.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestLoadAllDataDefaultsToFreshSnapshot(t *testing.T) {
	db, _ := openTestDB(t)

	s, err := db.LoadAllData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.NewSnapshot(), s)
	assert.Equal(t, "sqlite", db.Dialect())
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db, path := openTestDB(t)

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := model.NewSnapshot()
	s.Tasks = append(s.Tasks, model.NewTask("t1", "", "Buy milk", now))
	s.Delete(model.KindNote, "n1", now)
	require.NoError(t, db.SaveAllData(ctx, s))
	require.NoError(t, db.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestQueueLogsAreKeyedByName(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	ops := []model.QueuedOperation{{
		ID:         "op-1",
		Type:       model.OpCreate,
		Resource:   "tasks",
		Endpoint:   "/api/tasks",
		Method:     "POST",
		Payload:    json.RawMessage(`{"id":"t1"}`),
		MaxRetries: 3,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, db.SaveQueue(ctx, "default", ops))

	got, err := db.LoadQueue(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, ops, got)

	other, err := db.LoadQueue(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, db.SaveQueue(ctx, "default", nil))
	got, err = db.LoadQueue(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCorruptSnapshotIsSerializationError(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	_, err := db.ExecContext(ctx, db.dialect.put, SnapshotName, "{not json", time.Now())
	require.NoError(t, err)

	_, err = db.LoadAllData(ctx)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeSerialization))
}

func TestOpenLocalIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irontrack.db")

	first, err := OpenLocal(path)
	require.NoError(t, err)

	_, err = OpenLocal(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	second, err := OpenLocal(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("IRONTRACK_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("IRONTRACK_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	db, err := Open(dsn)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "postgres", db.Dialect())

	s := model.NewSnapshot()
	s.Notes = append(s.Notes, model.Note{Meta: model.Meta{ID: "n1"}, Title: "hello"})
	require.NoError(t, db.SaveAllData(ctx, s))

	got, err := db.LoadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Notes, got.Notes)
}

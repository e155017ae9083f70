package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/model"
	"github.com/existflow/irontrack/internal/store"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, path string) *Server {
	t.Helper()
	db, err := store.OpenSQLite(path)
	require.NoError(t, err)
	s, err := NewWithStore(context.Background(), db, clock.NewFake(epoch.Add(time.Hour)))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) *model.Snapshot {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return &s
}

func snapshotJSON(t *testing.T, s *model.Snapshot) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPushMergesAndPullReturnsResult(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	old := model.NewTask("t1", "inbox", "Buy milk", epoch)
	old.UpdatedAt = epoch.Add(time.Minute)
	seed := model.NewSnapshot()
	seed.Tasks = []model.Task{old}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/sync", snapshotJSON(t, seed)).Code)

	done := old
	done.Done = true
	done.UpdatedAt = epoch.Add(2 * time.Minute)
	push := model.NewSnapshot()
	push.Tasks = []model.Task{done, model.NewTask("t2", "inbox", "Call mom", epoch)}
	push.Settings.Sync = &model.SyncPreferences{Role: "client", RemoteURL: "http://leak"}

	rec := do(t, s, http.MethodPost, "/api/sync", snapshotJSON(t, push))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	got := decodeSnapshot(t, do(t, s, http.MethodGet, "/api/sync", ""))
	require.Len(t, got.Tasks, 2)
	assert.True(t, got.Tasks[0].Done)
	assert.Nil(t, got.Settings.Sync)
	assert.Nil(t, s.replica.Snapshot().Settings.Sync)
}

func TestPushRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	rec := do(t, s, http.MethodPost, "/api/sync", `{"tasks": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResourceWrites(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	rec := do(t, s, http.MethodPost, "/api/tasks",
		`{"id":"t1","categoryId":"inbox","title":"Draft","updatedAt":"2024-03-01T09:05:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A replayed update older than the stored copy loses.
	rec = do(t, s, http.MethodPut, "/api/tasks/t1",
		`{"categoryId":"inbox","title":"Stale","updatedAt":"2024-03-01T09:01:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "Draft", got.Tasks[0].Title)

	rec = do(t, s, http.MethodPut, "/api/tasks/t1",
		`{"categoryId":"inbox","title":"Final","updatedAt":"2024-03-01T09:10:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	assert.Equal(t, "Final", got.Tasks[0].Title)

	rec = do(t, s, http.MethodDelete, "/api/tasks/t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","id":"t1","found":true}`, rec.Body.String())

	got = decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	assert.Empty(t, got.Tasks)
	require.Len(t, got.Tombstones, 1)
	assert.Equal(t, model.KindTask, got.Tombstones[0].EntityType)
	assert.Equal(t, epoch.Add(time.Hour), got.Tombstones[0].DeletedAt)
}

func TestResourceErrors(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/widgets", `{"id":"w"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/notes", `{"title":"no id"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/notes/n1", `nope`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/notes/n1", `null`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodDelete, "/api/notes/n1", `{"deletedAt":`).Code)
}

func TestReplayedDeleteKeepsLaterEdit(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	// Another device edited t1 after this one deleted it offline.
	rec := do(t, s, http.MethodPost, "/api/tasks",
		`{"id":"t1","categoryId":"inbox","title":"Edited","updatedAt":"2024-03-01T09:30:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodDelete, "/api/tasks/t1",
		`{"entityType":"task","id":"t1","deletedAt":"2024-03-01T09:05:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","id":"t1","found":false}`, rec.Body.String())

	got := decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "Edited", got.Tasks[0].Title)
	require.Len(t, got.Tombstones, 1)
	assert.Equal(t, epoch.Add(5*time.Minute), got.Tombstones[0].DeletedAt)

	// A delete newer than the edit removes it, stamped with the client time.
	rec = do(t, s, http.MethodDelete, "/api/tasks/t1",
		`{"entityType":"task","id":"t1","deletedAt":"2024-03-01T09:45:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","id":"t1","found":true}`, rec.Body.String())

	got = decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	assert.Empty(t, got.Tasks)
	require.Len(t, got.Tombstones, 1)
	assert.Equal(t, epoch.Add(45*time.Minute), got.Tombstones[0].DeletedAt)
}

func TestPutAllReplacesState(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "server.db"))
	defer s.Close()

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/notes", `{"id":"n1","title":"a"}`).Code)

	next := model.NewSnapshot()
	next.Habits = []model.Habit{{Meta: model.Meta{ID: "h1", UpdatedAt: epoch}}}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/all", snapshotJSON(t, next)).Code)

	got := decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	assert.Empty(t, got.Notes)
	require.Len(t, got.Habits, 1)
}

func TestStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.db")
	s := newTestServer(t, path)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/decks", `{"id":"d1","name":"Spanish"}`).Code)
	require.NoError(t, s.Close())

	s = newTestServer(t, path)
	defer s.Close()
	got := decodeSnapshot(t, do(t, s, http.MethodGet, "/api/all", ""))
	require.Len(t, got.Decks, 1)
	assert.Equal(t, "d1", got.Decks[0].ID)
}

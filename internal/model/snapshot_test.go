package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestSnapshotDecodesClientJSON(t *testing.T) {
	raw := `{
		"tasks": [{"id": "t1", "title": "Buy milk", "updatedAt": "2024-01-01T10:00:00.000Z", "categoryId": "inbox"}],
		"flashcards": [{"id": "f1", "front": "hola", "back": "hello"}],
		"tombstones": [{"entityType": "note", "id": "n1", "deletedAt": "2024-01-02T00:00:00Z"}],
		"settings": {"theme": "dark", "sync": {"role": "client", "remoteUrl": "http://srv", "intervalMinutes": 5, "enabled": true}}
	}`

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	require.Len(t, s.Tasks, 1)
	ts, ok := s.Tasks[0].Timestamp()
	assert.True(t, ok)
	assert.Equal(t, now, ts)

	_, ok = s.Flashcards[0].Timestamp()
	assert.False(t, ok, "missing updatedAt must report no timestamp")

	assert.Equal(t, "note/n1", s.Tombstones[0].Key())
	require.NotNil(t, s.Settings.Sync)
	assert.Equal(t, "client", s.Settings.Sync.Role)
}

func TestOutboundStripsSyncSettings(t *testing.T) {
	s := NewSnapshot()
	s.Settings.Sync = &SyncPreferences{Role: "client", RemoteURL: "http://srv"}

	out := s.Outbound()
	assert.Nil(t, out.Settings.Sync)
	assert.NotNil(t, s.Settings.Sync, "original must keep its sync block")

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "remoteUrl")
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSnapshot()
	s.Tasks = append(s.Tasks, NewTask("t1", "", "a", now))

	c := s.Clone()
	c.Tasks[0].Title = "changed"
	c.Tasks = append(c.Tasks, NewTask("t2", "", "b", now))

	assert.Equal(t, "a", s.Tasks[0].Title)
	assert.Len(t, s.Tasks, 1)
}

func TestUpsertJSONAndDelete(t *testing.T) {
	s := NewSnapshot()

	id, err := s.UpsertJSON(KindNote, []byte(`{"id":"n1","title":"first"}`))
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	_, err = s.UpsertJSON(KindNote, []byte(`{"id":"n1","title":"second"}`))
	require.NoError(t, err)
	require.Len(t, s.Notes, 1)
	assert.Equal(t, "second", s.Notes[0].Title)

	_, err = s.UpsertJSON(KindNote, []byte(`{"title":"no id"}`))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = s.UpsertJSON(KindNote, []byte(`{`))
	assert.Error(t, err)

	assert.True(t, s.Delete(KindNote, "n1", now))
	assert.Empty(t, s.Notes)
	require.Len(t, s.Tombstones, 1)
	assert.Equal(t, NewTombstone(KindNote, "n1", now), s.Tombstones[0])

	assert.False(t, s.Delete(KindNote, "missing", now))
	assert.Len(t, s.Tombstones, 2, "deleting an unknown id still records a tombstone")
}

func TestKindForResource(t *testing.T) {
	k, ok := KindForResource("workdays")
	assert.True(t, ok)
	assert.Equal(t, KindWorkDay, k)

	k, ok = KindForResource("task")
	assert.True(t, ok)
	assert.Equal(t, KindTask, k)

	_, ok = KindForResource("users")
	assert.False(t, ok)

	for _, k := range Kinds {
		assert.True(t, k.Valid())
		assert.NotEmpty(t, k.Resource())
	}
}

func TestTaskDue(t *testing.T) {
	task := NewTask("t1", "", "x", now)
	assert.Equal(t, DefaultCategoryID, task.CategoryID)
	assert.False(t, task.IsDue(now))

	yesterday := now.Add(-24 * time.Hour)
	task.DueDate = &yesterday
	assert.True(t, task.IsDue(now))
	assert.True(t, task.IsOverdue(now))

	later := now.Add(2 * time.Hour)
	task.DueDate = &later
	assert.True(t, task.IsDue(now))
	assert.False(t, task.IsOverdue(now))
}

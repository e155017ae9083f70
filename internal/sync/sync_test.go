package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/config"
	"github.com/existflow/irontrack/internal/merge"
	"github.com/existflow/irontrack/internal/model"
	"github.com/existflow/irontrack/internal/replica"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// hub is a minimal in-memory sync server.
type hub struct {
	mu     gosync.Mutex
	state  *model.Snapshot
	pushes int
	status int
}

func newHub(t *testing.T, state *model.Snapshot) (*hub, *httptest.Server) {
	h := &hub{state: state}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.status != 0 {
			http.Error(w, "unavailable", h.status)
			return
		}
		switch r.Method {
		case http.MethodPost:
			var in model.Snapshot
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.pushes++
			h.state = merge.Reconcile(h.state, &in)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(h.state)
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

type memStore struct {
	mu   gosync.Mutex
	snap *model.Snapshot
}

func (m *memStore) LoadAllData(context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return model.NewSnapshot(), nil
	}
	return m.snap.Clone(), nil
}

func (m *memStore) SaveAllData(_ context.Context, s *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s.Clone()
	return nil
}

func clientConfig(url string) config.SyncConfig {
	return config.SyncConfig{Role: config.RoleClient, RemoteURL: url, IntervalMinutes: 5, Enabled: true}
}

func newReplica(t *testing.T, fake clock.Clock) (*replica.Replica, *memStore) {
	store := &memStore{}
	r, err := replica.Open(context.Background(), store, replica.Options{Clock: fake})
	require.NoError(t, err)
	return r, store
}

func TestSyncNowBuyMilk(t *testing.T) {
	fake := clock.NewFake(epoch)

	serverTask := model.NewTask("t1", model.DefaultCategoryID, "Buy milk", epoch)
	serverTask.UpdatedAt = epoch.Add(time.Minute)
	serverState := model.NewSnapshot()
	serverState.Tasks = []model.Task{serverTask}
	serverState.Settings.Sync = &model.SyncPreferences{Role: "server"}
	h, srv := newHub(t, serverState)

	local, store := newReplica(t, fake)
	clientTask := serverTask
	clientTask.Done = true
	clientTask.UpdatedAt = epoch.Add(2 * time.Minute)
	require.NoError(t, local.Mutate(func(s *model.Snapshot) error {
		s.Tasks = []model.Task{clientTask}
		s.Settings.Sync = &model.SyncPreferences{Role: "client", RemoteURL: srv.URL, Enabled: true}
		return nil
	}))

	c, err := NewCoordinator(clientConfig(srv.URL), NewClient(""), local, fake)
	require.NoError(t, err)
	require.NoError(t, c.SyncNow(context.Background()))

	snap := local.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.True(t, snap.Tasks[0].Done)
	assert.Equal(t, "client", snap.Settings.Sync.Role)

	h.mu.Lock()
	require.Len(t, h.state.Tasks, 1)
	assert.True(t, h.state.Tasks[0].Done)
	assert.Equal(t, "server", h.state.Settings.Sync.Role)
	h.mu.Unlock()

	saved, _ := store.LoadAllData(context.Background())
	assert.True(t, saved.Tasks[0].Done)

	st := c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, StateSuccess, st.LastResult)
	assert.Equal(t, epoch, st.LastSyncTime)
	assert.Zero(t, st.ConsecutiveFailures)
}

func TestSyncNowDeleteOnServerWins(t *testing.T) {
	fake := clock.NewFake(epoch)
	task := model.NewTask("t1", "inbox", "Old", epoch)

	serverState := model.NewSnapshot()
	serverState.Tombstones = []model.Tombstone{model.NewTombstone(model.KindTask, "t1", epoch.Add(time.Minute))}
	_, srv := newHub(t, serverState)

	local, _ := newReplica(t, fake)
	require.NoError(t, local.Mutate(func(s *model.Snapshot) error {
		s.Tasks = []model.Task{task}
		return nil
	}))

	c, err := NewCoordinator(clientConfig(srv.URL), NewClient(srv.URL), local, fake)
	require.NoError(t, err)
	require.NoError(t, c.SyncNow(context.Background()))

	snap := local.Snapshot()
	assert.Empty(t, snap.Tasks)
	assert.Len(t, snap.Tombstones, 1)
}

func TestHTTPFailureIsRecorded(t *testing.T) {
	fake := clock.NewFake(epoch)
	h, srv := newHub(t, model.NewSnapshot())
	h.status = http.StatusServiceUnavailable
	local, _ := newReplica(t, fake)

	c, err := NewCoordinator(clientConfig(srv.URL), NewClient(srv.URL), local, fake)
	require.NoError(t, err)

	err = c.SyncNow(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeHTTP))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusCode(err))

	err = c.SyncNow(context.Background())
	require.Error(t, err)

	st := c.Status()
	assert.Equal(t, StateFailed, st.LastResult)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.NotEmpty(t, st.LastSyncError)
	assert.Equal(t, epoch, st.LastAttemptTime)
	assert.True(t, st.LastSyncTime.IsZero())
}

func TestNetworkFailureIsRecorded(t *testing.T) {
	fake := clock.NewFake(epoch)
	_, srv := newHub(t, model.NewSnapshot())
	url := srv.URL
	srv.Close()
	local, _ := newReplica(t, fake)

	c, err := NewCoordinator(clientConfig(url), NewClient(url), local, fake)
	require.NoError(t, err)

	err = c.SyncNow(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNetwork))
	assert.Equal(t, 1, c.Status().ConsecutiveFailures)
}

func TestServerRoleAndDisabledNeverSync(t *testing.T) {
	fake := clock.NewFake(epoch)
	remote := newSlowRemote()
	local, _ := newReplica(t, fake)

	cfg := clientConfig("http://hub")
	cfg.Role = config.RoleServer
	c, err := NewCoordinator(cfg, remote, local, fake)
	require.NoError(t, err)
	c.Start(context.Background())
	defer c.Stop()

	assert.ErrorIs(t, c.SyncNow(context.Background()), apperr.ErrNotClient)
	assert.False(t, c.Status().Scheduled)

	cfg.Role = config.RoleClient
	cfg.Enabled = false
	require.NoError(t, c.UpdateConfig(cfg))
	assert.ErrorIs(t, c.SyncNow(context.Background()), apperr.ErrDisabled)
	assert.False(t, c.Status().Scheduled)
	c.Trigger()

	fake.Advance(time.Hour)
	assert.Zero(t, remote.pushCount())
	assert.Zero(t, fake.Pending())
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	fake := clock.NewFake(epoch)
	local, _ := newReplica(t, fake)
	remote := newSlowRemote()
	c, err := NewCoordinator(clientConfig("hub.local/"), remote, local, fake)
	require.NoError(t, err)
	assert.Equal(t, "http://hub.local", c.Config().RemoteURL)
	assert.Equal(t, "http://hub.local", remote.baseURL())

	bad := clientConfig("http://hub.local")
	bad.Role = "peer"
	err = c.UpdateConfig(bad)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfigInvalid))
	assert.Equal(t, config.RoleClient, c.Config().Role)
}

// slowRemote blocks each push until released.
type slowRemote struct {
	mu      gosync.Mutex
	pushes  int
	url     string
	entered chan struct{}
	release chan struct{}
	pullHit func()
	block   bool
}

func newSlowRemote() *slowRemote {
	return &slowRemote{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *slowRemote) PushSnapshot(ctx context.Context, _ *model.Snapshot) error {
	s.mu.Lock()
	s.pushes++
	block := s.block
	s.mu.Unlock()
	s.entered <- struct{}{}
	if block {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *slowRemote) PullSnapshot(context.Context) (*model.Snapshot, error) {
	if s.pullHit != nil {
		s.pullHit()
	}
	remote := model.NewSnapshot()
	remote.Notes = []model.Note{{Meta: model.Meta{ID: "from-server", UpdatedAt: epoch}}}
	return remote, nil
}

func (s *slowRemote) SetBaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

func (s *slowRemote) baseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *slowRemote) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

func waitEntered(t *testing.T, s *slowRemote) {
	t.Helper()
	select {
	case <-s.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("push not started")
	}
}

func TestTimerRunsCyclesWithoutOverlap(t *testing.T) {
	fake := clock.NewFake(epoch)
	remote := newSlowRemote()
	remote.block = true
	local, _ := newReplica(t, fake)

	c, err := NewCoordinator(clientConfig("http://hub"), remote, local, fake)
	require.NoError(t, err)
	c.Start(context.Background())
	defer c.Stop()
	require.True(t, c.Status().Scheduled)

	fake.Advance(5 * time.Minute)
	waitEntered(t, remote)
	assert.Equal(t, StateSyncing, c.Status().State)

	assert.ErrorIs(t, c.SyncNow(context.Background()), apperr.ErrSyncInProgress)

	fake.Advance(5 * time.Minute)
	require.Eventually(t, func() bool { return c.Status().Skipped == 1 }, 5*time.Second, 5*time.Millisecond)
	c.Trigger()
	assert.Equal(t, 2, c.Status().Skipped)

	close(remote.release)
	require.Eventually(t, func() bool { return c.Status().LastResult == StateSuccess }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, remote.pushCount())
	assert.Len(t, local.Snapshot().Notes, 1)

	// The next tick starts a fresh cycle.
	fake.Advance(5 * time.Minute)
	waitEntered(t, remote)
	require.Eventually(t, func() bool { return c.Status().State == StateIdle }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, remote.pushCount())
}

func TestUpdateConfigCancelsPendingTimer(t *testing.T) {
	fake := clock.NewFake(epoch)
	remote := newSlowRemote()
	local, _ := newReplica(t, fake)

	c, err := NewCoordinator(clientConfig("http://hub"), remote, local, fake)
	require.NoError(t, err)
	c.Start(context.Background())
	defer c.Stop()

	fake.Advance(4 * time.Minute)
	cfg := clientConfig("http://hub")
	cfg.IntervalMinutes = 10
	require.NoError(t, c.UpdateConfig(cfg))
	assert.Equal(t, 1, fake.Pending())

	// The old 5 minute deadline passes without a cycle.
	fake.Advance(6 * time.Minute)
	assert.Never(t, func() bool { return remote.pushCount() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	fake.Advance(4 * time.Minute)
	waitEntered(t, remote)
	assert.Equal(t, 1, remote.pushCount())

	cfg.Enabled = false
	require.NoError(t, c.UpdateConfig(cfg))
	assert.Zero(t, fake.Pending())
}

func TestRoleChangeDiscardsPulledSnapshot(t *testing.T) {
	fake := clock.NewFake(epoch)
	remote := newSlowRemote()
	local, _ := newReplica(t, fake)

	c, err := NewCoordinator(clientConfig("http://hub"), remote, local, fake)
	require.NoError(t, err)

	remote.pullHit = func() {
		cfg := clientConfig("http://hub")
		cfg.Role = config.RoleServer
		require.NoError(t, c.UpdateConfig(cfg))
	}

	err = c.SyncNow(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrNotClient))
	assert.Empty(t, local.Snapshot().Notes)
	assert.Equal(t, StateIdle, c.Status().State)
	assert.Zero(t, c.Status().ConsecutiveFailures)
}

// gatedLocal holds MergeRemote until released.
type gatedLocal struct {
	Local
	merging chan struct{}
	release chan struct{}
}

func (g *gatedLocal) MergeRemote(ctx context.Context, remote *model.Snapshot) (*model.Snapshot, error) {
	close(g.merging)
	<-g.release
	return g.Local.MergeRemote(ctx, remote)
}

func TestRoleChangeWaitsForMerge(t *testing.T) {
	fake := clock.NewFake(epoch)
	remote := newSlowRemote()
	r, _ := newReplica(t, fake)
	local := &gatedLocal{Local: r, merging: make(chan struct{}), release: make(chan struct{})}

	c, err := NewCoordinator(clientConfig("http://hub"), remote, local, fake)
	require.NoError(t, err)

	synced := make(chan error, 1)
	go func() { synced <- c.SyncNow(context.Background()) }()
	<-local.merging

	updated := make(chan error, 1)
	go func() {
		cfg := clientConfig("http://hub")
		cfg.Role = config.RoleServer
		updated <- c.UpdateConfig(cfg)
	}()

	assert.Never(t, func() bool { return len(updated) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	close(local.release)
	require.NoError(t, <-synced)
	require.NoError(t, <-updated)
	assert.Len(t, r.Snapshot().Notes, 1)
	assert.Equal(t, config.RoleServer, c.Config().Role)
}

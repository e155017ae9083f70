package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/irontrack/internal/apperr"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"example.com", "http://example.com"},
		{" https://example.com/ ", "https://example.com"},
		{"http://10.0.0.2:8080//", "http://10.0.0.2:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "input %q", tt.in)
	}
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, RoleClient, cfg.Sync.Role)
	assert.Equal(t, 5, cfg.Sync.IntervalMinutes)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
}

func TestLoadFileNormalizesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  role: Client
  remote_url: "sync.local:8080/"
  interval_minutes: 10
  enabled: true
queue:
  debounce: 500ms
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "client", cfg.Sync.Role)
	assert.Equal(t, "http://sync.local:8080", cfg.Sync.RemoteURL)
	assert.Equal(t, 10*time.Minute, cfg.Sync.Interval())
	assert.True(t, cfg.Sync.Active())
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.Debounce)
}

func TestLoadFileRejectsBadRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  role: peer\n"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfigInvalid))
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("IRONTRACK_SYNC_ROLE", "server")
	t.Setenv("IRONTRACK_SYNC_ENABLED", "true")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, RoleServer, cfg.Sync.Role)
	assert.True(t, cfg.Sync.Enabled)
	assert.False(t, cfg.Sync.Active())
}

func TestEnabledClientRequiresRemote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfigInvalid))
}

func TestSetKeepsConfigOnError(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Set("sync.remote_url", "example.com/"))
	assert.Equal(t, "http://example.com", cfg.Sync.RemoteURL)

	require.Error(t, cfg.Set("sync.role", "peer"))
	assert.Equal(t, RoleClient, cfg.Sync.Role)

	require.Error(t, cfg.Set("sync.remote_url", "ftp://example.com"))
	assert.Equal(t, "http://example.com", cfg.Sync.RemoteURL)

	require.Error(t, cfg.Set("nope", "1"))
	assert.Contains(t, Keys(), "queue.backoff_max")
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Set("sync.interval_minutes", "15"))
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 15, loaded.Sync.IntervalMinutes)
	assert.Equal(t, cfg.Queue, loaded.Queue)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().SaveFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.Sync.IntervalMinutes = 42
	require.NoError(t, cfg.SaveFile(path))

	select {
	case got := <-changes:
		assert.Equal(t, 42, got.Sync.IntervalMinutes)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}

	cancel()
	require.NoError(t, <-done)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.IntervalMinutes)
	assert.Equal(t, 10, cfg.CycleTimeoutSeconds)
	assert.Equal(t, 30, cfg.MinLoginDelaySeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Store.Enabled)
	assert.Empty(t, cfg.Accounts)
}

func TestLoadFromFillsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"interval_minutes": 5,
		"accounts": [{"username": "alice@example.com", "password": "secret", "contracts": ["123456789"]}]
	}`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, 10*time.Second, cfg.CycleTimeout())
	assert.Equal(t, 30*time.Second, cfg.MinLoginDelay())
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, []string{"123456789"}, cfg.Accounts[0].Contracts)
}

func TestLoadFromMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	want := DefaultConfig()
	want.Accounts = []AccountConfig{{Username: "alice@example.com", Password: "secret"}}
	require.NoError(t, SaveTo(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, want.Accounts, got.Accounts)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, SaveTo(path, DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	go func() {
		_ = Watch(ctx, path, zerolog.Nop(), func(cfg Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before touching the file.
	time.Sleep(100 * time.Millisecond)

	updated := DefaultConfig()
	updated.IntervalMinutes = 42
	require.NoError(t, SaveTo(path, updated))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 42, cfg.IntervalMinutes)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.ini")

	s, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Minecraft.MaxMemoryLimit, s.GetClientConfig().Minecraft.MaxMemoryLimit)

	// A second store opened at the same path should load what was saved.
	s2, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, s.GetClientConfig(), s2.GetClientConfig())
}

func TestUpdateClientConfigIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.ini")
	s, err := NewStore(path)
	require.NoError(t, err)

	s.UpdateClientConfig(func(cfg *LauncherConfig) {
		cfg.Minecraft.PlayerName = "Steve"
		cfg.Net.Thread = 16
	})

	got := s.GetClientConfig()
	assert.Equal(t, "Steve", got.Minecraft.PlayerName)
	assert.Equal(t, 16, got.Net.Thread)
}

func TestPersistRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launcher.ini")
	s, err := NewStore(path)
	require.NoError(t, err)

	s.UpdateClientConfig(func(cfg *LauncherConfig) {
		cfg.Main.Language = "ja"
		cfg.Dev.TLS = true
	})
	require.NoError(t, s.Persist())

	var reloaded Store
	require.NoError(t, reloaded.Load(path))
	got := reloaded.GetClientConfig()
	assert.Equal(t, "ja", got.Main.Language)
	assert.True(t, got.Dev.TLS)
}

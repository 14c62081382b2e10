package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekolauncher/internal/assets"
	"nekolauncher/internal/pool"
)

const stateTestManifest = `{
  "mainClass": "net.minecraft.client.main.Main",
  "assetIndex": {"id": "1.20", "url": "https://example.invalid/assets.json"},
  "arguments": {
    "jvm": ["-Djava.library.path=${natives_directory}"],
    "game": ["--username", "${auth_player_name}"]
  },
  "libraries": []
}`

func writeStateManifest(t *testing.T, gameDir, version string) {
	t.Helper()
	dir := filepath.Join(gameDir, "versions", version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, version+".json"), []byte(stateTestManifest), 0o644))
}

func testPipeline(t *testing.T) *assets.Pipeline {
	t.Helper()
	p := pool.New(nil, 2)
	t.Cleanup(func() { p.Stop(true) })
	return &assets.Pipeline{Pool: p}
}

func TestRunFullHappyPath(t *testing.T) {
	gameDir := t.TempDir()
	writeStateManifest(t, gameDir, "1.20")

	cfg := baseConfig()
	cfg.GameDir = gameDir
	cfg.Version = "1.20"

	var spawnedCommand []string
	var capturedOnExit func(code int)
	spawn := func(ctx context.Context, command []string, workingDir string, onExit func(code int)) error {
		spawnedCommand = command
		capturedOnExit = onExit
		assert.Equal(t, gameDir, workingDir)
		return nil
	}

	attempt := Run(context.Background(), testPipeline(t), cfg, assets.CurrentPlatform("linux", "amd64", ""), "ua", nil, spawn, nil)
	require.NoError(t, attempt.Err())
	assert.Equal(t, Spawned, attempt.State())
	assert.NotEmpty(t, attempt.Command())
	assert.Equal(t, attempt.Command(), spawnedCommand)

	require.NotNil(t, capturedOnExit, "Run must pass a non-nil onExit to the Spawner")
	capturedOnExit(0)
	assert.Equal(t, Exited, attempt.State())
	assert.Equal(t, 0, attempt.ExitCode())
}

func TestRunFailsValidationOnMissingFields(t *testing.T) {
	cfg := Config{}
	attempt := Run(context.Background(), testPipeline(t), cfg, assets.Platform{}, "ua", nil, nil, nil)
	assert.ErrorIs(t, attempt.Err(), ErrInvalidArgument)
	assert.Equal(t, Validating, attempt.State())
}

func TestRunPropagatesManifestError(t *testing.T) {
	gameDir := t.TempDir()
	cfg := baseConfig()
	cfg.GameDir = gameDir
	cfg.Version = "missing-version"

	attempt := Run(context.Background(), testPipeline(t), cfg, assets.CurrentPlatform("linux", "amd64", ""), "ua", nil, nil, nil)
	assert.ErrorIs(t, attempt.Err(), assets.ErrManifestInvalid)
	assert.Equal(t, Downloading, attempt.State())
}

func TestRunSpawnErrorIsFatal(t *testing.T) {
	gameDir := t.TempDir()
	writeStateManifest(t, gameDir, "1.20")

	cfg := baseConfig()
	cfg.GameDir = gameDir
	cfg.Version = "1.20"

	boom := errors.New("boom")
	spawn := func(ctx context.Context, command []string, workingDir string, onExit func(code int)) error { return boom }

	attempt := Run(context.Background(), testPipeline(t), cfg, assets.CurrentPlatform("linux", "amd64", ""), "ua", nil, spawn, nil)
	require.Error(t, attempt.Err())
	assert.Equal(t, Assembling, attempt.State(), "a failed spawn leaves the attempt short of Spawned")
}

func TestAttemptMarkExited(t *testing.T) {
	a := newAttempt(nil)
	a.MarkExited(137)
	assert.Equal(t, Exited, a.State())
	assert.Equal(t, 137, a.ExitCode())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Downloading", Downloading.String())
	assert.Equal(t, "Unknown", State(99).String())
}

package assets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
	"mainClass": "net.minecraft.client.main.Main",
	"assetIndex": {"id": "17", "url": "https://example.com/17.json"},
	"arguments": {
		"jvm": ["-Xmx2G", {"value": ["-Dos.name=Windows"], "rules": [{"action": "allow", "os": {"name": "windows"}}]}],
		"game": ["--username", {"value": "${auth_player_name}"}]
	},
	"libraries": [
		{
			"name": "org.lwjgl:lwjgl:3.3.1",
			"downloads": {
				"artifact": {"path": "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar", "url": "https://example.com/lwjgl.jar", "sha1": "abc123", "size": 100},
				"classifiers": {
					"natives-linux": {"path": "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar", "url": "https://example.com/lwjgl-natives.jar", "sha1": "def456", "size": 50}
				}
			},
			"natives": {"linux": "natives-linux"}
		}
	]
}`

func writeManifest(t *testing.T, gameDir, version, content string) {
	t.Helper()
	dir := filepath.Join(gameDir, "versions", version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, version+".json"), []byte(content), 0o644))
}

func TestLoadVersionManifestParsesFields(t *testing.T) {
	gameDir := t.TempDir()
	writeManifest(t, gameDir, "1.20", sampleManifest)

	m, err := LoadVersionManifest(gameDir, "1.20")
	require.NoError(t, err)
	assert.Equal(t, "net.minecraft.client.main.Main", m.MainClass)
	assert.Equal(t, "17", m.AssetIndex.ID)
	require.Len(t, m.Libraries, 1)
	assert.Equal(t, "org.lwjgl:lwjgl:3.3.1", m.Libraries[0].Name)
	assert.Equal(t, "natives-linux", m.Libraries[0].Natives["linux"])
	require.Len(t, m.Arguments.Game, 2)
}

func TestLoadVersionManifestIsStructurallyDeterministic(t *testing.T) {
	gameDirA, gameDirB := t.TempDir(), t.TempDir()
	writeManifest(t, gameDirA, "1.20", sampleManifest)
	writeManifest(t, gameDirB, "1.20", sampleManifest)

	a, err := LoadVersionManifest(gameDirA, "1.20")
	require.NoError(t, err)
	b, err := LoadVersionManifest(gameDirB, "1.20")
	require.NoError(t, err)

	// go-cmp gives a field-path diff on slices of structs (libraries,
	// arguments) that testify's assert.Equal only reports as "not equal".
	assert.Empty(t, cmp.Diff(a, b), "two manifests parsed from identical JSON must be structurally equal")
}

func TestLoadVersionManifestMissingFileIsManifestInvalid(t *testing.T) {
	_, err := LoadVersionManifest(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrManifestInvalid)
}

func TestLoadVersionManifestBadJSONIsManifestInvalid(t *testing.T) {
	gameDir := t.TempDir()
	writeManifest(t, gameDir, "bad", "{not json")

	_, err := LoadVersionManifest(gameDir, "bad")
	assert.ErrorIs(t, err, ErrManifestInvalid)
}

func TestLoadVersionManifestMissingMainClassIsKeyMissing(t *testing.T) {
	gameDir := t.TempDir()
	writeManifest(t, gameDir, "nokey", `{"assetIndex":{"id":"x","url":"y"}}`)

	_, err := LoadVersionManifest(gameDir, "nokey")
	assert.ErrorIs(t, err, ErrManifestKeyMissing)
}

func TestArgValueUnmarshalPlainString(t *testing.T) {
	var a ArgValue
	require.NoError(t, json.Unmarshal([]byte(`"--demo"`), &a))
	assert.True(t, a.IsPlain)
	assert.Equal(t, "--demo", a.Literal)
}

func TestArgValueUnmarshalConditionalSingleValue(t *testing.T) {
	var a ArgValue
	require.NoError(t, json.Unmarshal([]byte(`{"value":"${auth_uuid}","rules":[]}`), &a))
	assert.False(t, a.IsPlain)
	assert.Equal(t, []string{"${auth_uuid}"}, a.Value)
}

func TestArgValueUnmarshalConditionalArrayValue(t *testing.T) {
	var a ArgValue
	require.NoError(t, json.Unmarshal([]byte(`{"value":["--a","--b"],"rules":[{"action":"allow"}]}`), &a))
	require.Len(t, a.Value, 2)
	require.Len(t, a.Rules, 1)
	assert.Equal(t, "allow", a.Rules[0].Action)
}

func TestManifestPathAndLibrariesDir(t *testing.T) {
	assert.Equal(t, filepath.Join("game", "versions", "1.20", "1.20.json"), ManifestPath("game", "1.20"))
	assert.Equal(t, filepath.Join("game", "libraries"), LibrariesDir("game"))
	assert.Equal(t, filepath.Join("game", "versions", "1.20", "1.20.jar"), ClientJarPath("game", "1.20"))
}

// Package launch implements the Launch Builder (spec C8): it turns a
// resolved version (from internal/assets) and a user LaunchConfig into an
// assembled, ready-to-spawn Java command line, applying the shared rule
// engine for argument gating, a memory policy bounded by installed system
// memory, and authlib-injector provisioning.
//
// Grounded on the original getLauncherMinecraftCommand/launcherMinecraft
// in include/neko/minecraft/launcherMinecraft.hpp: the same placeholder
// table, the same calcMemoryLimits max/min clamping, the same authlib
// download-verify-persist sequence, and the same access-token redaction
// before logging.
package launch

import "errors"

// Error kinds surfaced by the launch builder, named per the error taxonomy.
var (
	ErrInsufficientMemory = errors.New("launch: insufficient system memory")
	ErrInvalidArgument    = errors.New("launch: invalid argument")
)

const (
	launcherName    = "Neko Launcher"
	launcherVersion = "1.0.0"
	versionType     = "Neko Launcher"
	userType        = "mojang"

	authlibHost          = "authlib-injector.yushi.moe"
	authlibLatestPath    = "/artifact/latest.json"
	authlibYggdrasilRoot = "/api/yggdrasil"
)

// authlibIndexURL and authlibYggdrasilURL are overridden in tests to point
// at a local server instead of the real authlib-injector index.
var (
	authlibIndexURL     = "https://" + authlibHost + authlibLatestPath
	authlibYggdrasilURL = "https://" + authlibHost + authlibYggdrasilRoot
)

// Config is the Launch Builder's input: user-chosen paths, identity,
// join-server target, memory triple, demo/resolution flags, and the
// authlib toggle, mirroring the original's LauncherMinecraftConfig.
type Config struct {
	GameDir  string
	Version  string
	JavaPath string

	PlayerName  string
	UUID        string
	AccessToken string

	JoinServerAddress string
	JoinServerPort    int

	MinGiB      int
	MaxGiB      int
	RequiredGiB int

	IsDemoUser          bool
	HasCustomResolution bool
	ResolutionWidth     string
	ResolutionHeight    string

	AuthlibEnabled    bool
	AuthlibName       string
	AuthlibSHA256     string
	AuthlibPrefetched string

	Tolerant bool
}

package launch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"nekolauncher/internal/assets"
)

// fixed JVM optimisation flags, matching the original's jvmOptimizeArguments.
var jvmOptimizationFlags = []string{
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+UseG1GC",
	"-XX:G1NewSizePercent=20",
	"-XX:G1ReservePercent=20",
	"-XX:MaxGCPauseMillis=50",
	"-Dfml.ignoreInvalidMinecraftCertificates=true",
	"-Dfml.ignorePatchDiscrepancies=true",
}

// flagSetFor derives the rule-engine FlagSet the manifest's conditional
// arguments are gated on from a launch Config.
func flagSetFor(cfg Config) assets.FlagSet {
	return assets.FlagSet{
		IsDemoUser:          cfg.IsDemoUser,
		HasCustomResolution: cfg.HasCustomResolution,
	}
}

// expandArguments runs EvaluateRules/ExpandArgValue over a manifest
// argument list, dropping entries whose rules exclude them. In tolerant
// mode a rule-regex error on one entry is logged (via logf, if set) and
// that entry is skipped rather than aborting the whole list.
func expandArguments(values []assets.ArgValue, platform assets.Platform, flags assets.FlagSet, tolerant bool, logf func(format string, args ...any)) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		expanded, err := assets.ExpandArgValue(v, platform, flags)
		if err != nil {
			if tolerant {
				if logf != nil {
					logf("skipping argument entry: %v", err)
				}
				continue
			}
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// applyPlaceholders runs a single pass over args, replacing every
// occurrence of each ${name} token with its value.
func applyPlaceholders(args []string, table map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		for token, value := range table {
			a = strings.ReplaceAll(a, token, value)
		}
		out[i] = a
	}
	return out
}

// BuildCommand assembles the full Java command line for a resolved
// version: javaPath + fixed JVM optimisation flags + -Xms/-Xmx memory
// flags + expanded/placeholder-
// substituted JVM args + authlib args + mainClass + expanded/substituted
// game args + optional --server/--port, per §4.5's command assembly.
func BuildCommand(ctx context.Context, manifest *assets.VersionManifest, classpath, nativesDir string, cfg Config, platform assets.Platform, userAgent string, persistAuthlibSHA256 func(string)) ([]string, error) {
	totalMem, err := totalSystemMemoryBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	limits, err := computeMemoryLimits(cfg.MinGiB, cfg.MaxGiB, cfg.RequiredGiB, totalMem)
	if err != nil {
		return nil, err
	}

	flags := flagSetFor(cfg)
	jvmArgs, err := expandArguments(manifest.Arguments.JVM, platform, flags, cfg.Tolerant, nil)
	if err != nil {
		return nil, err
	}
	gameArgs, err := expandArguments(manifest.Arguments.Game, platform, flags, cfg.Tolerant, nil)
	if err != nil {
		return nil, err
	}

	placeholders := map[string]string{
		"${natives_directory}": nativesDir,
		"${library_directory}": assets.LibrariesDir(cfg.GameDir),
		"${launcher_name}":     launcherName,
		"${launcher_version}":  launcherVersion,
		"${classpath}":         classpath,
		"${auth_player_name}":  cfg.PlayerName,
		"${auth_uuid}":         cfg.UUID,
		"${auth_access_token}": cfg.AccessToken,
		"${version_name}":      cfg.Version,
		"${version_type}":      versionType,
		"${game_directory}":    cfg.GameDir,
		"${assets_root}":       filepath.Join(cfg.GameDir, "assets"),
		"${assets_index_name}": manifest.AssetIndex.ID,
		"${user_type}":         userType,
	}
	if cfg.HasCustomResolution {
		placeholders["${resolution_width}"] = cfg.ResolutionWidth
		placeholders["${resolution_height}"] = cfg.ResolutionHeight
	}

	jvmArgs = applyPlaceholders(jvmArgs, placeholders)
	gameArgs = applyPlaceholders(gameArgs, placeholders)

	if cfg.JoinServerAddress != "" {
		gameArgs = append(gameArgs, "--server", cfg.JoinServerAddress)
		if cfg.JoinServerPort != 0 {
			gameArgs = append(gameArgs, "--port", strconv.Itoa(cfg.JoinServerPort))
		}
	}

	var authlibArgs []string
	if cfg.AuthlibEnabled {
		authlibArgs, err = resolveAuthlib(ctx, cfg, userAgent, persistAuthlibSHA256)
		if err != nil {
			return nil, err
		}
	}

	command := make([]string, 0, 16+len(jvmArgs)+len(gameArgs)+len(authlibArgs))
	command = append(command, cfg.JavaPath)
	command = append(command, jvmOptimizationFlags...)
	command = append(command, limits.jvmFlags()...)
	command = append(command, jvmArgs...)
	command = append(command, authlibArgs...)
	command = append(command, manifest.MainClass)
	command = append(command, gameArgs...)
	return command, nil
}

// RedactCommand returns a copy of command with every occurrence of
// accessToken replaced, so the launcher never logs a usable token.
func RedactCommand(command []string, accessToken string) []string {
	if accessToken == "" {
		return command
	}
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = strings.ReplaceAll(arg, accessToken, "***********")
	}
	return out
}

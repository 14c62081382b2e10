// Package main is NekoLauncher's entry point: it wires the worker pool,
// event loop, config store, network engine, asset pipeline, launch
// builder, process runner, log tailer, and BGM state engine into one
// running instance and dispatches a small set of subcommands.
//
// Grounded on project-tachyon's cmd/builder (a single os.Args[1]-switch
// CLI with its own usage text) for the subcommand-dispatch shape, and on
// project-tachyon's main.go/app.go for the "one composition root wires
// every package" structure — retargeted from a Wails desktop app onto a
// headless/CLI launcher core plus its loopback control API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"nekolauncher/internal/api"
	"nekolauncher/internal/assets"
	"nekolauncher/internal/bgm"
	"nekolauncher/internal/config"
	"nekolauncher/internal/eventloop"
	"nekolauncher/internal/launch"
	"nekolauncher/internal/logger"
	"nekolauncher/internal/logtail"
	"nekolauncher/internal/process"
	runtimepkg "nekolauncher/internal/runtime"
	"nekolauncher/internal/security"
	"nekolauncher/internal/storage"
	"nekolauncher/internal/update"
)

const (
	appVersion  = "1.0.0"
	updateOwner = "nekolauncher"
	updateRepo  = "nekolauncher"
)

// cliArgs is the declarative replacement for the old ad hoc flag.FlagSet
// per-subcommand parsing, grounded on purpleidea-mgmt's cli.Args: one
// top-level struct with pointer subcommand fields, parsed once by go-arg.
type cliArgs struct {
	Serve  *serveArgs  `arg:"subcommand:serve" help:"start the launcher core and its loopback control API"`
	Launch *launchArgs `arg:"subcommand:launch" help:"resolve, assemble, and run one launch attempt, then exit"`
}

type serveArgs struct {
	Port int `arg:"--port" default:"0" help:"control API port (0 uses the persisted/default port)"`
}

type launchArgs struct {
	GameDir string `arg:"--game-dir,required" help:"game installation directory"`
	Version string `arg:"--version,required" help:"game version id"`
	Java    string `arg:"--java" default:"java" help:"path to the java executable"`
	Player  string `arg:"--player" default:"Player" help:"player display name"`
}

func main() {
	var args cliArgs
	parser, err := arg.NewParser(arg.Config{Program: "launcher", Version: "nekolauncher " + appVersion}, &args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cli config error:", err)
		os.Exit(1)
	}
	if err := parser.Parse(os.Args[1:]); err != nil {
		switch err {
		case arg.ErrHelp:
			parser.WriteHelp(os.Stdout)
			return
		case arg.ErrVersion:
			fmt.Println("nekolauncher " + appVersion)
			return
		default:
			fmt.Fprintln(os.Stderr, err)
			parser.WriteUsage(os.Stderr)
			os.Exit(1)
		}
	}

	switch {
	case args.Serve != nil:
		runServe(args.Serve)
	case args.Launch != nil:
		runLaunch(args.Launch)
	default:
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
}

// composition wires every long-lived resource used by both "serve" and
// "launch". dataDir defaults to the OS's per-user config directory.
type composition struct {
	registry *runtimepkg.Registry
	store    *storage.Storage
	logger   *slog.Logger
	settings *config.RuntimeSettings
	dataDir  string
}

func buildComposition() (*composition, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	slogger, _, err := logger.New(dataDir, os.Stdout)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(filepath.Join(dataDir, "launcher.db"))
	if err != nil {
		return nil, err
	}

	registry := runtimepkg.New(slogger, filepath.Join(dataDir, "config.ini"), runtime.NumCPU())

	return &composition{
		registry: registry,
		store:    store,
		logger:   slogger,
		settings: config.NewRuntimeSettings(store),
		dataDir:  dataDir,
	}, nil
}

func resolveDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "NekoLauncher")
	return dir, os.MkdirAll(dir, 0755)
}

func runServe(args *serveArgs) {
	c, err := buildComposition()
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	pool := c.registry.Pool()
	loop := c.registry.Loop()

	engine := bgm.New(loop, pool, bgm.NewNoOpPlayer(c.logger), c.logger, bgm.Config{
		AudioWorker: 0,
		Store:       c.store,
	})
	if err := engine.Initialise(nil); err != nil {
		c.logger.Error("bgm initialise failed", "error", err)
	}

	cfgStore, err := c.registry.ConfigStore()
	if err != nil {
		c.logger.Error("config store failed", "error", err)
		os.Exit(1)
	}

	runner := process.NewRunner(loop, c.logger)
	server := api.NewServer(pool, loop, engine, cfgStore, c.settings, launchFunc(c, loop, runner), c.logger, c.dataDir)

	listenPort := args.Port
	if listenPort == 0 {
		listenPort = c.settings.GetControlAPIPort()
	}
	server.Start(listenPort)

	checkForUpdate(c.logger)

	waitForSignal()
	c.registry.Shutdown()
	c.store.Close()
}

// launchFunc adapts the launch package onto api.LaunchFunc, fixing the
// platform, user agent, and asset pipeline for the process's lifetime.
func launchFunc(c *composition, loop *eventloop.Loop, runner *process.Runner) api.LaunchFunc {
	platform := currentPlatform()
	pipeline := &assets.Pipeline{
		Pool:      c.registry.Pool(),
		Store:     c.store,
		Logger:    c.logger,
		UserAgent: userAgent(),
		Scanner:   security.NewScanner(c.logger),
	}

	return func(cfg launch.Config) *launch.Attempt {
		ctx := context.Background()
		persist := func(sha256 string) { cfg.AuthlibSHA256 = sha256 }
		return launch.Run(ctx, pipeline, cfg, platform, userAgent(), persist, runner.Spawn, c.logger)
	}
}

func runLaunch(args *launchArgs) {
	c, err := buildComposition()
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	pool := c.registry.Pool()
	loop := c.registry.Loop()
	runner := process.NewRunner(loop, c.logger)

	tailerPath := filepath.Join(args.GameDir, "logs", "latest.log")
	tailer := logtail.New(loop, c.logger, tailerPath, "game", 0, true)
	ctx, cancel := context.WithCancel(context.Background())
	go tailer.Run(ctx)
	defer cancel()

	platform := currentPlatform()
	pipeline := &assets.Pipeline{
		Pool:      pool,
		Store:     c.store,
		Logger:    c.logger,
		UserAgent: userAgent(),
		Scanner:   security.NewScanner(c.logger),
	}

	cfg := launch.Config{
		GameDir:     args.GameDir,
		Version:     args.Version,
		JavaPath:    args.Java,
		PlayerName:  args.Player,
		MinGiB:      1,
		MaxGiB:      4,
		RequiredGiB: 1,
	}

	attempt := launch.Run(ctx, pipeline, cfg, platform, userAgent(), func(string) {}, runner.Spawn, c.logger)
	if err := attempt.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "launch failed:", err)
		c.registry.Shutdown()
		c.store.Close()
		os.Exit(1)
	}

	fmt.Println("launched:", attempt.State())
	c.registry.Shutdown()
	c.store.Close()
}

func currentPlatform() assets.Platform {
	return assets.Platform{OSName: runtime.GOOS, OSArch: runtime.GOARCH}
}

func userAgent() string {
	return fmt.Sprintf("NekoLauncher/%s (%s; %s)", appVersion, runtime.GOOS, runtime.GOARCH)
}

func checkForUpdate(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rel, err := update.CheckForUpdates(ctx, appVersion, updateOwner, updateRepo)
	if err != nil {
		log.Debug("update check failed", "error", err)
		return
	}
	if rel != nil {
		log.Info("update available", "version", rel.TagName, "url", rel.HTMLURL)
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

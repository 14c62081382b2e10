package launch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"nekolauncher/internal/assets"
)

// State is a launch attempt's position in the state machine:
// Idle -> Validating -> Downloading -> Installing -> Assembling -> Spawned -> Exited.
type State int

const (
	Idle State = iota
	Validating
	Downloading
	Installing
	Assembling
	Spawned
	Exited
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Validating:
		return "Validating"
	case Downloading:
		return "Downloading"
	case Installing:
		return "Installing"
	case Assembling:
		return "Assembling"
	case Spawned:
		return "Spawned"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// Spawner starts the assembled command and returns once the process has
// been handed off (it does not block for the process's lifetime). onExit
// is invoked exactly once, from a background goroutine, once the child
// terminates — the only way Run's caller ever reaches the Exited state.
// The process runner (C9) implements this; tests can supply a stub.
type Spawner func(ctx context.Context, command []string, workingDir string, onExit func(code int)) error

// Attempt tracks one launch attempt's progress through the state machine
// and the command it ultimately assembles, per §4.5.
type Attempt struct {
	mu       sync.RWMutex
	state    State
	command  []string
	exitCode int
	err      error
	logger   *slog.Logger
}

func newAttempt(logger *slog.Logger) *Attempt {
	return &Attempt{state: Idle, logger: logger}
}

// State returns the attempt's current state.
func (a *Attempt) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Command returns the assembled command line, available once Assembling
// has completed successfully.
func (a *Attempt) Command() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.command
}

// Err returns the error that ended the attempt, if any.
func (a *Attempt) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

func (a *Attempt) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Debug("launch attempt state change", "state", s.String())
	}
}

func (a *Attempt) fail(err error) error {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Error("launch attempt failed", "error", err)
	}
	return err
}

// MarkExited transitions a spawned attempt to Exited with the process's
// exit code. Passed to the Spawner as its onExit callback, so it runs
// once the child terminates rather than when Run returns.
func (a *Attempt) MarkExited(code int) {
	a.mu.Lock()
	a.exitCode = code
	a.state = Exited
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.Debug("launch attempt state change", "state", Exited.String(), "exit_code", code)
	}
}

// ExitCode returns the recorded exit code, valid once State() is Exited.
func (a *Attempt) ExitCode() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exitCode
}

// Run drives one full launch attempt: resolve assets (Validating then
// Downloading/Installing internally inside the pipeline), assemble the
// command (Assembling), and hand it to spawn (Spawned). A validation
// error is always fatal; an integrity error during resolution is fatal
// unless cfg.Tolerant, per §4.5's state-machine description.
func Run(ctx context.Context, pipeline *assets.Pipeline, cfg Config, platform assets.Platform, userAgent string, persistAuthlibSHA256 func(string), spawn Spawner, logger *slog.Logger) *Attempt {
	a := newAttempt(logger)

	a.setState(Validating)
	if cfg.GameDir == "" || cfg.Version == "" || cfg.JavaPath == "" {
		a.fail(fmt.Errorf("%w: gameDir, version, and javaPath are required", ErrInvalidArgument))
		return a
	}

	a.setState(Downloading)
	pipeline.Tolerant = cfg.Tolerant
	result, err := pipeline.Resolve(ctx, cfg.GameDir, cfg.Version, platform, flagSetFor(cfg))
	if err != nil {
		a.fail(err)
		return a
	}

	a.setState(Installing)
	// natives extraction already happened inside Resolve; this state exists
	// to mirror §4.5's explicit Installing(natives) phase for observers.

	a.setState(Assembling)
	command, err := BuildCommand(ctx, result.Manifest, result.ClasspathPath, result.NativesDir, cfg, platform, userAgent, persistAuthlibSHA256)
	if err != nil {
		a.fail(err)
		return a
	}
	a.mu.Lock()
	a.command = command
	a.mu.Unlock()

	if spawn != nil {
		if err := spawn(ctx, command, cfg.GameDir, a.MarkExited); err != nil {
			a.fail(fmt.Errorf("process spawn failed: %v", err))
			return a
		}
	}
	a.setState(Spawned)
	return a
}

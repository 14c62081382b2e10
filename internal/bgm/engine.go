// Package bgm implements the BGM State Engine (spec C11): it matches
// incoming game-output and log-tail lines against a prioritised list of
// regex triggers and drives a Player through cross-faded track changes.
//
// Every mutation of player state happens on one pinned worker pool thread
// (the "audio thread"), following spec §4.7/§5's concurrency discipline.
// Handlers and scheduled fade ticks run on the event loop's own
// goroutine, so every touch of the player hops onto the audio thread via
// post, grounded on the same post-to-owning-thread shape the original
// implementation's audio engine uses and generalized here onto
// internal/pool's per-worker private queue (pool.SubmitToWorker).
package bgm

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"nekolauncher/internal/eventloop"
	"nekolauncher/internal/logtail"
	"nekolauncher/internal/pool"
	"nekolauncher/internal/process"
	"nekolauncher/internal/storage"
)

// State is the BGM engine's player state, matching the PlayerState shape
// from spec §3.
type State int

const (
	Stopped State = iota
	Loading
	Playing
	Stopping
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Loading:
		return "Loading"
	case Playing:
		return "Playing"
	case Stopping:
		return "Stopping"
	case Paused:
		return "Paused"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// EventStateChanged and EventTriggerMatched are the event type tags the
// engine publishes.
const (
	EventStateChanged   = "bgm.state_changed"
	EventTriggerMatched = "bgm.trigger_matched"
)

// BgmStateChanged is published on every player state transition.
type BgmStateChanged struct {
	State State
	Track string
}

// BgmTriggerMatched is published whenever a line matches a trigger,
// whether or not the match produces a state transition.
type BgmTriggerMatched struct {
	Name      string
	Pattern   string
	MusicPath string
	Line      string
}

// postFn submits work to run on the audio thread. Defined as a type so
// tests can swap in a same-goroutine stand-in for determinism.
type postFn func(fn func())

// Engine owns the trigger list, the event-loop subscriptions that feed it
// lines, and the fade state machine driving a Player.
type Engine struct {
	mu       sync.Mutex
	triggers []*Trigger

	masterVolume  float64
	defaultFadeMs int
	basePath      string
	enabled       bool

	loop        *eventloop.Loop
	pool        *pool.Pool
	audioWorker pool.WorkerID
	player      Player
	logger      *slog.Logger
	post        postFn
	store       *storage.Storage

	// Everything below is only ever touched on the audio thread.
	state      State
	track      string
	volume     float64
	fade       *fadeEnvelope
	fadeTaskID eventloop.EventID
	generation uint64

	subs []eventloop.HandlerID
}

// Config bundles Engine construction inputs.
type Config struct {
	MasterVolume  float64
	DefaultFadeMs int
	BasePath      string
	AudioWorker   pool.WorkerID
	// Store, if non-nil, persists every AddTrigger/RemoveTrigger/
	// ClearTriggers mutation so the trigger list survives a restart.
	Store *storage.Storage
}

// New creates an Engine. player is typically a NewNoOpPlayer unless a real
// audio backend has been wired in by the caller. audioWorker identifies
// the pool worker the engine pins as its audio thread. The event loop runs
// on its own goroutine rather than on a pool worker, so any worker id
// serves; cmd/launcher uses worker 0.
func New(loop *eventloop.Loop, workerPool *pool.Pool, player Player, logger *slog.Logger, cfg Config) *Engine {
	masterVolume := cfg.MasterVolume
	if masterVolume <= 0 {
		masterVolume = 1.0
	}
	defaultFadeMs := cfg.DefaultFadeMs
	if defaultFadeMs <= 0 {
		defaultFadeMs = 500
	}

	e := &Engine{
		masterVolume:  masterVolume,
		defaultFadeMs: defaultFadeMs,
		basePath:      cfg.BasePath,
		enabled:       true,
		loop:          loop,
		pool:          workerPool,
		audioWorker:   cfg.AudioWorker,
		player:        player,
		logger:        logger,
		store:         cfg.Store,
		state:         Stopped,
	}
	e.post = e.postToAudioThread
	return e
}

func (e *Engine) postToAudioThread(fn func()) {
	if e.pool == nil {
		fn()
		return
	}
	if _, err := e.pool.SubmitToWorker(e.audioWorker, func() error {
		fn()
		return nil
	}); err != nil {
		e.logf("posting to audio thread failed: %v", err)
	}
}

// Initialise compiles triggers and subscribes the engine to the game
// process and log-tail line events. It must be called once before any
// lines can be matched. If triggers is empty and a Store was configured,
// the trigger list is loaded from the last persisted set instead.
func (e *Engine) Initialise(triggers []*Trigger) error {
	if len(triggers) == 0 && e.store != nil {
		loaded, err := e.loadPersistedTriggers()
		if err != nil {
			e.logf("loading persisted bgm triggers: %v", err)
		} else {
			triggers = loaded
		}
	}

	e.mu.Lock()
	compiled, err := compileAll(triggers)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	sortTriggers(compiled)
	e.triggers = compiled
	e.mu.Unlock()

	e.subs = []eventloop.HandlerID{
		e.loop.Subscribe(process.EventOutputLine, e.onOutputLine, eventloop.Low),
		e.loop.Subscribe(logtail.EventLine, e.onLogLine, eventloop.Low),
		e.loop.Subscribe(process.EventExited, e.onProcessExited, eventloop.Low),
	}
	return nil
}

func (e *Engine) loadPersistedTriggers() ([]*Trigger, error) {
	recs, err := e.store.ListBgmTriggers()
	if err != nil {
		return nil, err
	}
	triggers := make([]*Trigger, len(recs))
	for i, r := range recs {
		triggers[i] = &Trigger{
			Name:      r.Name,
			Pattern:   r.Pattern,
			MusicPath: r.MusicPath,
			Loop:      r.Loop,
			FadeInMs:  r.FadeInMs,
			FadeOutMs: r.FadeOutMs,
			Volume:    r.Volume,
			Priority:  r.Priority,
		}
	}
	return triggers, nil
}

func (e *Engine) persistTrigger(t *Trigger) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveBgmTrigger(storage.BgmTriggerRecord{
		Name:      t.Name,
		Pattern:   t.Pattern,
		MusicPath: t.MusicPath,
		Loop:      t.Loop,
		FadeInMs:  t.FadeInMs,
		FadeOutMs: t.FadeOutMs,
		Volume:    t.Volume,
		Priority:  t.Priority,
	}); err != nil {
		e.logf("persisting bgm trigger %s: %v", t.Name, err)
	}
}

func compileAll(triggers []*Trigger) ([]*Trigger, error) {
	out := make([]*Trigger, len(triggers))
	for i, t := range triggers {
		tc := *t
		if err := tc.compile(); err != nil {
			return nil, err
		}
		out[i] = &tc
	}
	return out, nil
}

// AddTrigger compiles and inserts t, re-sorting the trigger list by
// priority. Regex compilation happens only here and in Initialise.
func (e *Engine) AddTrigger(t Trigger) error {
	if err := t.compile(); err != nil {
		return err
	}
	e.mu.Lock()
	e.triggers = append(e.triggers, &t)
	sortTriggers(e.triggers)
	e.mu.Unlock()
	e.persistTrigger(&t)
	return nil
}

// RemoveTrigger removes the first trigger with the given name.
func (e *Engine) RemoveTrigger(name string) bool {
	e.mu.Lock()
	removed := false
	for i, t := range e.triggers {
		if t.Name == name {
			e.triggers = append(e.triggers[:i], e.triggers[i+1:]...)
			removed = true
			break
		}
	}
	e.mu.Unlock()

	if removed && e.store != nil {
		if err := e.store.DeleteBgmTrigger(name); err != nil {
			e.logf("deleting persisted bgm trigger %s: %v", name, err)
		}
	}
	return removed
}

// ClearTriggers removes every configured trigger.
func (e *Engine) ClearTriggers() {
	e.mu.Lock()
	e.triggers = nil
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.ClearBgmTriggers(); err != nil {
			e.logf("clearing persisted bgm triggers: %v", err)
		}
	}
}

// SetEnabled toggles whether the engine reacts to incoming lines at all.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// SetVolume sets the master volume multiplier applied to every trigger's
// own volume. It hops onto the audio thread before touching the player,
// rescaling the currently-playing track's volume immediately (outside any
// in-flight fade).
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	old := e.masterVolume
	e.masterVolume = v
	e.mu.Unlock()

	e.post(func() {
		if e.state == Playing && e.fade == nil {
			if old > 0 {
				e.volume = e.volume / old * v
			} else {
				e.volume = v
			}
			e.player.SetVolume(e.volume)
		}
	})
}

func (e *Engine) onOutputLine(ev eventloop.Event) {
	l, ok := ev.Payload.(process.ProcessOutputLine)
	if !ok {
		return
	}
	e.handleLine(l.Line)
}

func (e *Engine) onLogLine(ev eventloop.Event) {
	l, ok := ev.Payload.(logtail.LogFileLine)
	if !ok {
		return
	}
	e.handleLine(l.Line)
}

func (e *Engine) onProcessExited(eventloop.Event) {
	// A one-second fade-out stop, per spec §4.7.
	e.post(func() {
		e.generation++
		e.doStop(1000, curveLinear)
	})
}

// handleLine scans triggers in priority order; the first match wins.
func (e *Engine) handleLine(line string) {
	e.mu.Lock()
	enabled := e.enabled
	var matched *Trigger
	for _, t := range e.triggers {
		if t.matches(line) {
			matched = t
			break
		}
	}
	e.mu.Unlock()

	if matched == nil || !enabled {
		return
	}

	e.loop.Publish(EventTriggerMatched, BgmTriggerMatched{
		Name:      matched.Name,
		Pattern:   matched.Pattern,
		MusicPath: matched.MusicPath,
		Line:      line,
	})

	t := matched
	e.post(func() {
		e.generation++
		if t.IsStop() {
			e.doStop(e.fadeOutMs(t), curveLinear)
			return
		}
		e.doPlay(t)
	})
}

// doPlay runs on the audio thread. gen pins the generation this call was
// scheduled under so a superseding trigger can invalidate the delayed
// continuation of an older cross-fade.
func (e *Engine) doPlay(t *Trigger) {
	gen := e.generation

	if e.state == Playing && e.track == t.MusicPath {
		// BGM redundancy skip: replaying the already-playing track is a
		// strict no-op, including no events.
		return
	}

	if e.state == Playing || e.state == Stopping {
		fadeOutMs := e.fadeOutMs(t)
		e.beginFade(e.volume, 0, fadeOutMs, curveEaseInOutQuad, func() {
			e.player.Stop()
			e.state = Stopped
			e.track = ""
			e.publishState()
		})
		e.state = Stopping
		e.publishState()

		delay := time.Duration(fadeOutMs+50) * time.Millisecond
		e.loop.ScheduleTask(delay, func() {
			e.post(func() {
				if e.generation != gen {
					return
				}
				e.startPlay(t)
			})
		}, eventloop.Normal)
		return
	}

	e.startPlay(t)
}

func (e *Engine) startPlay(t *Trigger) {
	path := t.MusicPath
	if e.basePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(e.basePath, path)
	}

	e.state = Loading
	e.publishState()

	if err := e.player.Open(path); err != nil {
		e.logf("opening track %s: %v", path, err)
		e.state = Error
		e.track = ""
		e.publishState()
		return
	}

	e.player.SetLoop(t.Loop)
	target := t.Volume * e.masterVolume
	e.player.SetVolume(0)
	if err := e.player.Play(); err != nil {
		e.logf("playing track %s: %v", path, err)
		e.state = Error
		e.track = ""
		e.publishState()
		return
	}

	e.track = t.MusicPath
	e.state = Playing
	e.publishState()

	e.beginFade(0, target, e.fadeInMs(t), curveEaseInOutQuad, nil)
}

// doStop runs on the audio thread, fading the current track out over
// fadeOutMs and then stopping it. A stop trigger with nothing playing is
// a no-op.
func (e *Engine) doStop(fadeOutMs int, c curve) {
	if e.state != Playing && e.state != Stopping {
		return
	}

	e.state = Stopping
	e.publishState()

	e.beginFade(e.volume, 0, fadeOutMs, c, func() {
		e.player.Stop()
		e.state = Stopped
		e.track = ""
		e.publishState()
	})
}

// beginFade cancels any in-flight fade and starts a new one, ticking at
// fadeTick via the event loop's scheduler. The tick callback runs on the
// loop's own goroutine and hops back onto the audio thread to touch
// e.volume/e.player, keeping the mutation discipline spec §4.7 requires
// even though the timer itself is not audio-thread-owned.
func (e *Engine) beginFade(start, end float64, durationMs int, c curve, onDone func()) {
	if e.fadeTaskID != 0 {
		e.loop.CancelTask(e.fadeTaskID)
	}

	f := &fadeEnvelope{
		startVol: start,
		endVol:   end,
		duration: time.Duration(durationMs) * time.Millisecond,
		curve:    c,
		onDone:   onDone,
	}
	e.fade = f
	e.volume = start
	e.player.SetVolume(e.volume)

	if f.duration <= 0 {
		e.finishFade(f)
		return
	}

	gen := e.generation
	e.fadeTaskID = e.loop.ScheduleRepeating(fadeTick, func() {
		e.post(func() {
			if e.generation != gen || e.fade != f {
				return
			}
			e.tickFade(f)
		})
	}, eventloop.High)
}

func (e *Engine) tickFade(f *fadeEnvelope) {
	f.elapsed += fadeTick
	e.volume = f.valueAt(f.elapsed)
	e.player.SetVolume(e.volume)

	if f.done(f.elapsed) {
		e.finishFade(f)
	}
}

func (e *Engine) finishFade(f *fadeEnvelope) {
	if e.fadeTaskID != 0 {
		e.loop.CancelTask(e.fadeTaskID)
		e.fadeTaskID = 0
	}
	e.volume = f.endVol
	e.player.SetVolume(e.volume)
	e.fade = nil
	if f.onDone != nil {
		f.onDone()
	}
}

func (e *Engine) fadeOutMs(t *Trigger) int {
	if t.FadeOutMs > 0 {
		return t.FadeOutMs
	}
	return e.defaultFadeMs
}

func (e *Engine) fadeInMs(t *Trigger) int {
	if t.FadeInMs > 0 {
		return t.FadeInMs
	}
	return e.defaultFadeMs
}

// Snapshot returns the engine's current state and track, synchronized by
// posting the read onto the audio thread so it observes any previously
// posted mutation rather than racing with it.
func (e *Engine) Snapshot() (State, string) {
	type result struct {
		state State
		track string
	}
	ch := make(chan result, 1)
	e.post(func() {
		ch <- result{e.state, e.track}
	})
	r := <-ch
	return r.state, r.track
}

func (e *Engine) publishState() {
	e.loop.Publish(EventStateChanged, BgmStateChanged{State: e.state, Track: e.track})
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(fmt.Sprintf(format, args...))
}

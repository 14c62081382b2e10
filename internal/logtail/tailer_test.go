package logtail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekolauncher/internal/eventloop"
)

func runLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop := eventloop.New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)
	return loop
}

func collectLines(t *testing.T, loop *eventloop.Loop, n int, timeout time.Duration) []string {
	t.Helper()
	ch := make(chan string, 64)
	loop.Subscribe(EventLine, func(e eventloop.Event) {
		ch <- e.Payload.(LogFileLine).Line
	}, eventloop.Low)

	var out []string
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case l := <-ch:
			out = append(out, l)
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines, got %v", n, out)
		}
	}
	return out
}

func TestTailerReadsLinesAppendedAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	loop := runLoop(t)
	tailer := New(loop, nil, path, "game", 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tailer.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("hello\nworld\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := collectLines(t, loop, 2, 2*time.Second)
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestTailerBuffersPartialLineUntilNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	loop := runLoop(t)
	tailer := New(loop, nil, path, "game", 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tailer.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("partial-no-newline-yet")
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	_, err = f.WriteString(" now-complete\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := collectLines(t, loop, 1, 2*time.Second)
	assert.Equal(t, []string{"partial-no-newline-yet now-complete"}, lines)
}

func TestTailerSafeToStartBeforeFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")

	loop := runLoop(t)
	tailer := New(loop, nil, path, "game", 10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tailer.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("first-line\n"), 0o644))

	lines := collectLines(t, loop, 1, 2*time.Second)
	assert.Equal(t, []string{"first-line"}, lines)
}

func TestTailerDetectsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("aaaaaaaaaa\n"), 0o644))

	loop := runLoop(t)
	tailer := New(loop, nil, path, "game", 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tailer.Run(ctx)

	time.Sleep(150 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("short\n"), 0o644))

	lines := collectLines(t, loop, 1, 2*time.Second)
	assert.Equal(t, []string{"short"}, lines)
}

func TestTailerSeekToEndSkipsExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("already-there\n"), 0o644))

	loop := runLoop(t)
	tailer := New(loop, nil, path, "game", 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tailer.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("new-line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := collectLines(t, loop, 1, 2*time.Second)
	assert.Equal(t, []string{"new-line"}, lines)
}

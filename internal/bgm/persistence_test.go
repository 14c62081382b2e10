package bgm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekolauncher/internal/eventloop"
	"nekolauncher/internal/logtail"
	"nekolauncher/internal/pool"
	"nekolauncher/internal/storage"
)

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddTriggerPersistsToStore(t *testing.T) {
	loop := eventloop.New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	audioPool := pool.New(nil, 1)
	t.Cleanup(func() { audioPool.Stop(false) })

	store := newTestStore(t)
	e := New(loop, audioPool, &recordingPlayer{}, nil, Config{Store: store, AudioWorker: pool.WorkerID(0)})
	require.NoError(t, e.Initialise(nil))

	require.NoError(t, e.AddTrigger(Trigger{Name: "a", Pattern: "x", MusicPath: "a.ogg", Priority: 5}))

	recs, err := store.ListBgmTriggers()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Name)

	assert.True(t, e.RemoveTrigger("a"))
	recs, err = store.ListBgmTriggers()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInitialiseLoadsPersistedTriggersWhenNoneGiven(t *testing.T) {
	loop := eventloop.New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	audioPool := pool.New(nil, 1)
	t.Cleanup(func() { audioPool.Stop(false) })

	store := newTestStore(t)
	require.NoError(t, store.SaveBgmTrigger(storage.BgmTriggerRecord{
		Name: "preset", Pattern: "start", MusicPath: "p.ogg", Priority: 1, FadeInMs: 10,
	}))

	e := New(loop, audioPool, &recordingPlayer{}, nil, Config{Store: store, AudioWorker: pool.WorkerID(0), DefaultFadeMs: 10})
	require.NoError(t, e.Initialise(nil))

	loop.Publish(logtail.EventLine, logtail.LogFileLine{Line: "start", Source: "game"})

	require.Eventually(t, func() bool {
		st, track := e.Snapshot()
		return st == Playing && track == "p.ogg"
	}, 2*time.Second, 10*time.Millisecond)
}

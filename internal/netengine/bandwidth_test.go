package netengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekolauncher/internal/pool"
)

func TestBandwidthWaitFastPathWhenDisabled(t *testing.T) {
	bm := NewBandwidthManager()
	start := time.Now()
	require.NoError(t, bm.Wait(context.Background(), "task1", 10_000_000))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBandwidthWaitThrottlesWhenEnabled(t *testing.T) {
	bm := NewBandwidthManager()
	bm.SetLimit(1000) // 1000 bytes/sec

	start := time.Now()
	require.NoError(t, bm.Wait(context.Background(), "task1", 1000))
	require.NoError(t, bm.Wait(context.Background(), "task1", 1000))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestBandwidthLowPriorityYields(t *testing.T) {
	bm := NewBandwidthManager()
	bm.SetLimit(1_000_000)
	bm.SetTaskPriority("low-task", pool.Low)

	start := time.Now()
	require.NoError(t, bm.Wait(context.Background(), "low-task", 10))
	assert.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)
}

package netengine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"nekolauncher/internal/pool"
)

// BandwidthManager throttles aggregate download throughput with a single
// global token bucket, adapted from project-tachyon's
// internal/network.BandwidthManager — same zero-overhead-when-disabled
// fast path, generalized from an ad-hoc int priority to the shared
// pool.Priority scale.
type BandwidthManager struct {
	globalLimiter *rate.Limiter
	limitEnabled  atomic.Bool

	mu             sync.RWMutex
	taskPriorities map[string]pool.Priority
}

// NewBandwidthManager creates a manager with no limit configured.
func NewBandwidthManager() *BandwidthManager {
	return &BandwidthManager{
		globalLimiter:  rate.NewLimiter(rate.Inf, 0),
		taskPriorities: make(map[string]pool.Priority),
	}
}

// SetLimit sets the aggregate limit in bytes/sec; 0 or negative disables
// limiting entirely.
func (bm *BandwidthManager) SetLimit(bytesPerSec int) {
	if bytesPerSec <= 0 {
		bm.limitEnabled.Store(false)
		bm.globalLimiter.SetLimit(rate.Inf)
		return
	}
	bm.limitEnabled.Store(true)
	bm.globalLimiter.SetLimit(rate.Limit(bytesPerSec))
	bm.globalLimiter.SetBurst(bytesPerSec)
}

// SetTaskPriority records the priority a given task's traffic should be
// shaped at.
func (bm *BandwidthManager) SetTaskPriority(taskID string, priority pool.Priority) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.taskPriorities[taskID] = priority
}

// Wait blocks until n bytes may be consumed under the global limit. It
// returns immediately if no limit is configured. Low-priority tasks take
// an extra 10ms sleep after every wait, whether or not the limiter delayed
// them, so they yield bandwidth to higher-priority tasks.
func (bm *BandwidthManager) Wait(ctx context.Context, taskID string, n int) error {
	if !bm.limitEnabled.Load() {
		return nil
	}

	bm.mu.RLock()
	priority, ok := bm.taskPriorities[taskID]
	bm.mu.RUnlock()
	if !ok {
		priority = pool.Normal
	}

	if err := bm.globalLimiter.WaitN(ctx, n); err != nil {
		return err
	}

	if priority == pool.Low {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

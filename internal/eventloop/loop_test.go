package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	return cancel
}

func TestPublishAsyncDispatchesToSubscriber(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	received := make(chan Event, 1)
	l.Subscribe("tick", func(e Event) { received <- e }, Low)

	l.Publish("tick", 42)

	select {
	case e := <-received:
		assert.Equal(t, 42, e.Payload)
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestPublishSyncRunsInline(t *testing.T) {
	l := New(nil, 0)
	// Deliberately not running the loop: sync dispatch bypasses it.

	var ran atomic.Bool
	l.Subscribe("tick", func(e Event) { ran.Store(true) }, Low)

	l.Publish("tick", nil, WithMode(Sync))
	assert.True(t, ran.Load())
}

func TestMinPriorityFiltersSubscribers(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var gotHigh, gotLow atomic.Bool
	l.Subscribe("alert", func(e Event) { gotHigh.Store(true) }, High)
	l.Subscribe("alert", func(e Event) { gotLow.Store(true) }, Low)

	l.Publish("alert", nil, WithPriority(Normal))

	assert.Eventually(t, func() bool { return gotLow.Load() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, gotHigh.Load(), "handler requiring High must not see a Normal event")
}

func TestFiltersMustAllPass(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var matched atomic.Bool
	alwaysTrue := func(Event) bool { return true }
	alwaysFalse := func(Event) bool { return false }
	l.Subscribe("x", func(e Event) { matched.Store(true) }, Low, alwaysTrue, alwaysFalse)

	l.Publish("x", nil)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, matched.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var count atomic.Int32
	id := l.Subscribe("x", func(e Event) { count.Add(1) }, Low)

	l.Publish("x", nil)
	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, l.Unsubscribe(id))
	assert.False(t, l.Unsubscribe(id), "second unsubscribe of the same id must report false")

	l.Publish("x", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		l.Subscribe("x", func(e Event) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, Low)
	}

	l.Publish("x", nil)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduleTaskFiresAfterDelay(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	start := time.Now()
	fired := make(chan time.Time, 1)
	l.ScheduleTask(30*time.Millisecond, func() { fired <- time.Now() }, Normal)

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
}

func TestScheduleRepeatingFiresMultipleTimes(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var count atomic.Int32
	id := l.ScheduleRepeating(10*time.Millisecond, func() { count.Add(1) }, Normal)

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	l.CancelTask(id)

	n := count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), n+1, "cancelled repeating task must stop re-scheduling itself")
}

func TestCancelTaskPreventsFiring(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	var ran atomic.Bool
	id := l.ScheduleTask(20*time.Millisecond, func() { ran.Store(true) }, Normal)
	require.True(t, l.CancelTask(id))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestCancelUnknownTaskReturnsFalse(t *testing.T) {
	l := New(nil, 0)
	assert.False(t, l.CancelTask(EventID(9999)))
}

func TestPublishAfterSchedulesPublish(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	received := make(chan Event, 1)
	l.Subscribe("delayed", func(e Event) { received <- e }, Low)

	l.PublishAfter("delayed", 20*time.Millisecond, "hello")

	select {
	case e := <-received:
		assert.Equal(t, "hello", e.Payload)
	case <-time.After(time.Second):
		t.Fatal("delayed publish never fired")
	}
}

func TestBackpressureDropsExcessEvents(t *testing.T) {
	l := New(nil, 1)

	block := make(chan struct{})
	l.Subscribe("x", func(e Event) { <-block }, Low)
	defer close(block)
	defer runLoop(t, l)()

	l.Publish("x", 1) // picked up by the loop and dispatched (blocks the handler)
	time.Sleep(20 * time.Millisecond)

	l.Publish("x", 2) // queued
	l.Publish("x", 3) // queue full, dropped

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestPanicInHandlerIncrementsFailed(t *testing.T) {
	l := New(nil, 0)
	defer runLoop(t, l)()

	l.Subscribe("x", func(e Event) { panic("boom") }, Low)
	l.Publish("x", nil)

	assert.Eventually(t, func() bool { return l.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
}

package eventloop

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// waitCeiling bounds how long the loop sleeps with nothing due, so a
// publish that lands between the condvar check and the wait never stalls
// indefinitely even if a signal is somehow missed.
const waitCeiling = 500 * time.Millisecond

// reconcileInterval is how often the cancelled-task set is pruned against
// what is still actually queued, bounding its memory growth.
const reconcileInterval = 2 * time.Second

// Stats is a snapshot of loop counters.
type Stats struct {
	Dispatched uint64
	Dropped    uint64
	Failed     uint64
	Pending    int
	Scheduled  int
}

// PublishOption customizes a single Publish call.
type PublishOption func(*Event)

// WithPriority sets the event's priority (Normal is the default).
func WithPriority(p Priority) PublishOption {
	return func(e *Event) { e.Priority = p }
}

// WithMode selects synchronous or asynchronous dispatch.
func WithMode(m DispatchMode) PublishOption {
	return func(e *Event) { e.Mode = m }
}

// Loop is the single-cooperative-thread dispatcher described in spec §4.2:
// a FIFO event queue, a type→handlers map, and a due-time-ordered task
// heap, all guarded by one mutex/condvar pair.
type Loop struct {
	logger *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []Event
	handlers  map[string][]*handler
	scheduled taskHeap
	cancelled map[EventID]struct{}
	stopped   bool
	maxQueue  int

	nextID      atomic.Uint64
	nextHandler atomic.Uint64

	dispatched atomic.Uint64
	dropped    atomic.Uint64
	failed     atomic.Uint64
}

// New creates a loop. maxQueue bounds the pending-event FIFO; 0 means
// unbounded. A nil logger disables failure logging.
func New(logger *slog.Logger, maxQueue int) *Loop {
	l := &Loop{
		logger:    logger,
		handlers:  make(map[string][]*handler),
		cancelled: make(map[EventID]struct{}),
		maxQueue:  maxQueue,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Subscribe registers cb for events of eventType whose priority is at
// least minPriority and which pass every filter. Returns a HandlerID for
// later Unsubscribe.
func (l *Loop) Subscribe(eventType string, cb func(Event), minPriority Priority, filters ...Filter) HandlerID {
	id := HandlerID(l.nextHandler.Add(1) - 1)
	h := &handler{id: id, eventType: eventType, callback: cb, minPriority: minPriority, filters: filters}

	l.mu.Lock()
	l.handlers[eventType] = append(l.handlers[eventType], h)
	l.mu.Unlock()
	return id
}

// Unsubscribe removes a handler by id, returning false if it was already
// removed or never existed.
func (l *Loop) Unsubscribe(id HandlerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for eventType, hs := range l.handlers {
		for i, h := range hs {
			if h.id == id {
				l.handlers[eventType] = append(hs[:i], hs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish dispatches payload to every eligible subscriber of eventType.
// With the default Async mode, the event is enqueued and the loop is
// signalled; with WithMode(Sync), every eligible handler runs on the
// caller's goroutine before Publish returns, bypassing the queue.
func (l *Loop) Publish(eventType string, payload any, opts ...PublishOption) EventID {
	e := Event{
		ID:        EventID(l.nextID.Add(1) - 1),
		Type:      eventType,
		Timestamp: time.Now(),
		Priority:  Normal,
		Mode:      Async,
		Payload:   payload,
	}
	for _, o := range opts {
		o(&e)
	}

	if e.Mode == Sync {
		l.mu.Lock()
		hs := append([]*handler(nil), l.handlers[eventType]...)
		l.mu.Unlock()
		l.dispatchTo(hs, e)
		l.dispatched.Add(1)
		return e.ID
	}

	l.mu.Lock()
	if l.maxQueue > 0 && len(l.pending) >= l.maxQueue {
		l.mu.Unlock()
		l.dropped.Add(1)
		return e.ID
	}
	l.pending = append(l.pending, e)
	l.mu.Unlock()
	l.cond.Broadcast()
	return e.ID
}

// PublishAfter schedules an async Publish of eventType to fire after
// delay elapses.
func (l *Loop) PublishAfter(eventType string, delay time.Duration, payload any, opts ...PublishOption) EventID {
	return l.ScheduleTask(delay, func() {
		l.Publish(eventType, payload, opts...)
	}, Normal)
}

// ScheduleTask runs fn once after delay, at the given priority.
func (l *Loop) ScheduleTask(delay time.Duration, fn func(), priority Priority) EventID {
	return l.schedule(delay, fn, priority, false, 0)
}

// ScheduleRepeating runs fn every interval, starting after the first
// interval elapses, until cancelled.
func (l *Loop) ScheduleRepeating(interval time.Duration, fn func(), priority Priority) EventID {
	return l.schedule(interval, fn, priority, true, interval)
}

func (l *Loop) schedule(delay time.Duration, fn func(), priority Priority, repeating bool, interval time.Duration) EventID {
	id := EventID(l.nextID.Add(1) - 1)
	task := &scheduledTask{
		id:        id,
		dueTime:   time.Now().Add(delay),
		priority:  priority,
		fn:        fn,
		repeating: repeating,
		interval:  interval,
	}

	l.mu.Lock()
	heap.Push(&l.scheduled, task)
	l.mu.Unlock()
	l.cond.Broadcast()
	return id
}

// CancelTask marks a scheduled task cancelled. It is skipped next time the
// loop would otherwise run it; a repeating task stops repeating.
func (l *Loop) CancelTask(id EventID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.scheduled {
		if t.id == id {
			t.cancelled = true
			l.cancelled[id] = struct{}{}
			return true
		}
	}
	return false
}

// Stats returns a point-in-time snapshot of loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Dispatched: l.dispatched.Load(),
		Dropped:    l.dropped.Load(),
		Failed:     l.failed.Load(),
		Pending:    len(l.pending),
		Scheduled:  len(l.scheduled),
	}
}

// Stop signals the run loop to exit after finishing its current tick.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Run owns the loop's single cooperative thread: it drains events, fires
// due tasks, and sleeps until there is more to do. It returns when Stop is
// called or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	lastReconcile := time.Now()

	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}

		didWork := l.drainEvents()
		didWork = l.runDueTasks() || didWork

		if time.Since(lastReconcile) >= reconcileInterval {
			l.reconcileCancelled()
			lastReconcile = time.Now()
		}

		if didWork {
			l.mu.Unlock()
			continue
		}

		wait := waitCeiling
		if len(l.scheduled) > 0 {
			until := time.Until(l.scheduled[0].dueTime)
			if until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}

		if wait > 0 {
			timer := time.AfterFunc(wait, func() {
				l.mu.Lock()
				l.cond.Broadcast()
				l.mu.Unlock()
			})
			l.cond.Wait()
			timer.Stop()
		}
		l.mu.Unlock()
	}
}

// drainEvents must be called with l.mu held. It removes every pending
// event and dispatches each to its handlers in FIFO order, returning
// whether any event ran.
func (l *Loop) drainEvents() bool {
	if len(l.pending) == 0 {
		return false
	}
	batch := l.pending
	l.pending = nil

	for _, e := range batch {
		hs := append([]*handler(nil), l.handlers[e.Type]...)
		l.mu.Unlock()
		l.dispatchTo(hs, e)
		l.mu.Lock()
	}
	l.dispatched.Add(uint64(len(batch)))
	return true
}

// dispatchTo invokes every handler eligible for e, in subscription order,
// recovering individual handler panics so one bad subscriber cannot wedge
// the loop or a synchronous publisher.
func (l *Loop) dispatchTo(hs []*handler, e Event) {
	for _, h := range hs {
		if !h.eligible(e) {
			continue
		}
		l.invoke(h, e)
	}
}

func (l *Loop) invoke(h *handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			l.failed.Add(1)
			if l.logger != nil {
				l.logger.Error("event handler panicked", "type", e.Type, "handler", h.id, "error", r)
			}
		}
	}()
	h.callback(e)
}

// runDueTasks must be called with l.mu held. It pops and runs every
// scheduled task whose due time has arrived, re-inserting repeating ones,
// and returns whether any task ran.
func (l *Loop) runDueTasks() bool {
	now := time.Now()
	ran := false

	for len(l.scheduled) > 0 && !l.scheduled[0].dueTime.After(now) {
		task := heap.Pop(&l.scheduled).(*scheduledTask)
		if task.cancelled {
			continue
		}
		ran = true

		l.mu.Unlock()
		l.runTask(task)
		l.mu.Lock()

		if task.repeating && !task.cancelled {
			task.dueTime = now.Add(task.interval)
			heap.Push(&l.scheduled, task)
		}
	}
	return ran
}

func (l *Loop) runTask(task *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			l.failed.Add(1)
			if l.logger != nil {
				l.logger.Error("scheduled task panicked", "task", task.id, "error", r)
			}
		}
	}()
	task.fn()
}

// reconcileCancelled must be called with l.mu held. It drops cancelled
// entries whose task is no longer in the heap, since a non-repeating
// cancelled task is popped and discarded on its own and would otherwise
// leak its id in the cancelled set forever.
func (l *Loop) reconcileCancelled() {
	if len(l.cancelled) == 0 {
		return
	}
	stillQueued := make(map[EventID]struct{}, len(l.scheduled))
	for _, t := range l.scheduled {
		stillQueued[t.id] = struct{}{}
	}
	for id := range l.cancelled {
		if _, ok := stillQueued[id]; !ok {
			delete(l.cancelled, id)
		}
	}
}

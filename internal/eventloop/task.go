package eventloop

import "time"

// scheduledTask is a delayed or repeating callback awaiting its due time.
type scheduledTask struct {
	id        EventID
	dueTime   time.Time
	priority  Priority
	fn        func()
	repeating bool
	interval  time.Duration
	cancelled bool
}

// taskHeap orders scheduled tasks by due time ascending, then priority
// descending, then id ascending — "ready tasks run in order (dueTime
// ascending, then priority descending, then id ascending)".
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if !h[i].dueTime.Equal(h[j].dueTime) {
		return h[i].dueTime.Before(h[j].dueTime)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].id < h[j].id
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*scheduledTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

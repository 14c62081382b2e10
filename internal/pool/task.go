// Package pool implements the launcher's worker pool (spec C1): a
// priority-ordered shared queue, per-worker private queues, dynamic
// resizing, and bounded admission, grounded on project-tachyon's
// core/engine.go goroutine-and-condvar style plus the priority/FIFO
// ordering of the original C++ threadPool.hpp.
package pool

import (
	"errors"
	"time"
)

// Priority orders task and event dispatch. Higher runs first; ties break
// on ascending TaskId (FIFO within a priority band). The ordinal values
// match the original implementation's neko::Priority enum.
type Priority uint8

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Sentinel errors for the scheduling taxonomy (spec §7).
var (
	ErrPoolStopped   = errors.New("pool: stopped")
	ErrQueueFull     = errors.New("pool: queue full")
	ErrWorkerNotFound = errors.New("pool: worker not found")
)

// TaskID is a monotonically increasing submission id, used as the FIFO
// tiebreaker within a priority band.
type TaskID uint64

// Task is a unit of work submitted to the pool. future is set at
// submission time, before the task is ever visible to a worker, so a
// worker popping it off the heap always has a non-nil future to
// complete — never a side map a background goroutine hasn't caught up
// populating yet.
type Task struct {
	id         TaskID
	priority   Priority
	fn         func() error
	enqueuedAt time.Time
	future     *Future
}

// taskHeap is a container/heap.Interface implementation ordering by
// priority descending, then TaskID ascending — "higher priority runs
// first; ties broken by ascending TaskId".
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].id < h[j].id
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

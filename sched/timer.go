package sched

import (
	"container/heap"
	"sync"

	"rvkernel/proc"
)

// Timer is a pending wakeup: wake up thread at expireMs (spec §4.11
// "Cancellation and timeouts: sleep uses a min-heap keyed on absolute
// wakeup time"). container/heap is the idiomatic stdlib min-heap — nothing
// in the retrieval pack pulls in a third-party priority-queue library, and
// the original implementation reaches for its own BinaryHeap<Reverse<_>>
// for exactly this purpose, so there is no ecosystem library this should be
// grounded on instead.
type Timer struct {
	ExpireMs int64
	Thread   *proc.Thread
	index    int
}

type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].ExpireMs < h[j].ExpireMs }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// TimerQueue holds every sleeping thread's pending wakeup, keyed on absolute
// wakeup time in milliseconds.
type TimerQueue struct {
	mu sync.Mutex
	h  timerHeap
}

// NewTimerQueue returns an empty timer queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{}
}

// Add schedules t to wake at expireMs.
func (q *TimerQueue) Add(t *proc.Thread, expireMs int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.h, &Timer{ExpireMs: expireMs, Thread: t})
}

// CheckTimer pops and returns every thread whose wakeup time has passed
// nowMs, for the caller to hand to Scheduler.Wake (spec §4.11 "check_timer
// runs at every timer tick and wakes every expired sleeper").
func (q *TimerQueue) CheckTimer(nowMs int64) []*proc.Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []*proc.Thread
	for q.h.Len() > 0 && q.h[0].ExpireMs <= nowMs {
		t := heap.Pop(&q.h).(*Timer)
		expired = append(expired, t.Thread)
	}
	return expired
}

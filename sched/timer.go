package sched

import (
	"container/heap"
	"time"
)

// timerRecord pairs a wake instant with a task id. Ported from the
// original source's qip::async::schedule::Record (a min-heap over Instant,
// implemented there by reversing BinaryHeap's max-heap ordering).
type timerRecord struct {
	when time.Time
	id   uint64
	gen  uint64 // must match task.wakeGen at pop time, or the entry is stale
}

type timerHeap []timerRecord

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerRecord)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// popDue pops and returns every timer record due at or before now, skipping
// (and discarding) entries whose task is no longer alive or was rescheduled
// since the timer was armed (gen mismatch) — "a cancelled task is retained
// in the heap but filtered on pop via an alive set; if the popped id is not
// alive, poll recurses" (spec §4.4).
func popDue(h *timerHeap, now time.Time, isAlive func(id uint64, gen uint64) bool) []uint64 {
	var due []uint64
	for h.Len() > 0 {
		rec := (*h)[0]
		if rec.when.After(now) {
			break
		}
		heap.Pop(h)
		if isAlive(rec.id, rec.gen) {
			due = append(due, rec.id)
		}
		// else: stale entry, discard and continue popping.
	}
	return due
}

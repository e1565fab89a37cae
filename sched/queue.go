package sched

import "sync/atomic"

// wakeQueue is a bounded MPSC queue of task ids: many goroutines (transport
// readiness callbacks, timers firing on a different goroutine) may call
// WakeByRef concurrently, but only the scheduler's owner thread drains it
// from Poll. Adapted from the teacher's lock-free MPMC ring
// (core/concurrency/lock_free_queue.go), which uses the same Vyukov
// sequence-number design; kept MPMC-capable since nothing here requires
// narrowing it to MPSC.
type wakeQueue struct {
	head  uint64
	_     [cachePad]byte
	tail  uint64
	_     [cachePad]byte
	mask  uint64
	cells []wakeCell
}

const cachePad = 64

type wakeCell struct {
	sequence atomic.Uint64
	taskID   uint64
}

func newWakeQueue(capacity int) *wakeQueue {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &wakeQueue{mask: uint64(size - 1), cells: make([]wakeCell, size)}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// enqueue adds a task id to wake; returns false if the ring is full (the
// task is simply re-enqueued on the next WakeByRef, which is harmless —
// waking an already-runnable task is idempotent).
func (q *wakeQueue) enqueue(id uint64) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		idx := tail & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(tail)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.taskID = id
				c.sequence.Store(tail + 1)
				return true
			}
		case diff < 0:
			return false
		}
	}
}

func (q *wakeQueue) dequeue() (id uint64, ok bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		idx := head & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(head+1)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				id = c.taskID
				c.sequence.Store(head + q.mask + 1)
				return id, true
			}
		case diff < 0:
			return 0, false
		}
	}
}

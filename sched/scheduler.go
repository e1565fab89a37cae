// Package sched implements the cooperative scheduler that drives operation
// futures to completion: a single-threaded poll loop over a table of tasks,
// each a small state machine re-entered via Poll until it reports Ready.
package sched

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// PollStatus is the outcome of one Future.Poll call.
type PollStatus int

const (
	Pending PollStatus = iota
	Ready
)

// Future is a pollable operation. Poll must not block; on Pending it must
// arrange to be re-polled by calling WakeByRef or Sleep on the waker it was
// given (busy-progress or timer registration) before returning. A future
// must never call back into the scheduler's Poll from inside its own Poll.
type Future interface {
	Poll(w *Waker) PollStatus
}

// QToken is the opaque integer handle returned by any asynchronous
// operation, encoding a scheduler slot.
type QToken uint64

// Handle is a stable reference to one scheduled task.
type Handle struct {
	id uint64
}

// Token returns the QToken a caller sees for this handle.
func (h Handle) Token() QToken { return QToken(h.id) }

// TakeKey is a no-op marker: it exists only so that wait_any-style callers
// can inspect many handles (HasCompleted) without triggering any
// drop/release side effect, matching spec §4.4's take_key() contract.
func (h Handle) TakeKey() Handle { return h }

type taskStatus int

const (
	statusRunnable taskStatus = iota
	statusAsleep
	statusCompleted
)

type task struct {
	id      uint64
	future  Future
	status  taskStatus
	wakeGen uint64 // incremented each time the task is put to sleep; invalidates stale timer pops
}

// Scheduler is a single-threaded cooperative task runner. Futures submitted
// via Schedule are polled from Poll, which runs once per call; it is
// re-entered from the facade's wait/wait_any loops (spec §4.4).
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	tasks  map[uint64]*task
	nextID uint64
	timers timerHeap

	wake *wakeQueue
}

const defaultWakeQueueCapacity = 4096

// New constructs a Scheduler driven by the given Clock (never a global
// singleton — see DESIGN NOTES on clock/logging).
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock: clock,
		tasks: make(map[uint64]*task),
		wake:  newWakeQueue(defaultWakeQueueCapacity),
	}
}

// Schedule registers a future for polling and returns its handle. The new
// task starts Runnable so the next Poll call gives it a first chance to run.
func (s *Scheduler) Schedule(f Future) Handle {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = &task{id: id, future: f, status: statusRunnable}
	s.mu.Unlock()
	s.wake.enqueue(id)
	return Handle{id: id}
}

// GetHandle validates a QToken and returns the Handle referring to it.
func (s *Scheduler) GetHandle(qt QToken) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[uint64(qt)]
	if !ok {
		return Handle{}, false
	}
	return Handle{id: uint64(qt)}, true
}

// HasCompleted reports whether the task behind h has finished, without
// consuming it.
func (s *Scheduler) HasCompleted(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[h.id]
	return ok && t.status == statusCompleted
}

// Take removes a completed task and returns its future for result
// extraction. It is an error to Take a task that has not completed, or one
// that is unknown (already taken, or never existed).
func (s *Scheduler) Take(h Handle) (Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[h.id]
	if !ok {
		return nil, fmt.Errorf("sched: unknown or already-taken token %d", h.id)
	}
	if t.status != statusCompleted {
		return nil, fmt.Errorf("sched: token %d has not completed", h.id)
	}
	delete(s.tasks, h.id)
	return t.future, nil
}

// waker returned to a given task's Poll call.
func (s *Scheduler) wakerFor(id uint64) *Waker {
	return &Waker{sched: s, id: id}
}

// wakeByRef marks a task runnable for the next Poll pass. Safe to call from
// any goroutine.
func (s *Scheduler) wakeByRef(id uint64) {
	s.wake.enqueue(id)
}

// sleepUntil arms a timer for id and bumps its wake generation so any
// earlier, now-stale timer entry for this task is discarded when popped.
func (s *Scheduler) sleepUntil(id uint64, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	t.status = statusAsleep
	t.wakeGen++
	heap.Push(&s.timers, timerRecord{when: until, id: id, gen: t.wakeGen})
}

// Poll drains due timers into the runnable set, then polls every task that
// is runnable at the start of this call exactly once, advancing each task's
// state machine one step. It returns the number of tasks polled.
func (s *Scheduler) Poll() int {
	now := s.clock.Now()

	s.mu.Lock()
	due := popDue(&s.timers, now, func(id, gen uint64) bool {
		t, ok := s.tasks[id]
		return ok && t.status == statusAsleep && t.wakeGen == gen
	})
	for _, id := range due {
		if t, ok := s.tasks[id]; ok {
			t.status = statusRunnable
		}
	}
	s.mu.Unlock()
	for _, id := range due {
		s.wake.enqueue(id)
	}

	// Drain the wake queue into a de-duplicated runnable batch. This is the
	// "ready tasks" set for this Poll pass; anything woken during this
	// pass's Poll calls runs on the *next* Poll call, not this one.
	seen := make(map[uint64]struct{})
	var batch []uint64
	for {
		id, ok := s.wake.dequeue()
		if !ok {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, id)
	}

	polled := 0
	for _, id := range batch {
		s.mu.Lock()
		t, ok := s.tasks[id]
		if !ok || t.status == statusCompleted {
			s.mu.Unlock()
			continue
		}
		t.status = statusAsleep // default until the future proves otherwise by waking itself
		t.wakeGen++
		future := t.future
		s.mu.Unlock()

		polled++
		w := s.wakerFor(id)
		if future.Poll(w) == Ready {
			s.mu.Lock()
			if t, ok := s.tasks[id]; ok {
				t.status = statusCompleted
			}
			s.mu.Unlock()
		}
	}
	return polled
}

// Waker lets a Future arrange to be re-polled after yielding Pending. The
// scheduler owns all wakers; a future re-polls itself by calling
// WakeByRef on its own waker rather than recursing into Poll.
type Waker struct {
	sched *Scheduler
	id    uint64
}

// WakeByRef marks the owning task runnable again for the next Poll pass
// (busy-progress: used when a future wants to be retried immediately).
func (w *Waker) WakeByRef() { w.sched.wakeByRef(w.id) }

// Sleep arranges for the owning task to be woken at `until` via the timer
// heap, instead of being immediately re-runnable.
func (w *Waker) Sleep(until time.Time) { w.sched.sleepUntil(w.id, until) }

package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

// countingFuture completes after N polls, re-arming itself via WakeByRef
// each time it yields Pending.
type countingFuture struct {
	remaining int
	polls     int
}

func (c *countingFuture) Poll(w *Waker) PollStatus {
	c.polls++
	c.remaining--
	if c.remaining <= 0 {
		return Ready
	}
	w.WakeByRef()
	return Pending
}

func TestSchedulerRunsToCompletion(t *testing.T) {
	s := New(SystemClock{})
	f := &countingFuture{remaining: 3}
	h := s.Schedule(f)

	for i := 0; i < 10 && !s.HasCompleted(h); i++ {
		s.Poll()
	}
	require.True(t, s.HasCompleted(h))
	require.Equal(t, 3, f.polls)

	got, err := s.Take(h)
	require.NoError(t, err)
	require.Same(t, f, got)

	_, err = s.Take(h)
	require.Error(t, err, "token must not be extractable twice")
}

// timerFuture becomes ready only once the clock has advanced past a
// deadline, sleeping in between.
type timerFuture struct {
	deadline time.Time
	clock    *fakeClock
	done     bool
}

func (t *timerFuture) Poll(w *Waker) PollStatus {
	if !t.clock.now.Before(t.deadline) {
		t.done = true
		return Ready
	}
	w.Sleep(t.deadline)
	return Pending
}

func TestSchedulerTimerWheel(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := New(clk)
	f := &timerFuture{deadline: clk.now.Add(5 * time.Second), clock: clk}
	h := s.Schedule(f)

	s.Poll()
	require.False(t, s.HasCompleted(h), "must not complete before the deadline")

	clk.advance(10 * time.Second)
	s.Poll()
	require.True(t, s.HasCompleted(h))
}

func TestSchedulerGetHandleRejectsUnknownToken(t *testing.T) {
	s := New(SystemClock{})
	_, ok := s.GetHandle(QToken(99999))
	require.False(t, ok)
}

func TestSchedulerTakeKeyDoesNotRelease(t *testing.T) {
	s := New(SystemClock{})
	f := &countingFuture{remaining: 1}
	h := s.Schedule(f)
	s.Poll()
	require.True(t, s.HasCompleted(h))

	// Inspecting via a copy obtained through TakeKey must not consume the
	// task — the original handle must still be extractable afterward.
	inspected := h.TakeKey()
	require.True(t, s.HasCompleted(inspected))

	_, err := s.Take(h)
	require.NoError(t, err)
}

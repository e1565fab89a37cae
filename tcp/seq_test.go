package tcp

import "testing"

func TestSeqNumberWraparound(t *testing.T) {
	var near SeqNumber = 0xFFFFFFF0
	far := near.Add(32) // wraps past 0

	if !near.LessThan(far) {
		t.Fatalf("expected %d < %d across wraparound", near, far)
	}
	if far.LessThan(near) {
		t.Fatalf("did not expect %d < %d", far, near)
	}
	if got := far.Sub(near); got != 32 {
		t.Fatalf("Sub = %d, want 32", got)
	}
}

func TestSeqNumberInWindow(t *testing.T) {
	left := SeqNumber(100)
	if !SeqNumber(100).InWindow(left, 10) {
		t.Fatal("left edge should be in window")
	}
	if SeqNumber(110).InWindow(left, 10) {
		t.Fatal("right edge is exclusive")
	}
	if SeqNumber(109).InWindow(left, 10) == false {
		t.Fatal("109 should be in [100,110)")
	}
	if SeqNumber(99).InWindow(left, 10) {
		t.Fatal("99 should be outside window")
	}
}

func TestSeqNumberLessEq(t *testing.T) {
	s := SeqNumber(5)
	if !s.LessEq(s) {
		t.Fatal("s should be <= itself")
	}
	if !s.LessEq(s.Add(1)) {
		t.Fatal("s should be <= s+1")
	}
}

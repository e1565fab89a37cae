package tcp

import (
	"testing"

	"github.com/hioload/libos/buffer"
)

func TestReassemblyCoalescesContiguousRanges(t *testing.T) {
	r := NewReassembly()
	r.Insert(110, buffer.FromSlice([]byte("world")))
	r.Insert(100, buffer.FromSlice([]byte("hello")))

	merged, newRcvNxt := r.Coalesce(100)
	if !merged.IsValid() {
		t.Fatal("expected coalesced bytes")
	}
	if got := string(merged.Bytes()); got != "helloworld" {
		t.Fatalf("merged = %q, want %q", got, "helloworld")
	}
	if newRcvNxt != 115 {
		t.Fatalf("rcvNxt = %d, want 115", newRcvNxt)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after full coalesce", r.Len())
	}
}

func TestReassemblyLeavesGapUnmerged(t *testing.T) {
	r := NewReassembly()
	r.Insert(120, buffer.FromSlice([]byte("later")))

	merged, newRcvNxt := r.Coalesce(100)
	if merged.IsValid() {
		t.Fatal("did not expect a merge: gap between rcvNxt and stored range")
	}
	if newRcvNxt != 100 {
		t.Fatalf("rcvNxt = %d, want unchanged 100", newRcvNxt)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (still pending)", r.Len())
	}
}

func TestReassemblyDropsDuplicateRange(t *testing.T) {
	r := NewReassembly()
	r.Insert(100, buffer.FromSlice([]byte("hello")))
	r.Insert(100, buffer.FromSlice([]byte("hello")))
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (duplicate dropped)", r.Len())
	}
}

package xdp

import (
	"errors"
	"testing"

	"github.com/hioload/libos/transport"
)

func TestBindReservesUmemRegion(t *testing.T) {
	a := New(RingConfig{NumChunks: 4, ChunkSize: 256, Headroom: 16})
	h, err := a.Bind("eth0", 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	stats := h.Stats()
	if stats.NumChunks != 4 || stats.ChunkSize != 256 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	buf, ok := h.Reserve()
	if !ok {
		t.Fatal("expected a chunk to be available")
	}
	if buf.Capacity() != 256 {
		t.Fatalf("capacity = %d, want %d", buf.Capacity(), 256)
	}
	buf.Release()
}

func TestVerbsReportNotSupported(t *testing.T) {
	a := New(DefaultRingConfig())
	h, err := a.Bind("eth0", 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if _, _, err := a.Accept(h); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("Accept err = %v, want ErrNotSupported", err)
	}
	if err := a.Connect(h, transport.Endpoint{}); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("Connect err = %v, want ErrNotSupported", err)
	}
	if _, err := a.Recv(h, make([]byte, 16)); !errors.Is(err, transport.ErrNotSupported) {
		t.Fatalf("Recv err = %v, want ErrNotSupported", err)
	}
}

func TestVerbsRejectForeignHandle(t *testing.T) {
	a := New(DefaultRingConfig())
	if _, _, err := a.Accept(nil); !errors.Is(err, transport.ErrBadDescriptor) {
		t.Fatalf("err = %v, want ErrBadDescriptor", err)
	}
}

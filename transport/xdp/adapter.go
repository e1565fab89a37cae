package xdp

import (
	"fmt"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/transport"
)

// RingConfig describes the fixed-size UMEM region and descriptor ring
// depths an AF_XDP socket would register with the kernel.
type RingConfig struct {
	NumChunks    int
	ChunkSize    int
	Headroom     int
	FillQueueLen int
	CompQueueLen int
}

// DefaultRingConfig matches the chunk sizing libxdp itself defaults to
// (2048-byte frames, 4096-descriptor rings).
func DefaultRingConfig() RingConfig {
	return RingConfig{
		NumChunks:    4096,
		ChunkSize:    2048,
		Headroom:     256,
		FillQueueLen: 4096,
		CompQueueLen: 4096,
	}
}

// Handle names an AF_XDP socket bound to one (interface, queue) pair. It
// never becomes a live kernel object in this build — Bind opens no kernel
// socket — but it carries the UMEM region so callers can
// exercise the buffer-checkout path independently of a NIC driver.
type Handle struct {
	ifname   string
	queueID  int
	umem     *buffer.Umem
	fillHead int
	compHead int
}

// Adapter implements transport.Verbs against an AF_XDP UMEM region. No pack
// repo and no fragment under the reference implementation's
// catpowder/win/ring tree carries a working xsk_socket or NDIS binding, so
// every verb here documents the intended call shape and returns
// transport.ErrNotSupported — except the UMEM checkout path, which is real
// and exercises buffer.Umem the same way a live driver's fill ring would.
type Adapter struct {
	cfg RingConfig
}

// New creates an Adapter that will carve UMEM regions per cfg for any
// handle it binds.
func New(cfg RingConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

// Bind registers a UMEM region for ifname/queueID and returns a Handle
// wrapping it. No kernel socket is created.
func (a *Adapter) Bind(ifname string, queueID int) (*Handle, error) {
	return &Handle{
		ifname:  ifname,
		queueID: queueID,
		umem:    buffer.NewUmem(a.cfg.NumChunks, a.cfg.ChunkSize, a.cfg.Headroom),
	}, nil
}

// Reserve checks out one UMEM chunk for the fill ring, the same allocation
// a real AF_XDP rx path would hand the kernel for an incoming frame.
func (h *Handle) Reserve() (buffer.Buffer, bool) {
	return h.umem.Checkout()
}

// Stats reports the handle's UMEM region metadata.
func (h *Handle) Stats() buffer.UmemStats {
	return h.umem.Stats()
}

func toHandle(h transport.Handle) (*Handle, error) {
	x, ok := h.(*Handle)
	if !ok || x == nil {
		return nil, fmt.Errorf("xdp: %w", transport.ErrBadDescriptor)
	}
	return x, nil
}

// Accept implements transport.Verbs. AF_XDP is a raw frame transport with
// no listen/accept model; always unsupported.
func (a *Adapter) Accept(h transport.Handle) (transport.Handle, transport.Endpoint, error) {
	if _, err := toHandle(h); err != nil {
		return nil, transport.Endpoint{}, err
	}
	return nil, transport.Endpoint{}, fmt.Errorf("xdp: accept: %w", transport.ErrNotSupported)
}

// Connect implements transport.Verbs. Always unsupported: no live
// xsk_socket bind path exists in this build.
func (a *Adapter) Connect(h transport.Handle, remote transport.Endpoint) error {
	if _, err := toHandle(h); err != nil {
		return err
	}
	return fmt.Errorf("xdp: connect: %w", transport.ErrNotSupported)
}

// Send implements transport.Verbs. Documents the intended path: checkout a
// UMEM chunk, copy b into it, post the descriptor to the tx ring. The tx
// ring post is the part with no driver binding.
func (a *Adapter) Send(h transport.Handle, b []byte) (int, error) {
	x, err := toHandle(h)
	if err != nil {
		return 0, err
	}
	chunk, ok := x.Reserve()
	if !ok {
		return 0, fmt.Errorf("xdp: send: %w", transport.ErrResourceBusy)
	}
	defer chunk.Release()
	return 0, fmt.Errorf("xdp: send: %w", transport.ErrNotSupported)
}

// SendTo implements transport.Verbs; same limitation as Send.
func (a *Adapter) SendTo(h transport.Handle, remote transport.Endpoint, b []byte) (int, error) {
	return a.Send(h, b)
}

// Recv implements transport.Verbs; no live rx ring to drain.
func (a *Adapter) Recv(h transport.Handle, b []byte) (int, error) {
	if _, err := toHandle(h); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("xdp: recv: %w", transport.ErrNotSupported)
}

// RecvFrom implements transport.Verbs; same limitation as Recv.
func (a *Adapter) RecvFrom(h transport.Handle, b []byte) (int, transport.Endpoint, error) {
	n, err := a.Recv(h, b)
	return n, transport.Endpoint{}, err
}

// Close implements transport.Verbs. Releasing the UMEM region itself
// happens when the Handle is dropped; there is no kernel object to tear
// down.
func (a *Adapter) Close(h transport.Handle) error {
	_, err := toHandle(h)
	return err
}

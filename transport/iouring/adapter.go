package iouring

import (
	"fmt"
	"sync"

	"github.com/hioload/libos/transport"
)

// FD is the Handle kind this adapter hands out.
type FD struct {
	fd int

	mu      sync.Mutex
	inflight map[uint64]*op // keyed by userData, one entry per concurrently outstanding verb
}

type op struct {
	key   string
	res   int32
	ready bool
	buf   []byte
}

// Adapter implements transport.Verbs on top of one shared io_uring Ring.
// Every verb call either submits a fresh SQE (first call for that logical
// operation) or peeks the ring for completions and checks whether its own
// operation landed — matching the "poll repeatedly until ready" shape
// opfuture's futures already expect.
type Adapter struct {
	mu      sync.Mutex
	ring    Ring
	nextID  uint64
	waiting map[uint64]*FD // userData -> owning handle, for routing completions
}

// New wraps a Ring of the given submission-queue depth.
func New(entries uint32) (*Adapter, error) {
	ring, err := NewRing(entries)
	if err != nil {
		return nil, err
	}
	return &Adapter{ring: ring, waiting: make(map[uint64]*FD)}, nil
}

func toFD(h transport.Handle) (*FD, error) {
	f, ok := h.(*FD)
	if !ok || f == nil {
		return nil, fmt.Errorf("iouring: %w", transport.ErrBadDescriptor)
	}
	return f, nil
}

// NewHandle wraps a raw fd (already opened and registered with the kernel
// by the caller, e.g. via kernelsocket.Adapter.Listen) for use over this
// ring.
func (a *Adapter) NewHandle(fd int) *FD {
	return &FD{fd: fd, inflight: make(map[uint64]*op)}
}

// drain pulls every completion currently available out of the ring and
// files each under its owning handle.
func (a *Adapter) drain() {
	for {
		ud, res, _, ok := a.ring.PeekCQE()
		if !ok {
			return
		}
		a.mu.Lock()
		f := a.waiting[ud]
		delete(a.waiting, ud)
		a.mu.Unlock()
		if f == nil {
			continue
		}
		f.mu.Lock()
		if o, ok := f.inflight[ud]; ok {
			o.res = res
			o.ready = true
		}
		f.mu.Unlock()
	}
}

// submitOnce finds an in-flight operation tagged key on f for the same
// buffer (nil for accept/connect), submitting a fresh SQE via prep if none
// exists yet. It returns the completion result
// once ready, or ErrWouldBlock while still pending.
func (a *Adapter) submitOnce(f *FD, key string, buf []byte, prep func(userData uint64) error) (int32, error) {
	a.drain()

	f.mu.Lock()
	if f.inflight == nil {
		f.inflight = make(map[uint64]*op)
	}
	var found *op
	var foundID uint64
	for id, o := range f.inflight {
		if o.key == key && bufPtr(o.buf) == bufPtr(buf) {
			found, foundID = o, id
			break
		}
	}
	f.mu.Unlock()
	_ = foundID

	if found != nil {
		if found.ready {
			f.mu.Lock()
			delete(f.inflight, foundID)
			f.mu.Unlock()
			if found.res < 0 {
				return 0, fmt.Errorf("iouring: op failed: errno %d", -found.res)
			}
			return found.res, nil
		}
		return 0, transport.ErrWouldBlock
	}

	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.mu.Unlock()

	if err := prep(id); err != nil {
		return 0, err
	}
	if err := a.ring.Submit(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.inflight[id] = &op{key: key, buf: buf}
	f.mu.Unlock()
	a.mu.Lock()
	a.waiting[id] = f
	a.mu.Unlock()

	return 0, transport.ErrWouldBlock
}

func bufPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

// Accept implements transport.Verbs. The remote endpoint is not reported:
// it is always the zero Endpoint.
func (a *Adapter) Accept(h transport.Handle) (transport.Handle, transport.Endpoint, error) {
	f, err := toFD(h)
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	res, err := a.submitOnce(f, "accept", nil, func(id uint64) error {
		return a.ring.PrepareAccept(f.fd, id)
	})
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	return a.NewHandle(int(res)), transport.Endpoint{}, nil
}

// Connect implements transport.Verbs.
func (a *Adapter) Connect(h transport.Handle, remote transport.Endpoint) error {
	f, err := toFD(h)
	if err != nil {
		return err
	}
	_, err = a.submitOnce(f, "connect", nil, func(id uint64) error {
		return a.ring.PrepareConnect(f.fd, remote.IP, remote.Port, id)
	})
	return err
}

// Send implements transport.Verbs.
func (a *Adapter) Send(h transport.Handle, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	res, err := a.submitOnce(f, "send", b, func(id uint64) error {
		return a.ring.PrepareSend(f.fd, b, id)
	})
	return int(res), err
}

// SendTo implements transport.Verbs.
func (a *Adapter) SendTo(h transport.Handle, remote transport.Endpoint, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	res, err := a.submitOnce(f, "sendto", b, func(id uint64) error {
		return a.ring.PrepareSendTo(f.fd, remote.IP, remote.Port, b, id)
	})
	return int(res), err
}

// Recv implements transport.Verbs.
func (a *Adapter) Recv(h transport.Handle, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	res, err := a.submitOnce(f, "recv", b, func(id uint64) error {
		return a.ring.PrepareRecv(f.fd, b, id)
	})
	return int(res), err
}

// RecvFrom implements transport.Verbs. The sender is not reported: it is
// always the zero Endpoint.
func (a *Adapter) RecvFrom(h transport.Handle, b []byte) (int, transport.Endpoint, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, transport.Endpoint{}, err
	}
	res, err := a.submitOnce(f, "recvfrom", b, func(id uint64) error {
		return a.ring.PrepareRecvFrom(f.fd, b, id)
	})
	return int(res), transport.Endpoint{}, err
}

// Close implements transport.Verbs.
func (a *Adapter) Close(h transport.Handle) error {
	_, err := toFD(h)
	if err != nil {
		return err
	}
	return nil
}

// CloseRing releases the underlying io_uring instance.
func (a *Adapter) CloseRing() error {
	return a.ring.Close()
}

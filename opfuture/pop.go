package opfuture

import (
	"errors"
	"fmt"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// PopFuture drives transport.Verbs.Recv/RecvFrom to completion, checking
// out one receive buffer from pool up front — per spec §7, pool exhaustion
// completes the pop with Failed(ENOMEM) rather than blocking.
type PopFuture struct {
	base

	verbs    transport.Verbs
	handle   transport.Handle
	pool     buffer.Allocator
	readSize int
	fromAddr bool // true selects RecvFrom (datagram), false Recv (stream)

	done   bool
	result Result
}

// NewPop builds a stream-oriented pop: verbs.Recv(handle, buf).
func NewPop(originQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, pool buffer.Allocator, readSize int) *PopFuture {
	return &PopFuture{base: base{qd: originQD}, verbs: verbs, handle: handle, pool: pool, readSize: readSize}
}

// NewPopFrom builds a datagram-oriented pop: verbs.RecvFrom(handle, buf),
// which also reports the peer address in the resulting SGArray.
func NewPopFrom(originQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, pool buffer.Allocator, readSize int) *PopFuture {
	return &PopFuture{base: base{qd: originQD}, verbs: verbs, handle: handle, pool: pool, readSize: readSize, fromAddr: true}
}

// Poll implements sched.Future.
func (f *PopFuture) Poll(w *sched.Waker) sched.PollStatus {
	if f.done {
		return sched.Ready
	}

	buf, ok := f.pool.CheckoutSized(f.readSize)
	if !ok {
		f.result = Failed(f.qd, f.qt, fmt.Errorf("opfuture: pop: %w", transport.ErrOutOfMemory))
		f.done = true
		return sched.Ready
	}

	var n int
	var remote transport.Endpoint
	var err error
	if f.fromAddr {
		n, remote, err = f.verbs.RecvFrom(f.handle, buf.Bytes())
	} else {
		n, err = f.verbs.Recv(f.handle, buf.Bytes())
	}
	if err != nil {
		buf.Release()
		if errors.Is(err, transport.ErrWouldBlock) {
			w.WakeByRef()
			return sched.Pending
		}
		f.result = Failed(f.qd, f.qt, err)
		f.done = true
		return sched.Ready
	}

	buf.SetLen(n)
	f.result = Result{
		Opcode: OpPop,
		QD:     f.qd,
		QT:     f.qt,
		SG: SGArray{
			Segments: []Segment{{Buf: buf}},
			Addr:     remote,
		},
	}
	f.done = true
	return sched.Ready
}

// Result implements Operation.
func (f *PopFuture) Result() Result { return f.result }

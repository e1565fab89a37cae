package opfuture

import (
	"errors"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// PushFuture drives one buffer's worth of transport.Verbs.Send to
// completion. Operations on the same QDesc complete in submission order
// only for the same verb (spec §5); neither this future nor the façade's
// Push checks for a push already pending on the same QDesc.
type PushFuture struct {
	base

	verbs  transport.Verbs
	handle transport.Handle
	remote *transport.Endpoint // nil for Push, set for Pushto
	buf    buffer.Buffer

	sent   int
	done   bool
	result Result
}

// NewPush builds a connection-oriented push: verbs.Send(handle, buf).
func NewPush(originQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, buf buffer.Buffer) *PushFuture {
	return &PushFuture{base: base{qd: originQD}, verbs: verbs, handle: handle, buf: buf}
}

// NewPushTo builds a datagram push: verbs.SendTo(handle, remote, buf).
func NewPushTo(originQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, remote transport.Endpoint, buf buffer.Buffer) *PushFuture {
	return &PushFuture{base: base{qd: originQD}, verbs: verbs, handle: handle, remote: &remote, buf: buf}
}

// Poll implements sched.Future.
func (f *PushFuture) Poll(w *sched.Waker) sched.PollStatus {
	if f.done {
		return sched.Ready
	}

	remaining := f.buf.Bytes()[f.sent:]
	if len(remaining) == 0 {
		f.result = Result{Opcode: OpPush, QD: f.qd, QT: f.qt}
		f.done = true
		return sched.Ready
	}

	var n int
	var err error
	if f.remote != nil {
		n, err = f.verbs.SendTo(f.handle, *f.remote, remaining)
	} else {
		n, err = f.verbs.Send(f.handle, remaining)
	}
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			w.WakeByRef()
			return sched.Pending
		}
		f.result = Failed(f.qd, f.qt, err)
		f.done = true
		return sched.Ready
	}

	f.sent += n
	if f.sent >= f.buf.Len() {
		f.result = Result{Opcode: OpPush, QD: f.qd, QT: f.qt}
		f.done = true
		return sched.Ready
	}
	w.WakeByRef()
	return sched.Pending
}

// Result implements Operation.
func (f *PushFuture) Result() Result { return f.result }

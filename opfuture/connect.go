package opfuture

import (
	"errors"

	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// ConnectFuture drives transport.Verbs.Connect to completion. The kernel
// socket adapter folds the SO_ERROR probe for an in-progress connect into
// repeated calls to Connect itself, so this future just keeps calling it
// until it stops reporting WouldBlock.
type ConnectFuture struct {
	base

	verbs  transport.Verbs
	handle transport.Handle
	remote transport.Endpoint

	done   bool
	result Result
}

// NewConnect builds a Connect operation for originQD against handle.
func NewConnect(originQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, remote transport.Endpoint) *ConnectFuture {
	return &ConnectFuture{base: base{qd: originQD}, verbs: verbs, handle: handle, remote: remote}
}

// Poll implements sched.Future.
func (f *ConnectFuture) Poll(w *sched.Waker) sched.PollStatus {
	if f.done {
		return sched.Ready
	}
	err := f.verbs.Connect(f.handle, f.remote)
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			w.WakeByRef()
			return sched.Pending
		}
		f.result = Failed(f.qd, f.qt, err)
		f.done = true
		return sched.Ready
	}
	f.result = Result{Opcode: OpConnect, QD: f.qd, QT: f.qt}
	f.done = true
	return sched.Ready
}

// Result implements Operation.
func (f *ConnectFuture) Result() Result { return f.result }

package opfuture

import (
	"errors"

	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// AcceptFuture drives transport.Verbs.Accept to completion, allocating a
// fresh QDesc for the new connection once the transport hands back a live
// handle.
type AcceptFuture struct {
	base

	verbs   transport.Verbs
	handle  transport.Handle
	table   *qd.Table
	newKind qd.Kind

	done   bool
	result Result
}

// NewAccept builds an Accept operation against the listening handle bound
// to listenQD; a successful completion allocates a new QDesc of newKind in
// table for the accepted connection.
func NewAccept(listenQD qd.QDesc, verbs transport.Verbs, handle transport.Handle, table *qd.Table, newKind qd.Kind) *AcceptFuture {
	return &AcceptFuture{
		base:    base{qd: listenQD},
		verbs:   verbs,
		handle:  handle,
		table:   table,
		newKind: newKind,
	}
}

// Poll implements sched.Future.
func (f *AcceptFuture) Poll(w *sched.Waker) sched.PollStatus {
	if f.done {
		return sched.Ready
	}
	newHandle, remote, err := f.verbs.Accept(f.handle)
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			w.WakeByRef()
			return sched.Pending
		}
		f.result = Failed(f.qd, f.qt, err)
		f.done = true
		return sched.Ready
	}
	newQD := f.table.Alloc(f.newKind, newHandle)
	f.result = Result{
		Opcode: OpAccept,
		QD:     f.qd,
		QT:     f.qt,
		Accept: AcceptResult{QD: newQD, Addr: remote},
	}
	f.done = true
	return sched.Ready
}

// Result implements Operation.
func (f *AcceptFuture) Result() Result { return f.result }

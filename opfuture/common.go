package opfuture

import (
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
)

// base carries the bookkeeping every operation future needs regardless of
// opcode: which QDesc it was issued against and the QToken the scheduler
// assigned it. The façade calls SetToken immediately after scheduling,
// since the token is only known once Schedule returns a Handle.
type base struct {
	qd qd.QDesc
	qt sched.QToken
}

// SetToken records the QToken the scheduler assigned this operation.
func (b *base) SetToken(qt sched.QToken) { b.qt = qt }

package opfuture

import (
	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// Opcode tags which arm of Result's value union is active.
type Opcode int

const (
	OpConnect Opcode = iota
	OpAccept
	OpPush
	OpPop
	OpFailed
)

func (o Opcode) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	case OpPush:
		return "push"
	case OpPop:
		return "pop"
	case OpFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AcceptResult is the value union arm for a completed Accept.
type AcceptResult struct {
	QD   qd.QDesc
	Addr transport.Endpoint
}

// Segment is one span of an SGArray, grounded on spec §6's
// `{ptr, len}` scatter-gather element.
type Segment struct {
	Buf buffer.Buffer
}

// SGArray is the value union arm for a completed Pop: a scatter-gather
// descriptor plus the peer address the data arrived from (for UDP-style
// pops; zero for stream sockets).
type SGArray struct {
	Segments []Segment
	Addr     transport.Endpoint
}

// Result is the fixed qresult record every operation packs into: opcode,
// originating QDesc, QToken, and a union whose active arm Opcode selects.
// Exactly one of Accept/SG is meaningful, selected by Opcode; Push/Connect
// completions leave both zeroed per spec §6.
type Result struct {
	Opcode Opcode
	QD     qd.QDesc
	QT     sched.QToken
	Err    error

	Accept AcceptResult
	SG     SGArray
}

// Failed builds an OpFailed Result with err attached, per spec §7 ("errors
// are values, not exceptions").
func Failed(qd_ qd.QDesc, qt sched.QToken, err error) Result {
	return Result{Opcode: OpFailed, QD: qd_, QT: qt, Err: err}
}

// Operation is any future the façade can schedule and later pack a Result
// from, once the scheduler reports it Ready.
type Operation interface {
	sched.Future
	Result() Result
}

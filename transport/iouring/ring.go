package iouring

// Ring is the minimal io_uring surface the adapter needs: prepare one
// submission queue entry per verb, flush it, and non-blockingly peek for a
// matching completion by user-data tag. Modeled on ehrlich-b-go-ublk's
// internal/uring.Ring, narrowed to socket verbs instead of ublk control/IO
// commands.
type Ring interface {
	Close() error

	PrepareAccept(fd int, userData uint64) error
	PrepareConnect(fd int, ip [4]byte, port uint16, userData uint64) error
	PrepareSend(fd int, buf []byte, userData uint64) error
	PrepareSendTo(fd int, ip [4]byte, port uint16, buf []byte, userData uint64) error
	PrepareRecv(fd int, buf []byte, userData uint64) error
	PrepareRecvFrom(fd int, buf []byte, userData uint64) error

	// Submit flushes any prepared-but-unsubmitted SQEs with one
	// io_uring_enter call.
	Submit() error

	// PeekCQE non-blockingly checks for one completion. ok is false if none
	// is ready yet.
	PeekCQE() (userData uint64, res int32, flags uint32, ok bool)
}

// NewRing is provided by ring_giouring.go (build tag "giouring") or
// ring_stub.go (default build).

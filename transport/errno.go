// Package transport defines the verb contract every pluggable I/O backend
// (kernel sockets, io_uring, XDP, the in-process TCP engine) must implement,
// plus the errno surface those verbs report.
package transport

import "errors"

// Sentinel errors surfaced to callers, per spec §6/§7. Transport-specific
// errno values that don't map onto one of these are wrapped and forwarded
// verbatim via %w.
var (
	// ErrWouldBlock means the operation is not ready yet; the caller's
	// future should re-arm its waker and yield Pending.
	ErrWouldBlock = errors.New("transport: operation would block")

	ErrBadDescriptor   = errors.New("transport: bad descriptor")
	ErrInvalidArgument = errors.New("transport: invalid argument")
	ErrNotSupported    = errors.New("transport: not supported")
	ErrResourceBusy    = errors.New("transport: resource exhausted")
	ErrConnReset       = errors.New("transport: connection reset")
	ErrConnRefused     = errors.New("transport: connection refused")
	ErrClosed          = errors.New("transport: transport closed")

	// ErrOutOfMemory is ENOMEM: the buffer pool or UMEM region has no chunk
	// available. A pop that fails with this completes the operation rather
	// than blocking (spec §7); the caller may retry after a release.
	ErrOutOfMemory = errors.New("transport: pool exhausted")
)

// IsWouldBlock reports whether err indicates "not ready yet" rather than a
// fatal failure (POSIX EWOULDBLOCK/EAGAIN, or an adapter-specific
// equivalent wrapping it).
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

package transport

// Endpoint is a minimal IPv4 socket address, the transport-agnostic
// equivalent of the wire format's sockaddr_in.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// Handle is an opaque, transport-specific resource: a raw file descriptor
// for the kernel-socket adapter, an io_uring-registered fd + ring slot for
// the io_uring adapter, a UMEM-ring queue-pair index for XDP, or a
// *tcp.ConnHandle / *tcp.ListenHandle for the in-process TCP engine.
type Handle interface{}

// Verbs is the non-blocking I/O surface every transport adapter provides,
// per spec §4.5/§6. Every method must return immediately: "not ready" is
// reported as ErrWouldBlock, never by blocking the caller.
type Verbs interface {
	// Accept completes with a new handle and the remote endpoint for one
	// pending connection on a listening handle, or ErrWouldBlock.
	Accept(h Handle) (newHandle Handle, remote Endpoint, err error)

	// Connect begins or continues a non-blocking connect to remote.
	Connect(h Handle, remote Endpoint) error

	// Send attempts to write b in full; a partial write returns the count
	// actually written with a nil error so the caller can retry the rest.
	Send(h Handle, b []byte) (int, error)

	// SendTo is Send's datagram counterpart, with an explicit destination.
	SendTo(h Handle, remote Endpoint, b []byte) (int, error)

	// Recv reads into b, returning the number of bytes read. A read of 0
	// bytes with a nil error signals an orderly shutdown (peer FIN / EOF).
	Recv(h Handle, b []byte) (int, error)

	// RecvFrom is Recv's datagram counterpart, reporting the sender.
	RecvFrom(h Handle, b []byte) (int, Endpoint, error)

	// Close releases the transport-specific resources behind h.
	Close(h Handle) error
}

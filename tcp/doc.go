// Package tcp implements the user-space TCP protocol engine: a per
// connection state machine driving congestion-controlled, reliable
// byte-stream delivery over raw Ethernet frames. It is the deepest
// subsystem in this module — ControlBlock owns the send/receive queues,
// retransmission timer, congestion and flow control, and exposes the same
// transport.Verbs contract kernel sockets and io_uring do, so operation
// futures drive it without any TCP-specific code in opfuture.
//
// Grounded on core/protocol's wire-codec idiom (big-endian binary.Write/
// Read, errors.New for malformed input) generalized from WebSocket framing
// to Ethernet/IPv4/TCP framing, and on the reference implementation's
// naming (SeqNumber, ControlBlock, QDesc) preserved where it names the same
// concept.
package tcp

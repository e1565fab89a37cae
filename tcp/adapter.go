package tcp

import (
	"fmt"

	"github.com/hioload/libos/transport"
)

// ListenHandle is the Handle an Adapter hands out for a listening port; it
// is only ever passed to Accept and Close.
type ListenHandle struct {
	engine   *Engine
	listener *Listener
	port     uint16
}

// ConnHandle is the Handle an Adapter hands out for one TCP connection,
// whether from an active Connect or an accepted passive open.
type ConnHandle struct {
	engine *Engine
	cb     *ControlBlock
}

// Adapter implements transport.Verbs on top of the in-process Engine, so
// operation futures drive a user-space TCP connection through exactly the
// same Accept/Connect/Send/Recv surface they use for kernel sockets or
// io_uring (spec §4.5, "ControlBlock as a transport.Verbs backend").
type Adapter struct {
	engine *Engine
}

// NewAdapter wraps engine behind transport.Verbs.
func NewAdapter(engine *Engine) *Adapter {
	return &Adapter{engine: engine}
}

// Listen registers a listening port on the underlying engine and returns
// the Handle to pass to Accept.
func (a *Adapter) Listen(localPort uint16, backlog int) (*ListenHandle, error) {
	l, err := a.engine.Listen(localPort, backlog)
	if err != nil {
		return nil, err
	}
	return &ListenHandle{engine: a.engine, listener: l, port: localPort}, nil
}

// Dial begins an active open to remote and returns the Handle to drive it
// through Connect/Send/Recv.
func (a *Adapter) Dial(remote transport.Endpoint) *ConnHandle {
	cb := a.engine.Connect(remote)
	return &ConnHandle{engine: a.engine, cb: cb}
}

func toConn(h transport.Handle) (*ConnHandle, error) {
	c, ok := h.(*ConnHandle)
	if !ok || c == nil {
		return nil, fmt.Errorf("tcp: %w: not a connection handle", transport.ErrBadDescriptor)
	}
	return c, nil
}

func toListen(h transport.Handle) (*ListenHandle, error) {
	l, ok := h.(*ListenHandle)
	if !ok || l == nil {
		return nil, fmt.Errorf("tcp: %w: not a listen handle", transport.ErrBadDescriptor)
	}
	return l, nil
}

// Accept implements transport.Verbs: it completes with a connection that
// finished its three-way handshake and is waiting in the listener's
// backlog.
func (a *Adapter) Accept(h transport.Handle) (transport.Handle, transport.Endpoint, error) {
	l, err := toListen(h)
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	cb, remote, err := l.listener.Accept()
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	l.engine.Adopt(cb)
	return &ConnHandle{engine: l.engine, cb: cb}, remote, nil
}

// Connect implements transport.Verbs. The handshake was already started by
// Dial; this reports its progress (ErrWouldBlock until Established, the
// connect error if the peer reset).
func (a *Adapter) Connect(h transport.Handle, remote transport.Endpoint) error {
	c, err := toConn(h)
	if err != nil {
		return err
	}
	switch c.cb.State() {
	case StateEstablished:
		return nil
	case StateClosed:
		return transport.ErrConnRefused
	default:
		return transport.ErrWouldBlock
	}
}

// Send implements transport.Verbs, queuing b onto the connection's send
// buffer.
func (a *Adapter) Send(h transport.Handle, b []byte) (int, error) {
	c, err := toConn(h)
	if err != nil {
		return 0, err
	}
	return c.cb.Push(b)
}

// SendTo is not meaningful for a connection-oriented TCP handle.
func (a *Adapter) SendTo(h transport.Handle, remote transport.Endpoint, b []byte) (int, error) {
	return 0, fmt.Errorf("tcp: %w: SendTo on a stream connection", transport.ErrInvalidArgument)
}

// Recv implements transport.Verbs.
func (a *Adapter) Recv(h transport.Handle, b []byte) (int, error) {
	c, err := toConn(h)
	if err != nil {
		return 0, err
	}
	return c.cb.Pop(b)
}

// RecvFrom is not meaningful for a connection-oriented TCP handle.
func (a *Adapter) RecvFrom(h transport.Handle, b []byte) (int, transport.Endpoint, error) {
	return 0, transport.Endpoint{}, fmt.Errorf("tcp: %w: RecvFrom on a stream connection", transport.ErrInvalidArgument)
}

// Close implements transport.Verbs: a connection handle begins the
// four-way close, a listen handle stops accepting new connections.
func (a *Adapter) Close(h transport.Handle) error {
	if c, err := toConn(h); err == nil {
		return c.cb.Close()
	}
	if l, err := toListen(h); err == nil {
		l.engine.Unlisten(l.port)
		return nil
	}
	return fmt.Errorf("tcp: %w", transport.ErrBadDescriptor)
}

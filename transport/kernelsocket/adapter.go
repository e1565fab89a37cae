// Package kernelsocket implements the transport.Verbs contract on top of
// ordinary non-blocking Linux/BSD sockets, grounded on the teacher's
// transport/tcp/listener.go accept-loop shape and reactor/epoll_reactor.go
// readiness polling.
package kernelsocket

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/hioload/libos/transport"
)

// FD is the Handle kind this adapter hands out: a bare, non-blocking file
// descriptor, optionally an epoll-registered one.
type FD struct {
	fd int
	// connecting marks a handle mid non-blocking connect, so a repeat
	// Connect call knows to probe SO_ERROR instead of calling connect(2)
	// again (which would return EISCONN/EALREADY).
	connecting bool
}

// Raw exposes the underlying descriptor, e.g. for epoll registration.
func (f *FD) Raw() int { return f.fd }

// Adapter implements transport.Verbs over raw non-blocking sockets.
type Adapter struct {
	poller *EpollPoller // nil if epoll is unavailable on this platform
}

// New constructs a kernel-socket Adapter, wiring an epoll-based readiness
// poller where available so callers can avoid busy-spinning on EAGAIN.
func New() (*Adapter, error) {
	p, err := newEpollPoller()
	if err != nil {
		return &Adapter{}, nil //nolint:nilerr // epoll unavailable: fall back to busy-progress.
	}
	return &Adapter{poller: p}, nil
}

// Poller exposes the readiness poller (nil on platforms without epoll).
// The LibOS facade does not call it; nothing in this module drives it.
func (a *Adapter) Poller() *EpollPoller { return a.poller }

func toFD(h transport.Handle) (*FD, error) {
	fd, ok := h.(*FD)
	if !ok || fd == nil {
		return nil, fmt.Errorf("kernelsocket: %w", transport.ErrBadDescriptor)
	}
	return fd, nil
}

func sockaddrOf(e transport.Endpoint) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Addr: e.IP, Port: int(e.Port)}
}

func endpointOf(sa unix.Sockaddr) transport.Endpoint {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return transport.Endpoint{IP: in4.Addr, Port: uint16(in4.Port)}
	}
	return transport.Endpoint{}
}

// Listen creates a non-blocking, listening TCP socket bound to addr.
func (a *Adapter) Listen(addr transport.Endpoint, backlog int) (*FD, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("kernelsocket: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernelsocket: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sockaddrOf(addr)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernelsocket: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernelsocket: listen: %w", err)
	}
	return &FD{fd: fd}, nil
}

// Dial creates a fresh non-blocking socket for an outbound connect.
func (a *Adapter) Dial() (*FD, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("kernelsocket: socket: %w", err)
	}
	return &FD{fd: fd}, nil
}

// Accept implements transport.Verbs.
func (a *Adapter) Accept(h transport.Handle) (transport.Handle, transport.Endpoint, error) {
	f, err := toFD(h)
	if err != nil {
		return nil, transport.Endpoint{}, err
	}
	nfd, sa, err := unix.Accept4(f.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, transport.Endpoint{}, transport.ErrWouldBlock
		}
		return nil, transport.Endpoint{}, fmt.Errorf("kernelsocket: accept: %w", err)
	}
	return &FD{fd: nfd}, endpointOf(sa), nil
}

// Connect implements transport.Verbs.
func (a *Adapter) Connect(h transport.Handle, remote transport.Endpoint) error {
	f, err := toFD(h)
	if err != nil {
		return err
	}
	if !f.connecting {
		f.connecting = true
		err := unix.Connect(f.fd, sockaddrOf(remote))
		if err == nil {
			return nil
		}
		if err == unix.EINPROGRESS {
			return transport.ErrWouldBlock
		}
		return fmt.Errorf("kernelsocket: connect: %w", err)
	}
	// Second and later calls: probe SO_ERROR rather than calling connect(2)
	// again, per spec §4.3 ("probe with getsockopt(SO_ERROR)").
	soErr, gerr := unix.GetsockoptInt(f.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return fmt.Errorf("kernelsocket: getsockopt SO_ERROR: %w", gerr)
	}
	switch soErr {
	case 0:
		return nil
	case int(unix.EINPROGRESS), int(unix.EALREADY):
		return transport.ErrWouldBlock
	case int(unix.ECONNREFUSED):
		return transport.ErrConnRefused
	default:
		return fmt.Errorf("kernelsocket: connect: %w", unix.Errno(soErr))
	}
}

// Send implements transport.Verbs.
func (a *Adapter) Send(h transport.Handle, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	n, err := unix.Write(f.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, transport.ErrWouldBlock
		}
		if err == unix.ECONNRESET || err == unix.EPIPE {
			return 0, transport.ErrConnReset
		}
		return 0, fmt.Errorf("kernelsocket: send: %w", err)
	}
	return n, nil
}

// SendTo implements transport.Verbs.
func (a *Adapter) SendTo(h transport.Handle, remote transport.Endpoint, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(f.fd, b, 0, sockaddrOf(remote)); err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, transport.ErrWouldBlock
		}
		return 0, fmt.Errorf("kernelsocket: sendto: %w", err)
	}
	return len(b), nil
}

// Recv implements transport.Verbs.
func (a *Adapter) Recv(h transport.Handle, b []byte) (int, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, err
	}
	n, err := unix.Read(f.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, transport.ErrWouldBlock
		}
		if err == unix.ECONNRESET {
			return 0, transport.ErrConnReset
		}
		return 0, fmt.Errorf("kernelsocket: recv: %w", err)
	}
	return n, nil
}

// RecvFrom implements transport.Verbs.
func (a *Adapter) RecvFrom(h transport.Handle, b []byte) (int, transport.Endpoint, error) {
	f, err := toFD(h)
	if err != nil {
		return 0, transport.Endpoint{}, err
	}
	n, sa, err := unix.Recvfrom(f.fd, b, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, transport.Endpoint{}, transport.ErrWouldBlock
		}
		return 0, transport.Endpoint{}, fmt.Errorf("kernelsocket: recvfrom: %w", err)
	}
	return n, endpointOf(sa), nil
}

// Close implements transport.Verbs.
func (a *Adapter) Close(h transport.Handle) error {
	f, err := toFD(h)
	if err != nil {
		return err
	}
	if a.poller != nil {
		a.poller.Unregister(f.fd)
	}
	return unix.Close(f.fd)
}

// Package libos implements the outward-facing façade: it maps the
// Demikernel-style socket/bind/listen/accept/connect/push/pop/wait/close
// calls onto operation futures and scheduler actions, and packs their
// results into the fixed qresult record (spec §4.6/§6).
//
// Grounded on facade/hioload.go's HioloadWS: one owning struct assembled by
// New from a Config and backend selection mirroring its UseDPDK switch —
// generalized from a WebSocket server facade into the I/O-operation-core
// façade this library provides. There is no Start/Stop lifecycle: work runs
// inside Wait and WaitAny.
package libos

import (
	"fmt"
	"sync"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/opfuture"
	"github.com/hioload/libos/qd"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/tcp"
	"github.com/hioload/libos/transport"
	"github.com/hioload/libos/transport/iouring"
	"github.com/hioload/libos/transport/kernelsocket"
	"github.com/hioload/libos/transport/xdp"
	"github.com/hioload/libos/xlog"
)

// Backend selects which transport adapter drives every socket created by
// one LibOS instance, mirroring the teacher's single UseDPDK toggle
// generalized to this library's three pluggable adapters plus the
// in-process TCP engine.
type Backend int

const (
	BackendKernelSocket Backend = iota
	BackendIOUring
	BackendXDP
	BackendTCPEngine
)

func (b Backend) String() string {
	switch b {
	case BackendIOUring:
		return "io_uring"
	case BackendXDP:
		return "xdp"
	case BackendTCPEngine:
		return "tcp_engine"
	default:
		return "kernel_socket"
	}
}

// Config exposes every configurable system parameter, analogous to
// facade/hioload.go's Config.
type Config struct {
	Backend       Backend
	NUMANode      int
	IOBufferSize  int
	ListenBacklog int

	// IOUringEntries sizes the submission/completion queue when Backend is
	// BackendIOUring.
	IOUringEntries uint32

	// XDPInterface/XDPQueue select the (interface, queue) pair to bind when
	// Backend is BackendXDP.
	XDPInterface string
	XDPQueue     int

	// TCPEngineMAC/TCPEngineIP name this LibOS instance's link/network
	// address when Backend is BackendTCPEngine. FrameSink transmits each
	// outgoing frame the in-process TCP engine produces — wire it to a raw
	// socket, an XDP TX ring, or (in tests) another LibOS's HandleFrame.
	TCPEngineMAC tcp.MACAddr
	TCPEngineIP  [4]byte
	FrameSink    tcp.FrameWriter

	EnableMetrics bool
}

// DefaultConfig returns a baseline configuration: kernel-socket backend,
// no NUMA pinning, a 64 KiB I/O buffer size.
func DefaultConfig() *Config {
	return &Config{
		Backend:        BackendKernelSocket,
		NUMANode:       -1,
		IOBufferSize:   64 * 1024,
		ListenBacklog:  128,
		IOUringEntries: 256,
		EnableMetrics:  true,
	}
}

// pendingSocket tracks a freshly allocated QDesc's local address between
// Socket/Bind and Listen/Connect, since the transport handle for a
// listening or outbound socket isn't created until one of those calls.
type pendingSocket struct {
	kind  qd.Kind
	local transport.Endpoint
	bound bool
}

// LibOS is the façade every caller drives: one queue-descriptor table, one
// cooperative scheduler, and one active transport backend.
type LibOS struct {
	cfg   *Config
	log   *xlog.Logger
	table *qd.Table
	sched *sched.Scheduler
	pool  buffer.Allocator

	verbs transport.Verbs

	ks       *kernelsocket.Adapter
	ring     *iouring.Adapter
	xdpA     *xdp.Adapter
	tcpAdpt  *tcp.Adapter
	tcpEng   *tcp.Engine

	mu      sync.Mutex
	pending map[qd.QDesc]*pendingSocket
}

// New assembles a LibOS instance per cfg, constructing whichever transport
// backend it names.
func New(cfg *Config) (*LibOS, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &LibOS{
		cfg:     cfg,
		log:     xlog.New(xlog.DefaultConfig()),
		table:   qd.NewTable(),
		sched:   sched.New(sched.SystemClock{}),
		pool:    buffer.NewPool(0, cfg.NUMANode),
		pending: make(map[qd.QDesc]*pendingSocket),
	}

	ks, err := kernelsocket.New()
	if err != nil {
		return nil, fmt.Errorf("libos: kernelsocket init: %w", err)
	}
	l.ks = ks

	switch cfg.Backend {
	case BackendKernelSocket:
		l.verbs = ks
	case BackendIOUring:
		ring, err := iouring.New(cfg.IOUringEntries)
		if err != nil {
			return nil, fmt.Errorf("libos: io_uring init: %w", err)
		}
		l.ring = ring
		l.verbs = ring
	case BackendXDP:
		cfgRing := xdp.DefaultRingConfig()
		l.xdpA = xdp.New(cfgRing)
		l.verbs = l.xdpA
	case BackendTCPEngine:
		l.tcpEng = tcp.NewEngine(cfg.TCPEngineMAC, cfg.TCPEngineIP, sched.SystemClock{}, cfg.FrameSink)
		l.tcpAdpt = tcp.NewAdapter(l.tcpEng)
		l.verbs = l.tcpAdpt
	default:
		return nil, fmt.Errorf("libos: %w: unknown backend %d", transport.ErrInvalidArgument, cfg.Backend)
	}

	return l, nil
}

// Engine exposes the in-process TCP engine so a caller can pump inbound
// frames via HandleFrame and drive retransmission/timeouts via Tick. Nil
// unless Backend is BackendTCPEngine.
func (l *LibOS) Engine() *tcp.Engine { return l.tcpEng }

// Scheduler exposes the cooperative scheduler, e.g. so a caller can drive
// Poll directly instead of only through Wait/WaitAny.
func (l *LibOS) Scheduler() *sched.Scheduler { return l.sched }

// Socket allocates a QDesc of the given kind. The transport resource behind
// it is created lazily: an outbound socket on the first Connect, a
// listening one on Listen.
func (l *LibOS) Socket(kind qd.Kind) (qd.QDesc, error) {
	if kind != qd.KindTCPSocket && kind != qd.KindUDPSocket {
		return 0, fmt.Errorf("libos: %w: unsupported socket kind", transport.ErrNotSupported)
	}
	qdesc := l.table.Alloc(kind, nil)
	l.mu.Lock()
	l.pending[qdesc] = &pendingSocket{kind: kind}
	l.mu.Unlock()
	return qdesc, nil
}

// Bind records the local address a subsequent Listen or Connect should use.
func (l *LibOS) Bind(q qd.QDesc, local transport.Endpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[q]
	if !ok {
		return fmt.Errorf("libos: %w", transport.ErrBadDescriptor)
	}
	p.local = local
	p.bound = true
	return nil
}

// Listen turns a bound QDesc into a listening socket, synchronously — per
// spec §4.6, bind/listen are synchronous pass-throughs to the transport,
// unlike accept/connect/push/pop which are scheduled as futures.
func (l *LibOS) Listen(q qd.QDesc, backlog int) error {
	l.mu.Lock()
	p, ok := l.pending[q]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("libos: %w", transport.ErrBadDescriptor)
	}
	if backlog <= 0 {
		backlog = l.cfg.ListenBacklog
	}

	var handle transport.Handle
	switch l.cfg.Backend {
	case BackendKernelSocket:
		fd, err := l.ks.Listen(p.local, backlog)
		if err != nil {
			return err
		}
		handle = fd
	case BackendIOUring:
		fd, err := l.ks.Listen(p.local, backlog)
		if err != nil {
			return err
		}
		handle = l.ring.NewHandle(fd.Raw())
	case BackendXDP:
		h, err := l.xdpA.Bind(l.cfg.XDPInterface, l.cfg.XDPQueue)
		if err != nil {
			return err
		}
		handle = h
	case BackendTCPEngine:
		lh, err := l.tcpAdpt.Listen(p.local.Port, backlog)
		if err != nil {
			return err
		}
		handle = lh
	}

	if err := l.table.Rebind(q, handle); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.pending, q)
	l.mu.Unlock()
	return nil
}

func (l *LibOS) handleOf(q qd.QDesc) (transport.Handle, error) {
	e, ok := l.table.Get(q)
	if !ok || e.Handle == nil {
		return nil, fmt.Errorf("libos: %w", transport.ErrBadDescriptor)
	}
	h, _ := e.Handle.(transport.Handle)
	return h, nil
}

// scheduled is any operation future that both reports its own Result and
// accepts the QToken the scheduler assigns it once Schedule returns.
type scheduled interface {
	opfuture.Operation
	SetToken(sched.QToken)
}

// schedule registers op with the scheduler, stamps its token, and returns
// the QToken the caller sees.
func (l *LibOS) schedule(op scheduled) sched.QToken {
	handle := l.sched.Schedule(op)
	qt := handle.Token()
	op.SetToken(qt)
	return qt
}

// Accept schedules an Accept future on a listening QDesc.
func (l *LibOS) Accept(q qd.QDesc) (sched.QToken, error) {
	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	op := opfuture.NewAccept(q, l.verbs, handle, l.table, qd.KindTCPSocket)
	return l.schedule(op), nil
}

// Connect allocates the outbound transport resource (if not already bound)
// and schedules a Connect future.
func (l *LibOS) Connect(q qd.QDesc, remote transport.Endpoint) (sched.QToken, error) {
	l.mu.Lock()
	_, pending := l.pending[q]
	l.mu.Unlock()

	if pending {
		var handle transport.Handle
		switch l.cfg.Backend {
		case BackendKernelSocket:
			fd, err := l.ks.Dial()
			if err != nil {
				return 0, err
			}
			handle = fd
		case BackendIOUring:
			fd, err := l.ks.Dial()
			if err != nil {
				return 0, err
			}
			handle = l.ring.NewHandle(fd.Raw())
		case BackendXDP:
			h, err := l.xdpA.Bind(l.cfg.XDPInterface, l.cfg.XDPQueue)
			if err != nil {
				return 0, err
			}
			handle = h
		case BackendTCPEngine:
			handle = l.tcpAdpt.Dial(remote)
		}
		if err := l.table.Rebind(q, handle); err != nil {
			return 0, err
		}
		l.mu.Lock()
		delete(l.pending, q)
		l.mu.Unlock()
	}

	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	op := opfuture.NewConnect(q, l.verbs, handle, remote)
	return l.schedule(op), nil
}

// Push schedules a stream push on q.
func (l *LibOS) Push(q qd.QDesc, buf buffer.Buffer) (sched.QToken, error) {
	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	if buf.Len() == 0 {
		return 0, fmt.Errorf("libos: %w: zero-length push", transport.ErrInvalidArgument)
	}
	op := opfuture.NewPush(q, l.verbs, handle, buf)
	return l.schedule(op), nil
}

// Pushto schedules a datagram push to remote on q.
func (l *LibOS) Pushto(q qd.QDesc, remote transport.Endpoint, buf buffer.Buffer) (sched.QToken, error) {
	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	if buf.Len() == 0 {
		return 0, fmt.Errorf("libos: %w: zero-length push", transport.ErrInvalidArgument)
	}
	op := opfuture.NewPushTo(q, l.verbs, handle, remote, buf)
	return l.schedule(op), nil
}

// Pushto2 is an alias for Pushto. Demikernel's own API carries both names
// for a verb that was renamed mid-evolution but never fully retired; this
// library keeps both for call-site compatibility with code written against
// either name.
func (l *LibOS) Pushto2(q qd.QDesc, remote transport.Endpoint, buf buffer.Buffer) (sched.QToken, error) {
	return l.Pushto(q, remote, buf)
}

// Pop schedules a stream pop on q, reading up to readSize bytes.
func (l *LibOS) Pop(q qd.QDesc, readSize int) (sched.QToken, error) {
	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	op := opfuture.NewPop(q, l.verbs, handle, l.pool, readSize)
	return l.schedule(op), nil
}

// PopFrom schedules a datagram pop on q, also reporting the sender.
func (l *LibOS) PopFrom(q qd.QDesc, readSize int) (sched.QToken, error) {
	handle, err := l.handleOf(q)
	if err != nil {
		return 0, err
	}
	op := opfuture.NewPopFrom(q, l.verbs, handle, l.pool, readSize)
	return l.schedule(op), nil
}

// Wait drives scheduler.Poll() until qt's task completes, then extracts and
// packs its Result.
func (l *LibOS) Wait(qt sched.QToken) (opfuture.Result, error) {
	h, ok := l.sched.GetHandle(qt)
	if !ok {
		return opfuture.Result{}, fmt.Errorf("libos: %w: unknown token", transport.ErrInvalidArgument)
	}
	for !l.sched.HasCompleted(h) {
		l.sched.Poll()
	}
	f, err := l.sched.Take(h)
	if err != nil {
		return opfuture.Result{}, err
	}
	op, ok := f.(opfuture.Operation)
	if !ok {
		return opfuture.Result{}, fmt.Errorf("libos: scheduled future is not an Operation")
	}
	return op.Result(), nil
}

// WaitAny polls the scheduler once and returns the index of the first
// completed token in qts (lowest index wins, per spec §5), extracting and
// packing its Result. Uncompleted handles are inspected via TakeKey so
// wait_any never accidentally cancels them.
func (l *LibOS) WaitAny(qts []sched.QToken) (int, opfuture.Result, error) {
	l.sched.Poll()
	for i, qt := range qts {
		h, ok := l.sched.GetHandle(qt)
		if !ok {
			continue
		}
		if l.sched.HasCompleted(h.TakeKey()) {
			f, err := l.sched.Take(h)
			if err != nil {
				return i, opfuture.Result{}, err
			}
			op, ok := f.(opfuture.Operation)
			if !ok {
				return i, opfuture.Result{}, fmt.Errorf("libos: scheduled future is not an Operation")
			}
			return i, op.Result(), nil
		}
	}
	return -1, opfuture.Result{}, transport.ErrWouldBlock
}

// Close closes the transport handle behind q and frees the descriptor.
func (l *LibOS) Close(q qd.QDesc) error {
	l.mu.Lock()
	delete(l.pending, q)
	l.mu.Unlock()

	e, ok := l.table.Get(q)
	if ok && e.Handle != nil {
		if h, ok := e.Handle.(transport.Handle); ok {
			if err := l.verbs.Close(h); err != nil {
				l.log.Warn("close: transport close failed", "err", err)
			}
		}
	}
	return l.table.Free(q)
}

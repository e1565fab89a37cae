package tcp

import (
	"fmt"
	"time"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// FrameWriter transmits one already-framed Ethernet frame. The Engine never
// touches a NIC or io_uring ring itself; it hands finished bytes to whatever
// the caller wired up (a raw socket, an XDP TX ring, or in tests an
// in-memory "Wire").
type FrameWriter func(frame []byte) error

type fourTuple struct {
	local, remote transport.Endpoint
}

// Engine is the top-level user-space TCP stack: it owns every connection's
// ControlBlock, decodes and routes inbound frames, drives per-connection
// Tick on a schedule, and turns each ControlBlock's OutgoingSegment
// callbacks into wire frames via the framing codec (spec §4.5, "TCP protocol
// engine").
type Engine struct {
	localMAC MACAddr
	localIP  [4]byte
	clock    sched.Clock
	sink     FrameWriter

	conns     map[fourTuple]*ControlBlock
	listeners map[uint16]*Listener
	peerMAC   map[[4]byte]MACAddr

	nextEphemeral uint16
}

// NewEngine constructs an Engine bound to one local MAC/IP pair. sink is
// called once per outgoing frame (SYN, data, ACK, FIN, retransmission —
// everything the control blocks under this engine emit).
func NewEngine(localMAC MACAddr, localIP [4]byte, clock sched.Clock, sink FrameWriter) *Engine {
	return &Engine{
		localMAC:      localMAC,
		localIP:       localIP,
		clock:         clock,
		sink:          sink,
		conns:         make(map[fourTuple]*ControlBlock),
		listeners:     make(map[uint16]*Listener),
		peerMAC:       make(map[[4]byte]MACAddr),
		nextEphemeral: 49152,
	}
}

// SetPeerMAC seeds the engine's address-resolution cache for a remote IP.
// Real deployments learn this from ARP or from the first inbound frame seen
// from that peer (HandleFrame does this automatically); tests and
// environments without a working ARP path call this directly.
func (e *Engine) SetPeerMAC(ip [4]byte, mac MACAddr) {
	e.peerMAC[ip] = mac
}

func (e *Engine) allocEphemeralPort() uint16 {
	for {
		port := e.nextEphemeral
		e.nextEphemeral++
		if e.nextEphemeral == 0 {
			e.nextEphemeral = 49152
		}
		inUse := false
		for ft := range e.conns {
			if ft.local.Port == port {
				inUse = true
				break
			}
		}
		if !inUse {
			return port
		}
	}
}

// Listen registers a listener on localPort, accepting up to backlog
// established connections awaiting accept at once.
func (e *Engine) Listen(localPort uint16, backlog int) (*Listener, error) {
	if _, exists := e.listeners[localPort]; exists {
		return nil, fmt.Errorf("tcp: port %d already listening", localPort)
	}
	local := transport.Endpoint{IP: e.localIP, Port: localPort}
	l := NewListener(local, DefaultMSS, backlog, e.clock, func(remote transport.Endpoint) EgressFunc {
		return e.egressFor(local, remote)
	})
	e.listeners[localPort] = l
	return l, nil
}

// Unlisten stops accepting new connections on localPort; handshakes already
// in progress are abandoned.
func (e *Engine) Unlisten(localPort uint16) {
	delete(e.listeners, localPort)
}

// Connect begins an active open to remote from an auto-assigned ephemeral
// local port, registering the resulting ControlBlock for inbound dispatch.
func (e *Engine) Connect(remote transport.Endpoint) *ControlBlock {
	localPort := e.allocEphemeralPort()
	local := transport.Endpoint{IP: e.localIP, Port: localPort}
	isn := newISN(e.clock)
	// Register before the SYN goes out: over a synchronous link the peer's
	// SYN-ACK arrives while the SYN is still being emitted.
	cb := newControlBlock(local, remote, DefaultMSS, e.clock, e.egressFor(local, remote))
	e.conns[fourTuple{local: local, remote: remote}] = cb
	cb.state = StateSynSent
	cb.sndUna = isn
	cb.sndNxt = isn.Add(1)
	cb.emit(isn, 0, FlagSYN, Options{MSS: DefaultMSS, HasMSS: true, WindowScale: 0, HasWindowScale: true})
	cb.armRTO()
	return cb
}

// Adopt registers a ControlBlock returned by a Listener's Accept so its
// subsequent inbound segments route through this engine rather than the
// listener's handshake table.
func (e *Engine) Adopt(cb *ControlBlock) {
	e.conns[fourTuple{local: cb.Local, remote: cb.Remote}] = cb
}

// egressFor builds the EgressFunc a ControlBlock uses to turn its abstract
// OutgoingSegment values into real Ethernet/IPv4/TCP frames.
func (e *Engine) egressFor(local, remote transport.Endpoint) EgressFunc {
	return func(seg OutgoingSegment) {
		total := HeaderLen(len(seg.Opts.Encode())) + len(seg.Payload)
		buf := buffer.New(len(seg.Payload), total-len(seg.Payload))
		copy(buf.Bytes(), seg.Payload)

		dstMAC, ok := e.peerMAC[remote.IP]
		if !ok {
			dstMAC = MACAddr{} // unresolved peer: frame is still built, link layer drops it
		}
		eth := EthernetHeader{Dst: dstMAC, Src: e.localMAC, EtherType: etherTypeIPv4}
		ip := IPv4Header{SrcIP: local.IP, DstIP: remote.IP, TTL: 64}
		tcpHdr := TCPHeader{
			SrcPort: local.Port,
			DstPort: remote.Port,
			Seq:     seg.Seq,
			Ack:     seg.Ack,
			Flags:   seg.Flags,
			Window:  windowFor(seg.Window),
		}
		if err := Encode(&buf, eth, ip, tcpHdr, seg.Opts); err != nil {
			return
		}
		e.sink(buf.Bytes())
	}
}

// windowFor clamps a 32-bit advertised window to the 16-bit wire field; this
// engine does not yet negotiate window scaling on the wire (DESIGN.md notes
// this as a scope simplification — DefaultWindow fits in 16 bits unscaled).
func windowFor(w uint32) uint16 {
	if w > 0xFFFF {
		return 0xFFFF
	}
	return uint16(w)
}

// HandleFrame decodes one inbound raw Ethernet frame and routes it to the
// matching connection or listener. Frames that fail to decode, or that
// address a local port with neither a connection nor a listener, are
// dropped — exactly the "no user-visible effect" behavior spec §7 requires
// of framing errors.
func (e *Engine) HandleFrame(raw []byte) error {
	buf := buffer.FromSlice(raw)
	frame, err := Decode(buf)
	if err != nil {
		return err
	}
	if frame.IP.DstIP != e.localIP {
		return nil
	}
	e.peerMAC[frame.IP.SrcIP] = frame.Eth.Src

	remote := transport.Endpoint{IP: frame.IP.SrcIP, Port: frame.TCP.SrcPort}
	local := transport.Endpoint{IP: frame.IP.DstIP, Port: frame.TCP.DstPort}
	ft := fourTuple{local: local, remote: remote}

	if cb, ok := e.conns[ft]; ok {
		cb.Ingest(frame.TCP, frame.Payload.Bytes())
		return nil
	}
	if l, ok := e.listeners[local.Port]; ok {
		l.Ingest(remote, frame.TCP, frame.Payload.Bytes())
		return nil
	}
	return nil
}

// Tick drives every registered connection and listener's time-based
// transitions (RTO, delayed ACK, TimeWait expiry), then
// reaps connections that have reached Closed.
func (e *Engine) Tick(now time.Time) {
	for _, l := range e.listeners {
		l.Tick(now)
	}
	for ft, cb := range e.conns {
		cb.Tick(now)
		if cb.State() == StateClosed {
			delete(e.conns, ft)
		}
	}
}

// Lookup returns the ControlBlock for a given 4-tuple, if one is registered.
func (e *Engine) Lookup(local, remote transport.Endpoint) (*ControlBlock, bool) {
	cb, ok := e.conns[fourTuple{local: local, remote: remote}]
	return cb, ok
}

package tcp

import (
	"fmt"
	"time"

	"github.com/eapache/queue"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// pendingConn is a connection that has completed its three-way handshake
// but has not yet been handed to an accept call.
type pendingConn struct {
	cb *ControlBlock
}

// Listener answers incoming SYNs for one bound local endpoint, tracking
// in-progress handshakes and a backlog of fully established connections
// awaiting accept (spec §4.2, "Listen/Accept").
type Listener struct {
	local   transport.Endpoint
	mss     uint16
	clock   sched.Clock
	egress  func(remote transport.Endpoint) EgressFunc
	backlog int

	handshaking map[transport.Endpoint]*ControlBlock
	established *queue.Queue
	estCount    int
}

// NewListener constructs a listener bound to local, accepting up to backlog
// established-but-unaccepted connections at once. egress builds the
// per-connection send callback for a given remote endpoint (the caller
// closes over whatever framing/transport layer actually puts bytes on the
// wire).
func NewListener(local transport.Endpoint, mss uint16, backlog int, clock sched.Clock, egress func(remote transport.Endpoint) EgressFunc) *Listener {
	if backlog <= 0 {
		backlog = 16
	}
	return &Listener{
		local:       local,
		mss:         mss,
		clock:       clock,
		egress:      egress,
		backlog:     backlog,
		handshaking: make(map[transport.Endpoint]*ControlBlock),
		established: queue.New(),
	}
}

// Ingest routes a segment addressed to the listener's local endpoint: a bare
// SYN starts a new handshake, anything else is dispatched to the matching
// in-progress handshake's control block. Segments for already-established
// connections are the Engine's job, not the Listener's — the Engine only
// reaches here before the accept call hands the connection off.
func (l *Listener) Ingest(remote transport.Endpoint, hdr TCPHeader, payload []byte) {
	if cb, ok := l.handshaking[remote]; ok {
		wasSynReceived := cb.State() == StateSynReceived
		cb.Ingest(hdr, payload)
		if wasSynReceived && cb.State() == StateEstablished {
			delete(l.handshaking, remote)
			if l.estCount >= l.backlog {
				return // backlog full: silently drop, peer's retransmitted SYN-ACK ack is lost
			}
			l.established.Add(pendingConn{cb: cb})
			l.estCount++
		}
		return
	}
	if !hdr.Flags.Has(FlagSYN) || hdr.Flags.Has(FlagACK) {
		return
	}
	if len(l.handshaking) >= l.backlog {
		return // SYN backlog full
	}
	isn := newISN(l.clock)
	// Register before the SYN-ACK goes out: over a synchronous link the
	// peer's ACK arrives while the SYN-ACK is still being emitted.
	cb := newControlBlock(l.local, remote, l.mss, l.clock, l.egress(remote))
	l.handshaking[remote] = cb
	cb.state = StateSynReceived
	cb.sndUna = isn
	cb.sndNxt = isn.Add(1)
	cb.rcvNxt = hdr.Seq.Add(1)
	cb.emit(isn, cb.rcvNxt, FlagSYN|FlagACK, Options{MSS: l.mss, HasMSS: true, WindowScale: 0, HasWindowScale: true})
	cb.armRTO()
}

// Tick runs each in-progress handshake's ControlBlock.Tick and drops the
// ones that have reached Closed (established connections are ticked by the
// Engine once accepted). The SYN-ACK is not in the retransmission queue, so
// it is not resent.
func (l *Listener) Tick(now time.Time) {
	for remote, cb := range l.handshaking {
		cb.Tick(now)
		if cb.State() == StateClosed {
			delete(l.handshaking, remote)
		}
	}
}

// Accept removes and returns the oldest established connection awaiting
// accept, or transport.ErrWouldBlock if the backlog is empty.
func (l *Listener) Accept() (*ControlBlock, transport.Endpoint, error) {
	if l.established.Length() == 0 {
		return nil, transport.Endpoint{}, transport.ErrWouldBlock
	}
	item := l.established.Peek()
	l.established.Remove()
	l.estCount--
	pc, ok := item.(pendingConn)
	if !ok {
		return nil, transport.Endpoint{}, fmt.Errorf("tcp: listener backlog corrupted")
	}
	return pc.cb, pc.cb.Remote, nil
}

// Backlog reports the number of established connections awaiting accept.
func (l *Listener) Backlog() int { return l.established.Length() }

// newISN derives an initial sequence number from the clock, the way a real
// stack derives one from a free-running timer rather than a counter shared
// across connections (RFC 793 §3.3).
func newISN(clock sched.Clock) SeqNumber {
	return SeqNumber(uint32(clock.Now().UnixNano()))
}

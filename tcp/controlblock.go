package tcp

import (
	"fmt"
	"time"

	"github.com/hioload/libos/buffer"
	"github.com/hioload/libos/sched"
	"github.com/hioload/libos/transport"
)

// OutgoingSegment is what ControlBlock hands its egress callback: enough to
// build a wire frame (Engine does that via Encode) without ControlBlock
// itself needing to know about MAC addresses or buffer headroom.
type OutgoingSegment struct {
	Seq     SeqNumber
	Ack     SeqNumber
	Flags   Flags
	Window  uint32
	Payload []byte
	Opts    Options
}

// EgressFunc transmits one outgoing segment.
type EgressFunc func(OutgoingSegment)

const sendBufferCap = 4 << 20 // 4 MiB of unsent application data per connection

// ControlBlock is one TCP connection: state machine, sequence-number
// accounting, congestion control, retransmission, and reassembly (spec
// §4.5, "TCP ControlBlock").
type ControlBlock struct {
	Local  transport.Endpoint
	Remote transport.Endpoint

	state State

	sndUna SeqNumber
	sndNxt SeqNumber
	sndWnd uint32

	rcvNxt SeqNumber
	rcvWnd uint32

	mss uint16

	peerWindowScale uint8
	haveWindowScale bool

	cong       *Congestion
	rtt        *RTTEstimator
	retransmit *RetransmitQueue
	reassembly *Reassembly

	sendBuf    []byte // application bytes not yet segmented onto the wire
	sendOffset int    // bytes of sendBuf already segmented (== sndNxt - firstByteSeq)

	recvQueue   []byte
	peerFIN     bool
	closeCalled bool

	ackOwed      bool // spec open question (b): piggyback suppresses the separate pure ACK
	segsSinceACK int
	dupAckCount  int

	clock  sched.Clock
	egress EgressFunc

	rtoDeadline   time.Time
	delayedACKRTT time.Time
	timeWaitUntil time.Time
}

// newControlBlock builds the shared skeleton for both active and passive
// opens.
func newControlBlock(local, remote transport.Endpoint, mss uint16, clock sched.Clock, egress EgressFunc) *ControlBlock {
	return &ControlBlock{
		Local:      local,
		Remote:     remote,
		mss:        mss,
		rcvWnd:     DefaultWindow,
		cong:       NewCongestion(uint32(mss)),
		rtt:        NewRTTEstimator(MinRTO, MaxRTO),
		retransmit: NewRetransmitQueue(),
		reassembly: NewReassembly(),
		clock:      clock,
		egress:     egress,
	}
}

// NewActive begins an active open (connect): state SynSent, ISN isn, and
// immediately emits the initial SYN.
func NewActive(local, remote transport.Endpoint, isn SeqNumber, mss uint16, clock sched.Clock, egress EgressFunc) *ControlBlock {
	cb := newControlBlock(local, remote, mss, clock, egress)
	cb.state = StateSynSent
	cb.sndUna = isn
	cb.sndNxt = isn.Add(1)
	cb.emit(isn, 0, FlagSYN, Options{MSS: mss, HasMSS: true, WindowScale: 0, HasWindowScale: true})
	cb.armRTO()
	return cb
}

// NewPassive begins a passive open in response to a received SYN: state
// SynReceived, our ISN isn, and immediately emits a SYN-ACK.
func NewPassive(local, remote transport.Endpoint, peerISN SeqNumber, isn SeqNumber, mss uint16, clock sched.Clock, egress EgressFunc) *ControlBlock {
	cb := newControlBlock(local, remote, mss, clock, egress)
	cb.state = StateSynReceived
	cb.sndUna = isn
	cb.sndNxt = isn.Add(1)
	cb.rcvNxt = peerISN.Add(1)
	cb.emit(isn, cb.rcvNxt, FlagSYN|FlagACK, Options{MSS: mss, HasMSS: true, WindowScale: 0, HasWindowScale: true})
	cb.armRTO()
	return cb
}

func (cb *ControlBlock) now() time.Time { return cb.clock.Now() }

func (cb *ControlBlock) armRTO() {
	cb.rtoDeadline = cb.now().Add(cb.rtt.RTO())
}

// emit builds and hands one payload-free segment to the egress callback.
// It leaves sndNxt and the retransmission queue untouched; callers that
// consume sequence space advance sndNxt themselves.
func (cb *ControlBlock) emit(seq SeqNumber, ack SeqNumber, flags Flags, opts Options) {
	cb.egress(OutgoingSegment{
		Seq:     seq,
		Ack:     ack,
		Flags:   flags,
		Window:  cb.rcvWnd,
		Payload: nil,
		Opts:    opts,
	})
	cb.ackOwed = false
	cb.segsSinceACK = 0
}

// emitData sends a data segment (optionally piggybacking FIN), appending it
// to the retransmission queue since it occupies sequence space.
func (cb *ControlBlock) emitData(seq SeqNumber, payload []byte, flags Flags) {
	cb.egress(OutgoingSegment{
		Seq:     seq,
		Ack:     cb.rcvNxt,
		Flags:   flags | FlagACK,
		Window:  cb.rcvWnd,
		Payload: payload,
	})
	cb.ackOwed = false
	cb.segsSinceACK = 0
	length := uint32(len(payload))
	if flags.Has(FlagSYN) || flags.Has(FlagFIN) {
		length++
	}
	if length > 0 {
		cb.retransmit.Push(seq, buffer.FromSlice(payload), cb.now())
	}
}

// State reports the connection's current TCP state.
func (cb *ControlBlock) State() State { return cb.state }

// Metrics is a point-in-time snapshot of one connection's protocol state,
// for export through a metrics collector (control.ConnCollector).
type Metrics struct {
	State              State
	SendUna            uint32
	SendNxt            uint32
	SendWindow         uint32
	RecvNext           uint32
	RecvWindow         uint32
	CongestionWindow   uint32
	RTO                time.Duration
	RetransmitQueueLen int
	UnackedBytes       uint32
	DupAckCount        int
}

// Metrics snapshots the connection's current protocol state.
func (cb *ControlBlock) Metrics() Metrics {
	return Metrics{
		State:              cb.state,
		SendUna:            uint32(cb.sndUna),
		SendNxt:            uint32(cb.sndNxt),
		SendWindow:         cb.sndWnd,
		RecvNext:           uint32(cb.rcvNxt),
		RecvWindow:         cb.rcvWnd,
		CongestionWindow:   cb.cong.Window(),
		RTO:                cb.rtt.RTO(),
		RetransmitQueueLen: cb.retransmit.Len(),
		UnackedBytes:       cb.retransmit.Bytes(),
		DupAckCount:        cb.dupAckCount,
	}
}

// Push enqueues b for sending, implementing the Send half of
// transport.Verbs. A zero-length push is rejected with EINVAL before any
// sequence space is consumed, per spec §4.3's submission-time check (the
// façade performs the same check before scheduling a future, this is the
// control block's own defense in depth).
func (cb *ControlBlock) Push(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("tcp: %w: zero-length push", transport.ErrInvalidArgument)
	}
	if cb.state != StateEstablished && cb.state != StateCloseWait {
		return 0, fmt.Errorf("tcp: push on connection in state %s", cb.state)
	}
	if len(cb.sendBuf)-cb.sendOffset+len(b) > sendBufferCap {
		return 0, transport.ErrWouldBlock
	}
	cb.sendBuf = append(cb.sendBuf, b...)
	cb.trySend()
	return len(b), nil
}

// trySend segments as much of the unsent application buffer as fits in
// both the congestion window and the peer's advertised window.
func (cb *ControlBlock) trySend() {
	defer cb.compactSendBuf()
	for {
		unacked := cb.sndNxt.Sub(cb.sndUna)
		cwnd := cb.cong.Window()
		if unacked >= cwnd || unacked >= cb.sndWnd {
			return
		}
		available := len(cb.sendBuf) - cb.sendOffset
		if available <= 0 {
			return
		}
		room := cwnd - unacked
		if cb.sndWnd-unacked < room {
			room = cb.sndWnd - unacked
		}
		chunk := available
		if uint32(chunk) > room {
			chunk = int(room)
		}
		if chunk > int(cb.mss) {
			chunk = int(cb.mss)
		}
		if chunk <= 0 {
			return
		}
		payload := cb.sendBuf[cb.sendOffset : cb.sendOffset+chunk]
		seq := cb.sndNxt
		cb.emitData(seq, payload, 0)
		cb.sndNxt = cb.sndNxt.Add(uint32(chunk))
		cb.sendOffset += chunk
		if cb.rtoDeadline.IsZero() {
			cb.armRTO()
		}
	}
}

// compactSendBuf drops already-segmented bytes once enough of them have
// accumulated, so a long-lived connection's send buffer doesn't grow
// without bound even though unacked segments still reference copies of
// their own payload in the retransmission queue.
func (cb *ControlBlock) compactSendBuf() {
	const compactThreshold = 64 * 1024
	if cb.sendOffset < compactThreshold {
		return
	}
	cb.sendBuf = append([]byte(nil), cb.sendBuf[cb.sendOffset:]...)
	cb.sendOffset = 0
}

// Pop removes up to len(b) bytes from the receive queue, implementing the
// Recv half of transport.Verbs. An empty queue with the peer's FIN already
// received reports EOF (0, nil); otherwise it reports ErrWouldBlock.
func (cb *ControlBlock) Pop(b []byte) (int, error) {
	if len(cb.recvQueue) == 0 {
		if cb.peerFIN {
			return 0, nil
		}
		return 0, transport.ErrWouldBlock
	}
	n := copy(b, cb.recvQueue)
	cb.recvQueue = cb.recvQueue[n:]
	return n, nil
}

// Close initiates an active close: Established/CloseWait queue a FIN and
// move to FinWait1/LastAck respectively. Idempotent on an
// already-closing connection.
func (cb *ControlBlock) Close() error {
	if cb.closeCalled {
		return nil
	}
	cb.closeCalled = true
	switch cb.state {
	case StateEstablished:
		cb.state = StateFinWait1
		seq := cb.sndNxt
		cb.emitData(seq, nil, FlagFIN)
		cb.sndNxt = cb.sndNxt.Add(1)
		cb.armRTO()
	case StateCloseWait:
		cb.state = StateLastAck
		seq := cb.sndNxt
		cb.emitData(seq, nil, FlagFIN)
		cb.sndNxt = cb.sndNxt.Add(1)
		cb.armRTO()
	case StateSynSent, StateSynReceived:
		cb.state = StateClosed
	}
	return nil
}

// Ingest processes one received segment against the current state,
// advancing sequence numbers, the congestion window, and the state machine
// per spec §4.5.1/§4.5.3.
func (cb *ControlBlock) Ingest(hdr TCPHeader, payload []byte) {
	switch cb.state {
	case StateSynSent:
		cb.ingestSynSent(hdr)
		return
	case StateSynReceived:
		cb.ingestSynReceived(hdr)
		return
	case StateClosed, StateListen:
		return
	}

	if hdr.Flags.Has(FlagRST) {
		cb.state = StateClosed
		return
	}
	if hdr.Flags.Has(FlagACK) {
		cb.ingestAck(hdr.Ack, hdr.Window)
	}
	if len(payload) > 0 {
		cb.ingestPayload(hdr.Seq, payload)
	}
	if hdr.Flags.Has(FlagFIN) {
		cb.ingestFIN(hdr.Seq)
	}

	// trySend runs first: if it emits a data segment, that segment already
	// piggybacks rcv_nxt as its ack number and clears ackOwed, so the
	// pure-ACK suppression in maybeSendPureACK takes effect naturally.
	cb.trySend()
	cb.maybeSendPureACK()
}

func (cb *ControlBlock) ingestSynSent(hdr TCPHeader) {
	if !hdr.Flags.Has(FlagSYN) {
		return
	}
	cb.rcvNxt = hdr.Seq.Add(1)
	if hdr.Flags.Has(FlagACK) {
		cb.sndUna = hdr.Ack
		cb.sndWnd = uint32(hdr.Window)
		cb.state = StateEstablished
		cb.emit(cb.sndNxt, cb.rcvNxt, FlagACK, Options{})
	} else {
		cb.state = StateSynReceived
		cb.emit(cb.sndUna, cb.rcvNxt, FlagSYN|FlagACK, Options{MSS: cb.mss, HasMSS: true})
	}
}

func (cb *ControlBlock) ingestSynReceived(hdr TCPHeader) {
	if !hdr.Flags.Has(FlagACK) {
		return
	}
	if hdr.Ack == cb.sndNxt {
		cb.sndUna = hdr.Ack
		cb.state = StateEstablished
		cb.sndWnd = uint32(hdr.Window)
	}
}

func (cb *ControlBlock) ingestAck(ack SeqNumber, window uint16) {
	if ack == cb.sndUna && cb.retransmit.Len() > 0 {
		cb.dupAckCount++
		if cb.dupAckCount == DupACKThreshold {
			cb.retransmit.MarkOldestRetransmitted()
			if seq, payload, ok := cb.retransmit.Oldest(); ok {
				cb.egress(OutgoingSegment{Seq: seq, Ack: cb.rcvNxt, Flags: FlagACK, Window: cb.rcvWnd, Payload: payload.Bytes()})
			}
			cb.cong.OnFastRetransmit()
		}
	} else {
		cb.dupAckCount = 0
	}

	if ack.LessThan(cb.sndUna) || ack == cb.sndUna {
		cb.sndWnd = uint32(window)
		return
	}
	if cb.sndNxt.LessThan(ack) {
		ack = cb.sndNxt
	}

	sample, haveSample := cb.retransmit.AckUpTo(ack, cb.now())
	acked := ack.Sub(cb.sndUna)
	cb.sndUna = ack
	cb.sndWnd = uint32(window)
	cb.cong.OnAck(acked)
	if haveSample {
		cb.rtt.Sample(sample)
	}
	if cb.sndUna == cb.sndNxt {
		cb.rtoDeadline = time.Time{}
	} else {
		cb.armRTO()
	}

	switch cb.state {
	case StateFinWait1:
		cb.state = StateFinWait2
	case StateClosing:
		cb.state = StateTimeWait
		cb.timeWaitUntil = cb.now().Add(2 * MSL)
	case StateLastAck:
		cb.state = StateClosed
	}
}

func (cb *ControlBlock) ingestPayload(seq SeqNumber, payload []byte) {
	if seq == cb.rcvNxt {
		cb.recvQueue = append(cb.recvQueue, payload...)
		cb.rcvNxt = cb.rcvNxt.Add(uint32(len(payload)))
		merged, newNxt := cb.reassembly.Coalesce(cb.rcvNxt)
		if merged.IsValid() {
			cb.recvQueue = append(cb.recvQueue, merged.Bytes()...)
			cb.rcvNxt = newNxt
		}
		cb.segsSinceACK++
		if len(payload) >= int(cb.mss) && cb.segsSinceACK >= 2 {
			cb.ackOwed = true
		} else {
			cb.ackOwed = true
			cb.delayedACKRTT = cb.now().Add(DelayedACKTimeout)
		}
	} else if seq.InWindow(cb.rcvNxt, cb.rcvWnd) {
		cb.reassembly.Insert(seq, buffer.FromSlice(payload))
		cb.ackOwed = true // out-of-order segment requires signaling
	} else {
		cb.ackOwed = true // duplicate/out-of-window: still ACK
	}
}

func (cb *ControlBlock) ingestFIN(seq SeqNumber) {
	if seq.LessThan(cb.rcvNxt) {
		return // already accounted for
	}
	cb.rcvNxt = cb.rcvNxt.Add(1)
	cb.peerFIN = true
	cb.ackOwed = true

	switch cb.state {
	case StateEstablished:
		cb.state = StateCloseWait
	case StateFinWait1:
		cb.state = StateClosing
	case StateFinWait2:
		cb.state = StateTimeWait
		cb.timeWaitUntil = cb.now().Add(2 * MSL)
	}
}

// maybeSendPureACK emits a standalone ACK if one is owed and the most
// recently emitted segment did not already carry rcv_nxt as its ack number
// (spec's open question (b): piggybacked ACKs suppress the separate pure
// ACK).
func (cb *ControlBlock) maybeSendPureACK() {
	if !cb.ackOwed {
		return
	}
	cb.emit(cb.sndNxt, cb.rcvNxt, FlagACK, Options{})
}

// Tick drives time-based transitions: RTO-triggered retransmission, the
// delayed-ACK timer, and TimeWait expiry.
func (cb *ControlBlock) Tick(now time.Time) {
	if cb.state == StateTimeWait && !cb.timeWaitUntil.IsZero() && !now.Before(cb.timeWaitUntil) {
		cb.state = StateClosed
		return
	}
	if !cb.delayedACKRTT.IsZero() && !now.Before(cb.delayedACKRTT) && cb.ackOwed {
		cb.delayedACKRTT = time.Time{}
		cb.maybeSendPureACK()
	}
	if !cb.rtoDeadline.IsZero() && !now.Before(cb.rtoDeadline) {
		cb.cong.OnTimeout()
		if seq, payload, ok := cb.retransmit.Oldest(); ok {
			cb.retransmit.MarkOldestRetransmitted()
			cb.egress(OutgoingSegment{Seq: seq, Ack: cb.rcvNxt, Flags: FlagACK, Window: cb.rcvWnd, Payload: payload.Bytes()})
		}
		cb.armRTO()
	}
}

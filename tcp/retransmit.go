package tcp

import (
	"time"

	"github.com/hioload/libos/buffer"
)

// pendingSegment is one entry in the retransmission queue: an unacked
// segment plus the bookkeeping needed for RTT sampling and retransmission.
type pendingSegment struct {
	seq           SeqNumber
	data          buffer.Buffer
	sentAt        time.Time
	retransmitted bool // excluded from RTT sampling (Karn's algorithm)
}

// length reports how many payload bytes this segment covers.
func (p pendingSegment) length() uint32 { return uint32(p.data.Len()) }

// RetransmitQueue holds every segment sent but not yet acknowledged, in
// send order. Invariant (spec §8): total bytes queued equals snd_nxt -
// snd_una.
type RetransmitQueue struct {
	segments []pendingSegment
}

// NewRetransmitQueue constructs an empty queue.
func NewRetransmitQueue() *RetransmitQueue {
	return &RetransmitQueue{}
}

// Push appends a newly sent segment.
func (q *RetransmitQueue) Push(seq SeqNumber, data buffer.Buffer, sentAt time.Time) {
	q.segments = append(q.segments, pendingSegment{seq: seq, data: data, sentAt: sentAt})
}

// Bytes reports the total payload bytes still queued.
func (q *RetransmitQueue) Bytes() uint32 {
	var total uint32
	for _, s := range q.segments {
		total += s.length()
	}
	return total
}

// Len reports the number of segments queued.
func (q *RetransmitQueue) Len() int { return len(q.segments) }

// Oldest returns the first (lowest-sequence) unacknowledged segment, if any.
func (q *RetransmitQueue) Oldest() (SeqNumber, buffer.Buffer, bool) {
	if len(q.segments) == 0 {
		return 0, buffer.Buffer{}, false
	}
	s := q.segments[0]
	return s.seq, s.data, true
}

// MarkOldestRetransmitted flags the oldest segment as retransmitted so its
// eventual ACK is excluded from RTT sampling.
func (q *RetransmitQueue) MarkOldestRetransmitted() {
	if len(q.segments) > 0 {
		q.segments[0].retransmitted = true
	}
}

// AckUpTo releases every segment fully covered by ack (i.e. seq+len <= ack),
// releasing their buffers and returning the RTT sample of the
// highest-sequence acknowledged segment that was never retransmitted
// (Karn's algorithm — a sample from a retransmitted segment would conflate
// the original and retransmitted round trips).
func (q *RetransmitQueue) AckUpTo(ack SeqNumber, now time.Time) (sample time.Duration, haveSample bool) {
	i := 0
	for i < len(q.segments) {
		s := q.segments[i]
		covered := s.seq.Add(s.length())
		if !covered.LessEq(ack) {
			break
		}
		if !s.retransmitted {
			sample = now.Sub(s.sentAt)
			haveSample = true
		}
		s.data.Release()
		i++
	}
	q.segments = q.segments[i:]
	return sample, haveSample
}

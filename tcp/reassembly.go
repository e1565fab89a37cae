package tcp

import (
	"sort"

	"github.com/hioload/libos/buffer"
)

// outOfOrderRange is one stored, not-yet-contiguous segment.
type outOfOrderRange struct {
	seq  SeqNumber
	data buffer.Buffer
}

// Reassembly buffers out-of-order, in-window segments keyed by sequence
// number until rcv_nxt reaches their left edge (spec §4.5.3).
type Reassembly struct {
	ranges []outOfOrderRange
}

// NewReassembly constructs an empty reassembly set.
func NewReassembly() *Reassembly {
	return &Reassembly{}
}

// Insert stores an out-of-order segment. A segment already fully covered
// by an existing stored range is dropped as a duplicate.
func (r *Reassembly) Insert(seq SeqNumber, data buffer.Buffer) {
	end := seq.Add(uint32(data.Len()))
	for _, existing := range r.ranges {
		existingEnd := existing.seq.Add(uint32(existing.data.Len()))
		if existing.seq.LessEq(seq) && end.LessEq(existingEnd) {
			data.Release()
			return
		}
	}
	r.ranges = append(r.ranges, outOfOrderRange{seq: seq, data: data})
	sort.Slice(r.ranges, func(i, j int) bool {
		return r.ranges[i].seq.LessThan(r.ranges[j].seq)
	})
}

// Coalesce pulls every stored range whose left edge has been reached by
// rcv_nxt into order, returning the concatenated bytes to append to the
// receive queue and the new rcv_nxt after consuming them.
func (r *Reassembly) Coalesce(rcvNxt SeqNumber) (buffer.Buffer, SeqNumber) {
	var merged []byte
	i := 0
	for i < len(r.ranges) {
		rng := r.ranges[i]
		if rng.seq.LessThan(rcvNxt) || rng.seq == rcvNxt {
			end := rng.seq.Add(uint32(rng.data.Len()))
			if rcvNxt.LessThan(end) {
				skip := rcvNxt.Sub(rng.seq)
				merged = append(merged, rng.data.Bytes()[skip:]...)
				rcvNxt = end
			}
			rng.data.Release()
			i++
			continue
		}
		break
	}
	r.ranges = r.ranges[i:]
	if len(merged) == 0 {
		return buffer.Buffer{}, rcvNxt
	}
	return buffer.FromSlice(merged), rcvNxt
}

// Len reports the number of stored out-of-order ranges, for diagnostics.
func (r *Reassembly) Len() int { return len(r.ranges) }

package tcp

// SeqNumber is a 32-bit TCP sequence or acknowledgement number. All
// comparisons must account for wraparound, per RFC 793 §3.3: comparisons
// use signed difference rather than raw integer ordering so that a
// sequence number near 2^32-1 still compares correctly against one that
// has wrapped to a small value.
type SeqNumber uint32

// Add returns s+n (mod 2^32).
func (s SeqNumber) Add(n uint32) SeqNumber { return s + SeqNumber(n) }

// Sub returns the number of bytes between earlier and s, i.e. s-earlier
// interpreted as an unsigned distance forward from earlier to s.
func (s SeqNumber) Sub(earlier SeqNumber) uint32 { return uint32(s - earlier) }

// LessThan reports whether s precedes other in sequence-space order,
// accounting for wraparound (true iff 0 < other-s < 2^31).
func (s SeqNumber) LessThan(other SeqNumber) bool {
	d := int32(other - s)
	return d > 0
}

// LessEq reports s == other || s.LessThan(other).
func (s SeqNumber) LessEq(other SeqNumber) bool {
	return s == other || s.LessThan(other)
}

// InWindow reports whether s falls within [left, left+size) in
// sequence-space order.
func (s SeqNumber) InWindow(left SeqNumber, size uint32) bool {
	if size == 0 {
		return false
	}
	return left.LessEq(s) && s.LessThan(left.Add(size))
}

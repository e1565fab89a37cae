package buffer

import "sync"

// Allocator is anything that can hand a pop its receive buffer: *Pool always
// succeeds (it grows on demand), *Umem reports ok == false once its fixed
// region is exhausted, which the caller surfaces as ENOMEM (spec §4.2/§7).
type Allocator interface {
	CheckoutSized(n int) (Buffer, bool)
}

// sizeClasses mirrors the teacher's power-of-two size-class table, rounding
// every checkout up to the smallest class that satisfies it so the same
// class's free list can be reused across requests.
var sizeClasses = [...]int{
	2 * 1024,
	4 * 1024,
	8 * 1024,
	16 * 1024,
	32 * 1024,
	64 * 1024,
	128 * 1024,
	256 * 1024,
	512 * 1024,
	1 * 1024 * 1024,
}

func sizeClassFor(n int) int {
	for _, c := range sizeClasses {
		if n <= c {
			return c
		}
	}
	return sizeClasses[len(sizeClasses)-1]
}

// Pool is a heap-backed, size-classed BufferPool: it recycles released
// buffers by class but grows without bound on demand (unlike Umem, which
// has a fixed-size backing region and reports exhaustion instead).
type Pool struct {
	headroom int
	numaNode int

	mu      sync.Mutex
	classes map[int]chan []byte
}

const classFreeListCapacity = 1024

// NewPool creates a heap-backed BufferPool. headroom is reserved ahead of
// every buffer's payload so lower-layer headers (e.g. the TCP engine's
// Ethernet/IPv4/TCP stack) can be prepended without copying.
func NewPool(headroom, numaNode int) *Pool {
	return &Pool{headroom: headroom, numaNode: numaNode, classes: make(map[int]chan []byte)}
}

func (p *Pool) channelFor(class int) chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.classes[class]
	if !ok {
		ch = make(chan []byte, classFreeListCapacity)
		p.classes[class] = ch
	}
	return ch
}

// Get returns a buffer able to hold n payload bytes, with the pool's
// configured headroom reserved ahead of it. Requests above the largest size
// class (1 MiB) get a buffer of that class, so Len is capped at 1 MiB.
func (p *Pool) Get(n int) Buffer {
	class := sizeClassFor(n)
	ch := p.channelFor(class)
	select {
	case data := <-ch:
		buf := newFromOwner(data, p.headroom, (*poolReleaser)(p), p.numaNode)
		buf.SetLen(n)
		return buf
	default:
		data := make([]byte, p.headroom+class)
		buf := newFromOwner(data, p.headroom, (*poolReleaser)(p), p.numaNode)
		buf.SetLen(n)
		return buf
	}
}

// CheckoutSized implements Allocator: a heap Pool never reports exhaustion.
func (p *Pool) CheckoutSized(n int) (Buffer, bool) {
	return p.Get(n), true
}

// poolReleaser adapts *Pool to the internal Releaser contract without
// exposing bufCore outside the package.
type poolReleaser Pool

func (r *poolReleaser) put(core *bufCore) {
	p := (*Pool)(r)
	class := len(core.data) - p.headroom
	ch := p.channelFor(sizeClassFor(class))
	core.refs.Store(1)
	select {
	case ch <- core.data:
	default:
		// free list full: let the allocation go to the GC.
	}
}

package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferHeadroomAdjust(t *testing.T) {
	b := New(64, 16)
	require.Equal(t, 16, b.Headroom())
	require.Equal(t, 64, b.Len())

	ok := b.AdjustHeadroom(-8)
	require.True(t, ok)
	require.Equal(t, 8, b.Headroom())
	require.Equal(t, 72, b.Len())

	ok = b.AdjustHeadroom(-100)
	require.False(t, ok, "must refuse to reveal more headroom than exists")
}

func TestBufferCloneSharesStorageReleaseIsRefcounted(t *testing.T) {
	p := NewPool(8, -1)
	b := p.Get(32)
	copy(b.Bytes(), []byte("hello world, this is a test buf"))

	c := b.Clone()
	require.Equal(t, b.Bytes()[0], c.Bytes()[0])

	b.Release()
	// c still holds a live reference; its bytes must remain valid.
	require.Equal(t, byte('h'), c.Bytes()[0])
	c.Release()
}

func TestFromSlice(t *testing.T) {
	b := FromSlice([]byte("abc"))
	require.Equal(t, []byte("abc"), b.Bytes())
	require.Equal(t, 0, b.Headroom())
}

func TestPoolRecyclesBySizeClass(t *testing.T) {
	p := NewPool(0, -1)
	b1 := p.Get(100)
	cap1 := b1.Capacity()
	b1.Release()

	b2 := p.Get(100)
	require.Equal(t, cap1, b2.Capacity(), "same size class should be recycled")
}

func TestUmemExhaustionAndRecycle(t *testing.T) {
	u := NewUmem(2, 128, 16)

	b1, ok := u.Checkout()
	require.True(t, ok)
	b2, ok := u.Checkout()
	require.True(t, ok)

	_, ok = u.Checkout()
	require.False(t, ok, "region must report exhaustion rather than grow")

	stats := u.Stats()
	require.Equal(t, 2, stats.InUse)
	require.Equal(t, 128, stats.ChunkSize)
	require.Equal(t, 16, stats.Headroom)
	require.Equal(t, 256, stats.TotalSize)

	b1.Release()
	b3, ok := u.Checkout()
	require.True(t, ok, "releasing a chunk must free a slot for reuse")

	b2.Release()
	b3.Release()
}

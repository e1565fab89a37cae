package qd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableAllocIsMonotonicAndNotReused(t *testing.T) {
	tbl := NewTable()

	a := tbl.Alloc(KindTCPSocket, 7)
	b := tbl.Alloc(KindTCPSocket, 8)
	require.NotEqual(t, a, b)
	require.Less(t, a, b)

	require.NoError(t, tbl.Free(a))

	c := tbl.Alloc(KindTCPSocket, 9)
	require.NotEqual(t, a, c, "freed QDesc values must never be reused")
}

func TestTableDoubleFreeRejected(t *testing.T) {
	tbl := NewTable()
	qd := tbl.Alloc(KindUDPSocket, 3)

	require.NoError(t, tbl.Free(qd))
	require.Error(t, tbl.Free(qd))
}

func TestTableGetMissing(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get(QDesc(999))
	require.False(t, ok)
}

func TestTableRebind(t *testing.T) {
	tbl := NewTable()
	qd := tbl.Alloc(KindTCPSocket, nil)

	require.NoError(t, tbl.Rebind(qd, 42))
	e, ok := tbl.Get(qd)
	require.True(t, ok)
	require.Equal(t, 42, e.Handle)

	require.Error(t, tbl.Rebind(QDesc(12345), 1))
}

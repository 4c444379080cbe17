package netbuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/netbuf"
)

func TestCommitAndConsume(t *testing.T) {
	r := netbuf.NewRecvBuffer()
	n := copy(r.WritableSlice(), []byte("hello"))
	require.NoError(t, r.Commit(n))
	require.Equal(t, 5, r.DataSize())
	require.Equal(t, []byte("hello"), r.ReadableSlice())

	r.Consume(2)
	require.Equal(t, []byte("llo"), r.ReadableSlice())
}

func TestCleanCompacts(t *testing.T) {
	r := netbuf.NewRecvBuffer()
	n := copy(r.WritableSlice(), []byte("abcdef"))
	require.NoError(t, r.Commit(n))
	r.Consume(4)
	require.Equal(t, []byte("ef"), r.ReadableSlice())

	r.Clean()
	require.Equal(t, []byte("ef"), r.ReadableSlice())
	require.Equal(t, 2, r.DataSize())
}

func TestCommitOverflow(t *testing.T) {
	r := netbuf.NewRecvBuffer()
	err := r.Commit(len(r.WritableSlice()) + 1)
	require.ErrorIs(t, err, netbuf.ErrOverflow)
}

func TestNeedsClean(t *testing.T) {
	r := netbuf.NewRecvBuffer()
	require.False(t, r.NeedsClean())
	big := make([]byte, len(r.WritableSlice())-100)
	require.NoError(t, r.Commit(copy(r.WritableSlice(), big)))
	require.True(t, r.NeedsClean())
}

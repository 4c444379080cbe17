package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/wire"
)

func TestMoveRoundTrip(t *testing.T) {
	buf := make([]byte, 28)
	want := wire.MovePacket{ClientID: 7, X: 1.5, Y: -2.25, VX: 0.5, VY: 0, Timestamp: 123456}
	wire.MarshalMove(buf, want)

	h := wire.UnmarshalHeader(buf)
	require.True(t, wire.ValidSize(h.Size))
	require.EqualValues(t, 28, h.Size)
	require.EqualValues(t, 1, h.ProtocolID)

	got := wire.UnmarshalMove(buf[4:])
	require.Equal(t, want, got)
}

func TestLoginReqRoundTrip(t *testing.T) {
	buf := make([]byte, 21)
	want := wire.LoginReqPacket{USN: 7, Token: 99, IsReconnect: true}
	wire.MarshalLoginReq(buf, want)

	h := wire.UnmarshalHeader(buf)
	require.EqualValues(t, 100, h.ProtocolID)

	got := wire.UnmarshalLoginReq(buf[4:])
	require.Equal(t, want, got)
}

func TestLoginResRoundTrip(t *testing.T) {
	buf := make([]byte, 21)
	want := wire.LoginResPacket{SessionID: 42, Token: 7, Success: true}
	wire.MarshalLoginRes(buf, want)

	got := wire.UnmarshalLoginRes(buf[4:])
	require.Equal(t, want, got)
}

func TestValidSize(t *testing.T) {
	require.False(t, wire.ValidSize(3))
	require.True(t, wire.ValidSize(4))
	require.True(t, wire.ValidSize(2048))
	require.False(t, wire.ValidSize(2049))
}

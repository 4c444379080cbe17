package gameserver_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gameserver "github.com/griffith06/MMORPG-Server"
	"github.com/griffith06/MMORPG-Server/internal/wire"
)

func newTestServer(t *testing.T) *gameserver.Server {
	t.Helper()
	params := gameserver.DefaultParams("127.0.0.1:0")
	params.WorkerCount = 2
	observer := gameserver.NewRecordingObserver()
	srv, err := gameserver.New(params, &gameserver.Options{Observer: observer})
	require.NoError(t, err)

	go srv.Run()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestServerAcceptsAndLogsInOverTCP(t *testing.T) {
	srv := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	req := make([]byte, 21)
	wire.MarshalLoginReq(req, wire.LoginReqPacket{USN: 99, Token: 0})
	_, err = conn.Write(req)
	require.NoError(t, err)

	var resp [21]byte
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(resp[:])
	require.NoError(t, err)
	require.Equal(t, 21, n)

	res := wire.UnmarshalLoginRes(resp[4:])
	require.True(t, res.Success)
	require.NotZero(t, res.Token)

	snap := srv.MetricsSnapshot()
	require.EqualValues(t, 1, snap.AcceptsTotal)
}

func TestServerShutdownClosesListener(t *testing.T) {
	srv := newTestServer(t)
	addr := srv.Addr()
	srv.Shutdown()

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	require.Error(t, err)
}

package threadmgr_test

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/registry"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/threadmgr"
	"github.com/griffith06/MMORPG-Server/internal/wire"
)

type countingObserver struct {
	accepts atomic.Int64
	rejects atomic.Int64
}

func (o *countingObserver) ObserveAccept()        { o.accepts.Add(1) }
func (o *countingObserver) ObserveReject()        { o.rejects.Add(1) }
func (o *countingObserver) ObservePacketIn(uint16)  {}
func (o *countingObserver) ObservePacketOut(uint16) {}
func (o *countingObserver) ObserveBroadcast(uint32) {}
func (o *countingObserver) ObserveResumeOutcome(string) {}

func newTestManager(t *testing.T, workers int) (*threadmgr.ThreadManager, *pool.Pool, *monitor.NetworkMonitor) {
	t.Helper()
	p := pool.New()
	p.Initialize(64)
	reg := registry.New()
	mon := monitor.New()
	tm := threadmgr.New(workers, p, reg, mon)
	tm.Start()
	t.Cleanup(tm.Shutdown)
	return tm, p, mon
}

func TestRouteNewConnectionLoginRoundTrip(t *testing.T) {
	tm, p, mon := newTestManager(t, 2)

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	sock := socket.New(server, p, mon)
	tm.RouteNewConnection(sock)

	req := make([]byte, 21)
	wire.MarshalLoginReq(req, wire.LoginReqPacket{USN: 42, Token: 0})
	go func() { _, _ = client.Write(req) }()

	var resp [21]byte
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(resp[:])
	require.NoError(t, err)
	require.Equal(t, 21, n)
	res := wire.UnmarshalLoginRes(resp[4:])
	require.True(t, res.Success)
}

func TestSetObserverSeesAcceptAndReject(t *testing.T) {
	tm, p, mon := newTestManager(t, 1)
	obs := &countingObserver{}
	tm.SetObserver(obs)

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	tm.RouteNewConnection(socket.New(server, p, mon))
	require.Eventually(t, func() bool { return obs.accepts.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Saturate the single worker's slab, then confirm the next connection
	// is rejected and counted.
	for i := 0; i < 1<<16; i++ {
		c2, s2 := net.Pipe()
		t.Cleanup(func() { c2.Close() })
		tm.RouteNewConnection(socket.New(s2, p, mon))
		if obs.rejects.Load() > 0 {
			break
		}
	}
	require.Eventually(t, func() bool { return obs.rejects.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestListenerSetsUpAcceptLoop(t *testing.T) {
	handled := make(chan net.Conn, 1)
	ln, err := threadmgr.Listen("127.0.0.1:0", func(conn net.Conn) {
		handled <- conn
	}, 2)
	require.NoError(t, err)
	defer ln.Close()

	go ln.Serve()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-handled:
		require.NotNil(t, c)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never invoked handler")
	}
}

func TestListenerIOPoolHandlesConcurrentConnections(t *testing.T) {
	const n = 6
	var seen atomic.Int64
	release := make(chan struct{})
	ln, err := threadmgr.Listen("127.0.0.1:0", func(conn net.Conn) {
		seen.Add(1)
		<-release
		conn.Close()
	}, 3)
	require.NoError(t, err)
	defer ln.Close()

	go ln.Serve()

	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		c, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		conns = append(conns, c)
	}
	t.Cleanup(func() {
		for _, c := range conns {
			c.Close()
		}
	})

	require.Eventually(t, func() bool { return seen.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)
}

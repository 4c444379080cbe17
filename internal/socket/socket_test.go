package socket_test

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/wire"
)

type fakeSession struct {
	mu       sync.Mutex
	received []*pool.Buffer
	disconnected bool
}

func (f *fakeSession) OnPacketReceived(p *pool.Pool, buf *pool.Buffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, buf)
}

func (f *fakeSession) OnSocketDisconnected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeSession) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func newTestSocket(t *testing.T) (*socket.Socket, net.Conn, *pool.Pool) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	p := pool.New()
	p.Initialize(16)
	mon := monitor.New()
	s := socket.New(server, p, mon)
	return s, client, p
}

func TestSocketReceivesAndDispatchesPacket(t *testing.T) {
	s, client, _ := newTestSocket(t)
	sess := &fakeSession{}
	s.BindSession(sess, 42)
	s.Start()

	frame := make([]byte, 28)
	wire.MarshalMove(frame, wire.MovePacket{ClientID: 7, X: 1, Y: 2, VX: 0, VY: 0, Timestamp: 99})

	go func() { _, _ = client.Write(frame) }()

	require.Eventually(t, func() bool { return sess.count() == 1 }, time.Second, time.Millisecond)
	got := wire.UnmarshalMove(sess.received[0].Payload()[4:])
	require.EqualValues(t, 7, got.ClientID)
	require.EqualValues(t, 42, sess.received[0].SessionID)
}

func TestSocketSendWritesFramedBytes(t *testing.T) {
	s, client, p := newTestSocket(t)
	s.Start()

	buf := p.Acquire()
	wire.MarshalLoginRes(buf.Data[:], wire.LoginResPacket{SessionID: 1, Token: 2, Success: true})
	buf.Size = 4 + 17
	require.True(t, s.Send(buf))

	readBuf := make([]byte, 21)
	n, err := io.ReadFull(client, readBuf)
	require.NoError(t, err)
	require.Equal(t, 21, n)
	hdr := wire.UnmarshalHeader(readBuf)
	require.EqualValues(t, 101, hdr.ProtocolID)
}

func TestSocketCloseIsIdempotent(t *testing.T) {
	s, _, _ := newTestSocket(t)
	s.Start()
	s.Close()
	s.Close() // must not panic or double-release

	require.False(t, s.Connected())
}

func TestSendAfterCloseReturnsFalse(t *testing.T) {
	s, _, p := newTestSocket(t)
	s.Start()
	s.Close()
	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, time.Millisecond)

	buf := p.Acquire()
	buf.Size = 4
	require.False(t, s.Send(buf))
}

func TestSocketInvalidFrameSizeCloses(t *testing.T) {
	s, client, _ := newTestSocket(t)
	s.Start()

	bad := make([]byte, 4)
	wire.MarshalHeader(bad, wire.Header{Size: 3, ProtocolID: 1}) // below MinPacketSize
	go func() { _, _ = client.Write(bad) }()

	require.Eventually(t, func() bool { return !s.Connected() }, time.Second, time.Millisecond)
}

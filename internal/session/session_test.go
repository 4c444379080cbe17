package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/session"
)

type fakeSocket struct {
	closed    bool
	connected bool
	sent      []*pool.Buffer
}

func (f *fakeSocket) Close()             { f.closed = true; f.connected = false }
func (f *fakeSocket) Connected() bool    { return f.connected }
func (f *fakeSocket) Send(b *pool.Buffer) bool {
	f.sent = append(f.sent, b)
	return true
}

func TestInitializeSetsConnecting(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 100)
	require.Equal(t, session.StateConnecting, s.State())
	require.EqualValues(t, 1, s.ID())
	require.EqualValues(t, 100, s.ReconnectToken())
}

func TestBindSocketRejectsSecondBind(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 1)
	require.True(t, s.BindSocket(&fakeSocket{connected: true}))
	require.False(t, s.BindSocket(&fakeSocket{connected: true}))
}

func TestOnPacketReceivedDropsWhenNotActive(t *testing.T) {
	p := pool.New()
	p.Initialize(4)
	s := session.New()
	s.Initialize(1, 0, 1) // Connecting, not Active

	buf := p.Acquire()
	s.OnPacketReceived(p, buf)

	_, ok := s.PopIncoming()
	require.False(t, ok)
	require.Zero(t, p.Snapshot().Acquired) // released back to pool
}

func TestOnPacketReceivedQueuesWhenActive(t *testing.T) {
	p := pool.New()
	p.Initialize(4)
	s := session.New()
	s.Initialize(1, 0, 1)
	s.Activate()

	buf := p.Acquire()
	s.OnPacketReceived(p, buf)

	got, ok := s.PopIncoming()
	require.True(t, ok)
	require.Same(t, buf, got)
}

func TestOnSocketDisconnectedFromConnectingGoesClosed(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 1)
	sock := &fakeSocket{connected: true}
	require.True(t, s.BindSocket(sock))

	s.OnSocketDisconnected()
	require.Equal(t, session.StateClosed, s.State())
	require.True(t, sock.closed)
	require.Nil(t, s.Socket())
}

func TestOnSocketDisconnectedFromActiveGoesTempDisconnect(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 1)
	s.Activate()
	sock := &fakeSocket{connected: true}
	require.True(t, s.BindSocket(sock))

	s.OnSocketDisconnected()
	require.Equal(t, session.StateTempDisconnect, s.State())
	require.NotZero(t, s.DisconnectTimeMs())
}

func TestValidateReconnectToken(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 42)
	require.True(t, s.ValidateReconnectToken(42))
	require.False(t, s.ValidateReconnectToken(43))
}

func TestIsDisconnectTimerExpired(t *testing.T) {
	s := session.New()
	s.Initialize(1, 0, 1)
	require.False(t, s.IsDisconnectTimerExpired()) // never disconnected
}

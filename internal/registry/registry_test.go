package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/registry"
	"github.com/griffith06/MMORPG-Server/internal/session"
)

func newTempDisconnectSession(t *testing.T, id, usn, token uint64) *session.Session {
	t.Helper()
	s := session.New()
	s.Initialize(id, 0, token)
	s.SetUSN(usn)
	s.Activate()
	s.OnSocketDisconnected() // Active -> TempDisconnect
	require.Equal(t, session.StateTempDisconnect, s.State())
	return s
}

func TestRegisterFindByID(t *testing.T) {
	r := registry.New()
	s := session.New()
	s.Initialize(1, 0, 1)
	require.True(t, r.Register(s))

	got, ok := r.FindByID(1)
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestDeregister(t *testing.T) {
	r := registry.New()
	s := session.New()
	s.Initialize(5, 0, 1)
	require.True(t, r.Register(s))
	r.Deregister(s)

	_, ok := r.FindByID(5)
	require.False(t, ok)
}

func TestFindByUSNSuccess(t *testing.T) {
	r := registry.New()
	s := newTempDisconnectSession(t, 1, 7, 99)
	require.True(t, r.Register(s))

	got, outcome := r.FindByUSN(7, 99, true)
	require.Equal(t, registry.ResumeSuccess, outcome)
	require.Same(t, s, got)
	require.EqualValues(t, 1, r.Snapshot().Success)
}

func TestFindByUSNNotFound(t *testing.T) {
	r := registry.New()
	_, outcome := r.FindByUSN(999, 1, true)
	require.Equal(t, registry.ResumeFailNotFound, outcome)
	require.EqualValues(t, 1, r.Snapshot().FailNotFound)
}

func TestFindByUSNInvalidState(t *testing.T) {
	r := registry.New()
	s := session.New()
	s.Initialize(2, 0, 1)
	s.SetUSN(8)
	s.Activate() // still Active, not TempDisconnect
	require.True(t, r.Register(s))

	_, outcome := r.FindByUSN(8, 1, true)
	require.Equal(t, registry.ResumeFailInvalidState, outcome)
	require.EqualValues(t, 1, r.Snapshot().FailInvalidState)

	_, ok := r.FindByID(2)
	require.False(t, ok, "invalid-state session must be deregistered")
}

func TestFindByUSNTokenMismatch(t *testing.T) {
	r := registry.New()
	s := newTempDisconnectSession(t, 3, 9, 100)
	require.True(t, r.Register(s))

	_, outcome := r.FindByUSN(9, 101, true)
	require.Equal(t, registry.ResumeFailTokenMismatch, outcome)
	require.EqualValues(t, 1, r.Snapshot().FailTokenMismatch)
}

// TestFindByUSNExpiredAfterRealReconnectWindow lets the reconnect window
// actually elapse in wall-clock time, rather than asserting the expiry
// check's arithmetic in isolation: it is the only test exercising the
// full disconnect -> wait past ReconnectTimeoutSec -> resume attempt
// path end to end.
func TestFindByUSNExpiredAfterRealReconnectWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the real reconnect window")
	}

	r := registry.New()
	s := newTempDisconnectSession(t, 4, 11, 200)
	require.True(t, r.Register(s))

	time.Sleep(time.Duration(constants.ReconnectTimeoutSec)*time.Second + 500*time.Millisecond)
	require.True(t, s.IsDisconnectTimerExpired())

	_, outcome := r.FindByUSN(11, 200, true)
	require.Equal(t, registry.ResumeFailExpired, outcome)
	require.EqualValues(t, 1, r.Snapshot().FailExpired)

	_, ok := r.FindByID(4)
	require.False(t, ok, "expired session must be deregistered")
}

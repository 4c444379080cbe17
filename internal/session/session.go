// Package session implements the logical Session: identity, state
// machine, inbound packet queue, and resume-token bookkeeping.
package session

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/queue"
)

// State is the logical session's lifecycle state.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateActive
	StateTempDisconnect
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateTempDisconnect:
		return "TempDisconnect"
	case StateDisconnecting:
		return "Disconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SocketHandle is the subset of *socket.Socket the session needs,
// expressed as an interface here to avoid an import cycle between
// internal/session and internal/socket (the socket calls back into the
// session through its own SessionHandle interface).
type SocketHandle interface {
	Close()
	Connected() bool
	Send(buf *pool.Buffer) bool
}

// Session is one logical player connection. All binding/unbinding and
// destruction happen only on the session's owning worker; on_packet_received
// and on_socket_disconnected are called from the socket's I/O context.
type Session struct {
	mu sync.Mutex // guards socket/state transitions; see invariants below

	id            uint64
	usn           uint64
	ownerWorkerID uint16
	mapID         uint32

	state State

	socket SocketHandle

	reconnectToken    uint64
	tokenCreatedAtMs  int64
	disconnectTimeMs  atomix.Uint64 // 0 while connected
	lastActiveTimeMs  int64

	inbound *queue.SPSC[*pool.Buffer]
}

// New constructs a Session in State None; call Initialize to bring it up.
func New() *Session {
	return &Session{
		inbound: queue.NewSPSC[*pool.Buffer](constants.SessionInboundQueueCapacity),
	}
}

// Initialize transitions None -> Connecting, assigns identity, and stores
// newToken (freshly minted by the caller) as the reconnect token.
func (s *Session) Initialize(id uint64, ownerWorkerID uint16, newToken uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = id
	s.ownerWorkerID = ownerWorkerID
	s.usn = 0
	s.mapID = constants.DefaultMapID
	s.state = StateConnecting
	s.reconnectToken = newToken
	s.tokenCreatedAtMs = nowMs()
	s.disconnectTimeMs.StoreRelease(0)
	s.lastActiveTimeMs = nowMs()
}

// Reset clears a session back to its zero state for slab reuse, matching
// the worker's "reset the session object, free the slab slot" step.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = 0
	s.usn = 0
	s.ownerWorkerID = 0
	s.mapID = 0
	s.state = StateNone
	s.socket = nil
	s.reconnectToken = 0
	s.tokenCreatedAtMs = 0
	s.disconnectTimeMs.StoreRelease(0)
	s.lastActiveTimeMs = 0
	for {
		if _, err := s.inbound.Dequeue(); err != nil {
			break
		}
	}
}

func (s *Session) ID() uint64          { s.mu.Lock(); defer s.mu.Unlock(); return s.id }
func (s *Session) USN() uint64         { s.mu.Lock(); defer s.mu.Unlock(); return s.usn }
func (s *Session) MapID() uint32       { s.mu.Lock(); defer s.mu.Unlock(); return s.mapID }
func (s *Session) OwnerWorkerID() uint16 { s.mu.Lock(); defer s.mu.Unlock(); return s.ownerWorkerID }
func (s *Session) State() State        { s.mu.Lock(); defer s.mu.Unlock(); return s.state }
func (s *Session) ReconnectToken() uint64 { s.mu.Lock(); defer s.mu.Unlock(); return s.reconnectToken }

// SetUSN promotes a temporary session to a known account, used by the
// worker's LOGIN_REQ new-login path.
func (s *Session) SetUSN(usn uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usn = usn
}

// SetState forces a state transition. Used by the worker/registry for
// the resume-protocol's forced-close paths (hijack protection, token
// mismatch, expiry) which don't go through the normal event table.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Activate transitions Connecting -> Active on first valid login.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateActive
}

// BindSocket associates sock with this session. Binding a second socket
// without unbinding first returns false (ErrCodeInvariant territory per
// spec.md §7 — callers should treat a false return as a bug).
func (s *Session) BindSocket(sock SocketHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket != nil {
		return false
	}
	s.socket = sock
	return true
}

// UnbindSocket clears the socket binding, if any.
func (s *Session) UnbindSocket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socket = nil
}

// Socket returns the currently bound socket handle, or nil.
func (s *Session) Socket() SocketHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket
}

// OnPacketReceived is called from the I/O context. If the session is not
// Active, the buffer is returned to the pool untouched; otherwise it is
// pushed to the inbound SPSC queue (and released on push failure).
func (s *Session) OnPacketReceived(p *pool.Pool, buf *pool.Buffer) {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()

	if !active {
		p.Release(buf)
		return
	}
	if err := s.inbound.Enqueue(buf); err != nil {
		p.Release(buf)
	}
}

// PopIncoming is called only from the owning worker to drain one packet
// off the inbound queue.
func (s *Session) PopIncoming() (*pool.Buffer, bool) {
	buf, err := s.inbound.Dequeue()
	if err != nil {
		return nil, false
	}
	return buf, true
}

// OnSocketDisconnected is called from the socket when reads or writes
// fail. It unbinds the socket, then applies the session's disconnect
// policy: Active/TempDisconnect start (or restart) the resume window;
// any other state (notably Connecting) goes straight to Closed so a
// never-authenticated session never leaks into the resume pool.
func (s *Session) OnSocketDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}

	switch s.state {
	case StateActive, StateTempDisconnect:
		s.state = StateTempDisconnect
		s.disconnectTimeMs.StoreRelease(uint64(nowMs()))
	default:
		s.state = StateClosed
	}
}

// Send forwards buf to the bound socket's send queue. buf must already
// contain the full framed header at byte 0. Returns false (leaving buf
// owned by the caller) if there is no bound socket.
func (s *Session) Send(buf *pool.Buffer) bool {
	sock := s.Socket()
	if sock == nil {
		return false
	}
	return sock.Send(buf)
}

// ValidateReconnectToken reports whether t matches the stored token.
func (s *Session) ValidateReconnectToken(t uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectToken == t
}

// IsDisconnectTimerExpired reports whether the resume window has elapsed.
func (s *Session) IsDisconnectTimerExpired() bool {
	dt := s.disconnectTimeMs.LoadAcquire()
	if dt == 0 {
		return false
	}
	return nowMs()-int64(dt) >= int64(constants.ReconnectTimeoutSec)*1000
}

// DisconnectTimeMs returns the timestamp (ms) the resume window opened,
// or 0 while connected.
func (s *Session) DisconnectTimeMs() uint64 {
	return s.disconnectTimeMs.LoadAcquire()
}

// Touch records activity for idle-tracking purposes.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveTimeMs = nowMs()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

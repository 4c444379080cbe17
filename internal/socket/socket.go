// Package socket implements the TCP Socket: a state machine wrapped
// around a net.Conn, a dedicated recv goroutine, a spin-guarded send
// path backed by an MPSC queue, and a single-consumer executor that
// serializes every mutation of the socket's own state.
package socket

import (
	"errors"
	"io"
	"net"

	"code.hybscloud.com/atomix"
	"github.com/rs/xid"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/logging"
	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/netbuf"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/queue"
	"github.com/griffith06/MMORPG-Server/internal/wire"
)

// State is the socket's lifecycle state.
type State uint32

const (
	StateNone State = iota
	StateConnected
	StateSending
	StateClosing
	StateClosed
)

// SessionHandle is the subset of *session.Session a Socket needs to call
// back into, expressed locally to avoid an import cycle (internal/session
// already depends on a SocketHandle interface it defines itself).
type SessionHandle interface {
	OnPacketReceived(p *pool.Pool, buf *pool.Buffer)
	OnSocketDisconnected()
}

// NetworkStallTest, when set, makes every socket's send path stop
// draining its queue without closing the connection: the process-wide
// test hook the spec calls g_bNetworkStallTest, used to exercise
// backpressure and the monitor's disconnect ladder under test.
var NetworkStallTest atomix.Bool

// Socket owns one accepted TCP connection.
type Socket struct {
	id   string
	conn net.Conn

	ex *executor

	state     atomix.Uint32
	isSending atomix.Bool

	recvBuf *netbuf.RecvBuffer
	sendQ   *queue.MPSC[*pool.Buffer]

	pool    *pool.Pool
	monitor *monitor.NetworkMonitor
	session SessionHandle

	sessionID atomix.Uint64

	log *logging.Logger
}

// New wraps conn. pool and mon must not be nil; session may be bound
// later via BindSession.
func New(conn net.Conn, p *pool.Pool, mon *monitor.NetworkMonitor) *Socket {
	return &Socket{
		id:      xid.New().String(),
		conn:    conn,
		ex:      newExecutor(),
		recvBuf: netbuf.NewRecvBuffer(),
		sendQ:   queue.NewMPSC[*pool.Buffer](constants.SocketSendQueueCapacity),
		pool:    p,
		monitor: mon,
		log:     logging.Default(),
	}
}

// ID returns the socket's diagnostic identifier (not sent on the wire).
func (s *Socket) ID() string { return s.id }

// BindSession attaches the session this socket delivers packets to and
// tags outbound buffer bookkeeping with its id.
func (s *Socket) BindSession(sess SessionHandle, sessionID uint64) {
	s.session = sess
	s.sessionID.StoreRelease(sessionID)
}

// Start transitions None -> Connected and launches the recv loop. Must be
// called exactly once, before the socket is published to any other
// goroutine.
func (s *Socket) Start() {
	s.state.StoreRelease(uint32(StateConnected))
	go s.recvLoop()
}

// Connected reports whether the socket is still usable for sends
// (Connected or mid-send, i.e. not Closing/Closed/None).
func (s *Socket) Connected() bool {
	switch State(s.state.LoadAcquire()) {
	case StateConnected, StateSending:
		return true
	default:
		return false
	}
}

// recvLoop is the socket's single dedicated reader goroutine: blocking
// reads off the wire, handed to the executor for framing and dispatch so
// state mutation never races a concurrent send-path task.
func (s *Socket) recvLoop() {
	for {
		n, err := s.conn.Read(s.recvBuf.WritableSlice())
		if n > 0 {
			s.ex.PostSync(func() { s.onDataReceived(n) })
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debugf("socket %s: read error: %v", s.id, err)
			}
			s.onIOFailure()
			return
		}
		if !s.Connected() {
			return
		}
	}
}

// onDataReceived runs on the executor: commit the bytes just read, frame
// out every complete packet, and dispatch each to the bound session.
func (s *Socket) onDataReceived(n int) {
	if err := s.recvBuf.Commit(n); err != nil {
		s.log.Warnf("socket %s: recv buffer overflow, closing", s.id)
		s.closeLocked()
		return
	}

	for s.recvBuf.DataSize() >= constants.PacketHeaderSize {
		readable := s.recvBuf.ReadableSlice()
		hdr := wire.UnmarshalHeader(readable)
		if !wire.ValidSize(hdr.Size) {
			s.log.Warnf("socket %s: invalid frame size %d, closing", s.id, hdr.Size)
			s.closeLocked()
			return
		}
		if s.recvBuf.DataSize() < int(hdr.Size) {
			break
		}

		buf := s.pool.Acquire()
		if buf == nil {
			// Pool exhaustion drops this one packet; the socket itself
			// stays open per spec.md §7 (ErrCodeResourceExhausted is not
			// fatal to the connection).
			s.recvBuf.Consume(int(hdr.Size))
			continue
		}
		buf.CopyFrom(readable[:hdr.Size])
		buf.ProtocolID = hdr.ProtocolID
		buf.SessionID = s.sessionID.LoadAcquire()

		if s.session != nil {
			s.session.OnPacketReceived(s.pool, buf)
		} else {
			s.pool.Release(buf)
		}
		s.recvBuf.Consume(int(hdr.Size))
	}

	if s.recvBuf.NeedsClean() {
		s.recvBuf.Clean()
	}
}

// Send enqueues buf for transmission and, if no drain is already in
// flight, posts one to the executor. Returns false (closing the socket)
// if the socket is not connected, the monitor's current backpressure
// limit is already met, or the queue itself is full.
func (s *Socket) Send(buf *pool.Buffer) bool {
	if !s.Connected() {
		return false
	}
	if uint64(s.sendQ.ApproxLen()) >= s.monitor.CurrentSendQueueLimit() {
		s.Close()
		return false
	}
	if err := s.sendQ.Enqueue(buf); err != nil {
		s.Close()
		return false
	}
	if s.isSending.CompareAndSwap(false, true) {
		s.ex.Post(s.processSendQueue)
	}
	return true
}

// processSendQueue runs on the executor: pop up to SendBatchPopSize
// buffers and issue one gathered write. It re-arms itself while the
// queue keeps producing data, and clears isSending once it runs dry.
func (s *Socket) processSendQueue() {
	if !s.Connected() {
		s.drainAndReleaseSendQueue()
		s.isSending.StoreRelease(false)
		return
	}
	if NetworkStallTest.LoadAcquire() {
		// Leave isSending set: the queue keeps backing up until the
		// stall is lifted or the monitor's limit closes the socket.
		return
	}

	var batch [constants.SendBatchPopSize]*pool.Buffer
	n := s.sendQ.DequeueBatch(batch[:])
	if n == 0 {
		s.isSending.StoreRelease(false)
		if s.sendQ.ApproxLen() > 0 && s.isSending.CompareAndSwap(false, true) {
			s.ex.Post(s.processSendQueue)
		}
		return
	}

	s.doWrite(batch[:n])
}

func (s *Socket) doWrite(batch []*pool.Buffer) {
	bufs := make(net.Buffers, len(batch))
	for i, b := range batch {
		bufs[i] = b.Payload()
	}
	_, err := bufs.WriteTo(s.conn)
	for _, b := range batch {
		s.pool.Release(b)
	}
	if err != nil {
		s.log.Debugf("socket %s: write error: %v", s.id, err)
		s.isSending.StoreRelease(false)
		s.onIOFailure()
		return
	}
	s.ex.Post(s.processSendQueue)
}

// onIOFailure is called from either the recv goroutine or a failed write:
// it notifies the bound session (which starts the resume window, if any)
// and tears the socket down.
func (s *Socket) onIOFailure() {
	if s.session != nil {
		s.session.OnSocketDisconnected()
	}
	s.Close()
}

// Close transitions Connected/Sending -> Closing exactly once (the CAS
// loser returns immediately) and posts the actual teardown to the
// executor so it can never race a recv or send task.
func (s *Socket) Close() {
	for {
		cur := State(s.state.LoadAcquire())
		if cur != StateConnected && cur != StateSending {
			return
		}
		if s.state.CompareAndSwap(uint32(cur), uint32(StateClosing)) {
			break
		}
	}
	s.ex.Post(s.closeLocked)
}

// closeLocked performs the actual teardown; always runs on the executor.
func (s *Socket) closeLocked() {
	if State(s.state.LoadAcquire()) == StateClosed {
		return
	}
	s.drainAndReleaseSendQueue()
	if s.monitor != nil {
		s.monitor.OnDisconnect()
	}
	_ = s.conn.Close()
	s.state.StoreRelease(uint32(StateClosed))
}

func (s *Socket) drainAndReleaseSendQueue() {
	var batch [constants.SendBatchPopSize]*pool.Buffer
	for {
		n := s.sendQ.DequeueBatch(batch[:])
		if n == 0 {
			return
		}
		for _, b := range batch[:n] {
			s.pool.Release(b)
		}
	}
}

// Package worker implements the LocalThread: a fixed slab of sessions
// drained by a single owning goroutine, dispatching inbound packets and
// fanning out broadcasts.
package worker

import (
	"math/rand"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/interfaces"
	"github.com/griffith06/MMORPG-Server/internal/logging"
	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/queue"
	"github.com/griffith06/MMORPG-Server/internal/registry"
	"github.com/griffith06/MMORPG-Server/internal/session"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/wire"
)

// noopObserver discards every event; used when no Observer is wired.
type noopObserver struct{}

func (noopObserver) ObserveAccept()                        {}
func (noopObserver) ObserveReject()                        {}
func (noopObserver) ObservePacketIn(uint16)                 {}
func (noopObserver) ObservePacketOut(uint16)                {}
func (noopObserver) ObserveBroadcast(uint32)                {}
func (noopObserver) ObserveResumeOutcome(string)            {}

// Broadcaster fans a MOVE payload out across every LocalThread in the
// fleet (including the caller's own): the caller copies it into one fresh
// pool buffer per target thread and posts that copy as the target's
// CmdBroadcast command. Separating
// this from LocalThread lets one worker's inbound packet reach sessions
// owned by any other worker. fromID identifies the calling LocalThread so
// the implementation can acquire the per-target buffers from the
// caller's own local cache instead of the shared pool.
type Broadcaster interface {
	Broadcast(fromID uint16, mapID uint32, payload []byte, excludeID uint64)
}

// LocalThread owns MaxSessionsPerThread Session slots, a parallel used
// bitmap, and a compacted active-session array, all touched only by its
// own Run goroutine. Everything else reaches it through cmdQ.
type LocalThread struct {
	id uint16

	slab      []*session.Session
	used      []bool
	freeList  []int
	slotIndex map[*session.Session]int
	active    []*session.Session
	activeLen atomix.Uint64 // mirrors len(active) for lock-free reads by routing

	cmdQ *queue.MPSC[Command]

	pool       *pool.Pool
	cache      *pool.LocalCache
	registry   *registry.Registry
	monitor    *monitor.NetworkMonitor
	idGen      *IDGenerator
	broadcaster Broadcaster
	observer   interfaces.Observer

	rng *rand.Rand
	log *logging.Logger

	stop chan struct{}
	done chan struct{}
}

// NewLocalThread preallocates the full session slab up front.
func NewLocalThread(id uint16, p *pool.Pool, reg *registry.Registry, mon *monitor.NetworkMonitor, idGen *IDGenerator) *LocalThread {
	n := constants.MaxSessionsPerThread
	slab := make([]*session.Session, n)
	freeList := make([]int, n)
	for i := 0; i < n; i++ {
		slab[i] = session.New()
		freeList[i] = n - 1 - i
	}
	return &LocalThread{
		id:        id,
		slab:      slab,
		used:      make([]bool, n),
		freeList:  freeList,
		slotIndex: make(map[*session.Session]int),
		cmdQ:      queue.NewMPSC[Command](constants.WorkerCommandQueueCapacity),
		pool:      p,
		cache:     pool.NewLocalCache(p),
		registry:  reg,
		monitor:   mon,
		idGen:     idGen,
		observer:  noopObserver{},
		rng:       rand.New(rand.NewSource(int64(id) + 1)),
		log:       logging.Default(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the worker's fleet-assigned index.
func (lt *LocalThread) ID() uint16 { return lt.id }

// Cache returns the worker's own bounded front-end to the shared pool.
// Only lt's own goroutine may call Acquire/Release on it; a Broadcaster
// uses this to acquire fan-out buffers on the caller's own goroutine
// instead of contending the shared pool's free list.
func (lt *LocalThread) Cache() *pool.LocalCache { return lt.cache }

// SetBroadcaster wires the fleet-wide fan-out callback; called once by the
// thread manager after every LocalThread exists.
func (lt *LocalThread) SetBroadcaster(b Broadcaster) { lt.broadcaster = b }

// SetObserver wires the metrics sink; nil restores the no-op observer.
func (lt *LocalThread) SetObserver(o interfaces.Observer) {
	if o == nil {
		o = noopObserver{}
	}
	lt.observer = o
}

// ActiveSessionCount is safe to call from any goroutine (used by
// RouteNewConnection's least-loaded selection).
func (lt *LocalThread) ActiveSessionCount() int {
	return int(lt.activeLen.LoadAcquire())
}

// Capacity returns the slab size (MaxSessionsPerThread).
func (lt *LocalThread) Capacity() int { return len(lt.slab) }

// PostCommand enqueues cmd from any goroutine.
func (lt *LocalThread) PostCommand(cmd Command) error {
	return lt.cmdQ.Enqueue(cmd)
}

// Run drives the 16ms tick loop until Shutdown is posted or Stop is
// called. Intended to run on its own goroutine.
func (lt *LocalThread) Run() {
	ticker := time.NewTicker(constants.WorkerTickInterval)
	defer ticker.Stop()
	defer close(lt.done)

	for {
		select {
		case <-lt.stop:
			return
		case <-ticker.C:
			if lt.tick(constants.WorkerTickInterval) {
				return
			}
		}
	}
}

// Stop requests the loop exit without waiting for a Shutdown command to
// drain through the queue; used for abrupt test teardown.
func (lt *LocalThread) Stop() {
	close(lt.stop)
	<-lt.done
}

// tick drains commands, advances the monitor (worker 0 only, so the shared
// monitor's window accumulates each tick's delta once rather than once per
// worker), then walks the active array in reverse so swap-with-last
// removals never skip an unvisited session. Returns true if a Shutdown
// command was processed.
func (lt *LocalThread) tick(delta time.Duration) bool {
	if lt.drainCommands() {
		return true
	}
	if lt.id == 0 {
		lt.monitor.Update(delta)
	}

	for i := len(lt.active) - 1; i >= 0; i-- {
		s := lt.active[i]
		switch s.State() {
		case session.StateActive:
			lt.dispatchInbound(s)
		case session.StateTempDisconnect:
			if s.IsDisconnectTimerExpired() {
				lt.removeSession(s)
			}
		case session.StateClosed, session.StateDisconnecting:
			lt.removeSession(s)
		}
	}
	return false
}

func (lt *LocalThread) drainCommands() (shutdown bool) {
	for {
		cmd, err := lt.cmdQ.Dequeue()
		if err != nil {
			return false
		}
		switch cmd.Kind {
		case CmdCreateSession:
			lt.handleCreateSession(cmd.Socket)
		case CmdRemoveSession:
			lt.handleRemoveByID(cmd.SessionID)
		case CmdBroadcast:
			lt.handleBroadcast(cmd.MapID, cmd.Packet, cmd.ExcludeID)
		case CmdShutdown:
			return true
		}
	}
}

func (lt *LocalThread) allocSlot() (int, bool) {
	if len(lt.freeList) == 0 {
		return 0, false
	}
	n := len(lt.freeList) - 1
	idx := lt.freeList[n]
	lt.freeList = lt.freeList[:n]
	lt.used[idx] = true
	return idx, true
}

func (lt *LocalThread) freeSlot(idx int) {
	lt.used[idx] = false
	lt.freeList = append(lt.freeList, idx)
}

func (lt *LocalThread) handleCreateSession(sock *socket.Socket) {
	idx, ok := lt.allocSlot()
	if !ok {
		lt.log.Warnf("worker %d: slab full, rejecting new connection", lt.id)
		sock.Close()
		return
	}
	s := lt.slab[idx]
	id := lt.idGen.NextSessionID()
	token := lt.idGen.NextToken()
	s.Initialize(id, lt.id, token)
	s.BindSocket(sock)
	sock.BindSession(s, id)

	lt.slotIndex[s] = idx
	lt.active = append(lt.active, s)
	lt.activeLen.StoreRelease(uint64(len(lt.active)))

	lt.registry.Register(s)
	sock.Start()
}

func (lt *LocalThread) handleRemoveByID(id uint64) {
	for _, s := range lt.active {
		if s.ID() == id {
			lt.removeSession(s)
			return
		}
	}
}

// removeSession deregisters, tears down the socket, resets the session,
// frees its slab slot, and compacts the active array by swap-with-last.
func (lt *LocalThread) removeSession(s *session.Session) {
	lt.registry.Deregister(s)
	if sock := s.Socket(); sock != nil {
		sock.Close()
	}
	s.UnbindSocket()

	idx, ok := lt.slotIndex[s]
	if ok {
		delete(lt.slotIndex, s)
		lt.freeSlot(idx)
	}
	s.Reset()

	for j, candidate := range lt.active {
		if candidate == s {
			last := len(lt.active) - 1
			lt.active[j] = lt.active[last]
			lt.active = lt.active[:last]
			lt.activeLen.StoreRelease(uint64(last))
			return
		}
	}
}

func (lt *LocalThread) dispatchInbound(s *session.Session) {
	for {
		buf, ok := s.PopIncoming()
		if !ok {
			return
		}
		lt.dispatch(s, buf)
	}
}

func (lt *LocalThread) dispatch(s *session.Session, buf *pool.Buffer) {
	lt.observer.ObservePacketIn(buf.ProtocolID)
	switch buf.ProtocolID {
	case constants.PktMove:
		lt.handleMove(s, buf)
	case constants.PktLoginReq:
		lt.handleLoginReq(s, buf)
	default:
		lt.cache.Release(buf)
	}
}

func (lt *LocalThread) handleMove(s *session.Session, buf *pool.Buffer) {
	defer lt.cache.Release(buf)
	if lt.broadcaster == nil {
		return
	}
	lt.broadcaster.Broadcast(lt.id, s.MapID(), buf.Payload(), s.ID())
}

// handleBroadcast implements the fan-out sweep for one thread's own copy
// of a broadcast payload: random start, circular sweep, cap
// MaxBroadcastTargets, same map, excluding the sender, Active only.
func (lt *LocalThread) handleBroadcast(mapID uint32, src *pool.Buffer, excludeID uint64) {
	defer lt.cache.Release(src)

	n := len(lt.active)
	if n == 0 {
		return
	}
	start := lt.rng.Intn(n)
	sent := 0
	for i := 0; i < n && sent < constants.MaxBroadcastTargets; i++ {
		s := lt.active[(start+i)%n]
		if s.ID() == excludeID || s.MapID() != mapID || s.State() != session.StateActive {
			continue
		}
		cp := lt.cache.Acquire()
		if cp == nil {
			continue
		}
		cp.CopyFrom(src.Payload())
		cp.ProtocolID = src.ProtocolID
		if !s.Send(cp) {
			lt.cache.Release(cp)
		} else {
			lt.observer.ObservePacketOut(cp.ProtocolID)
		}
		sent++
	}
	lt.observer.ObserveBroadcast(uint32(sent))
}

// handleLoginReq runs the login/resume state machine described in
// spec.md §4.7/§6: token==0 is a new login that promotes the temporary
// session in place; token!=0 attempts a resume via the registry, falling
// back to new-login promotion of the same temporary session on any
// failure outcome.
func (lt *LocalThread) handleLoginReq(s *session.Session, buf *pool.Buffer) {
	defer lt.cache.Release(buf)
	req := wire.UnmarshalLoginReq(buf.Payload()[constants.PacketHeaderSize:])

	if req.Token == 0 {
		lt.observer.ObserveResumeOutcome("new_login")
		lt.promoteNewLogin(s, req.USN)
		return
	}

	resumed, outcome := lt.registry.FindByUSN(req.USN, req.Token, true)
	lt.observer.ObserveResumeOutcome(outcome.String())
	if outcome != registry.ResumeSuccess {
		lt.promoteNewLogin(s, req.USN)
		return
	}

	tempSock := s.Socket()
	if tempSock == nil {
		// Invariant violation territory (spec.md §7): the temporary
		// session has no socket to hand off. Abort silently.
		return
	}
	s.UnbindSocket()
	if !resumed.BindSocket(tempSock) {
		// Resurrected session already had a socket bound; leave the
		// temporary session's socket unbound and drop the reply.
		return
	}
	if sw, ok := tempSock.(*socket.Socket); ok {
		sw.BindSession(resumed, resumed.ID())
	}
	resumed.SetState(session.StateActive)
	resumed.Touch()

	lt.replyLogin(resumed, resumed.ID(), resumed.ReconnectToken(), true)
	lt.removeSession(s)
}

func (lt *LocalThread) promoteNewLogin(s *session.Session, usn uint64) {
	s.SetUSN(usn)
	s.Activate()
	lt.replyLogin(s, s.ID(), s.ReconnectToken(), true)
}

func (lt *LocalThread) replyLogin(s *session.Session, sessionID, token uint64, success bool) {
	buf := lt.cache.Acquire()
	if buf == nil {
		return // resource exhaustion: drop this reply, session is not closed
	}
	wire.MarshalLoginRes(buf.Data[:], wire.LoginResPacket{SessionID: sessionID, Token: token, Success: success})
	buf.Size = constants.PacketHeaderSize + 17
	buf.ProtocolID = constants.PktLoginRes
	if !s.Send(buf) {
		lt.cache.Release(buf)
	} else {
		lt.observer.ObservePacketOut(buf.ProtocolID)
	}
}

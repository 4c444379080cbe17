// Package threadmgr wires the worker fleet together and accepts TCP
// connections into it.
package threadmgr

import (
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/interfaces"
	"github.com/griffith06/MMORPG-Server/internal/logging"
	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/registry"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/worker"
)

// noopObserver discards every event; used until SetObserver is called.
type noopObserver struct{}

func (noopObserver) ObserveAccept()             {}
func (noopObserver) ObserveReject()              {}
func (noopObserver) ObservePacketIn(uint16)      {}
func (noopObserver) ObservePacketOut(uint16)     {}
func (noopObserver) ObserveBroadcast(uint32)     {}
func (noopObserver) ObserveResumeOutcome(string) {}

// ThreadManager owns the static worker fleet and routes newly accepted
// sockets to the least-loaded worker.
type ThreadManager struct {
	workers []*worker.LocalThread

	pool     *pool.Pool
	registry *registry.Registry
	monitor  *monitor.NetworkMonitor
	observer interfaces.Observer

	log *logging.Logger
}

// New builds workerCount LocalThreads (<= 0 selects MaxLocalThreads) sharing
// pool/registry/monitor, and wires each as every other's broadcast
// fan-out target (including itself).
func New(workerCount int, p *pool.Pool, reg *registry.Registry, mon *monitor.NetworkMonitor) *ThreadManager {
	if workerCount <= 0 {
		workerCount = constants.MaxLocalThreads
	}
	idGen := worker.NewIDGenerator()

	tm := &ThreadManager{
		pool:     p,
		registry: reg,
		monitor:  mon,
		observer: noopObserver{},
		log:      logging.Default(),
	}
	for i := 0; i < workerCount; i++ {
		tm.workers = append(tm.workers, worker.NewLocalThread(uint16(i), p, reg, mon, idGen))
	}
	for _, w := range tm.workers {
		w.SetBroadcaster(tm)
	}
	return tm
}

// SetObserver wires the metrics sink into the thread manager and every
// worker it owns; nil restores the no-op observer.
func (tm *ThreadManager) SetObserver(o interfaces.Observer) {
	if o == nil {
		o = noopObserver{}
	}
	tm.observer = o
	for _, w := range tm.workers {
		w.SetObserver(o)
	}
}

// Start launches every worker's tick loop on its own goroutine.
func (tm *ThreadManager) Start() {
	for _, w := range tm.workers {
		go w.Run()
	}
}

// Shutdown posts a Shutdown command to every worker, then blocks until
// each worker's tick loop has actually exited.
func (tm *ThreadManager) Shutdown() {
	for _, w := range tm.workers {
		_ = w.PostCommand(worker.Command{Kind: worker.CmdShutdown})
	}
	for _, w := range tm.workers {
		w.Stop()
	}
}

// Broadcast implements worker.Broadcaster: copy payload into a fresh
// buffer per worker and post it as that worker's own CmdBroadcast, so
// every worker's active-session sweep (including the sender's own
// worker) can reach sessions sharing mapID regardless of which worker
// originated the MOVE. The buffers are acquired from the calling
// worker's own local cache (fromID): this method always runs on that
// worker's single tick goroutine, so the cache's no-lock front-end is
// safe to use here even though ThreadManager itself is shared across the
// whole fleet. Each buffer is later released by the target worker's own
// cache in its handleBroadcast sweep, or here on a failed post.
func (tm *ThreadManager) Broadcast(fromID uint16, mapID uint32, payload []byte, excludeID uint64) {
	cache := tm.workers[fromID].Cache()
	for _, w := range tm.workers {
		buf := cache.Acquire()
		if buf == nil {
			continue // resource exhaustion: this worker's recipients miss the frame
		}
		buf.CopyFrom(payload)
		buf.ProtocolID = constants.PktMove
		if err := w.PostCommand(worker.Command{Kind: worker.CmdBroadcast, MapID: mapID, Packet: buf, ExcludeID: excludeID}); err != nil {
			cache.Release(buf)
		}
	}
}

// ActiveSessionCounts returns each worker's current active session count,
// keyed by its fleet-assigned index (formatted for use as a Prometheus
// label value).
func (tm *ThreadManager) ActiveSessionCounts() map[string]int {
	counts := make(map[string]int, len(tm.workers))
	for _, w := range tm.workers {
		counts[strconv.Itoa(int(w.ID()))] = w.ActiveSessionCount()
	}
	return counts
}

// RouteNewConnection picks the worker with the smallest current session
// count and posts a CreateSession command to it. If every worker is
// saturated, the socket is rejected and closed immediately.
func (tm *ThreadManager) RouteNewConnection(sock *socket.Socket) {
	var best *worker.LocalThread
	bestCount := -1
	for _, w := range tm.workers {
		if w.ActiveSessionCount() >= w.Capacity() {
			continue
		}
		if best == nil || w.ActiveSessionCount() < bestCount {
			best = w
			bestCount = w.ActiveSessionCount()
		}
	}
	if best == nil {
		tm.log.Warnf("thread manager: fleet saturated, rejecting connection")
		tm.observer.ObserveReject()
		sock.Close()
		return
	}
	if err := best.PostCommand(worker.Command{Kind: worker.CmdCreateSession, Socket: sock}); err != nil {
		tm.observer.ObserveReject()
		sock.Close()
		return
	}
	tm.observer.ObserveAccept()
}

// ConnectionHandler receives each newly accepted, NODELAY-configured
// connection; the Listener hands it to ThreadManager.RouteNewConnection
// in production.
type ConnectionHandler func(conn net.Conn)

// Listener binds one TCP port and accepts connections, handing each off
// to a bounded pool of I/O goroutines that run the ConnectionHandler.
// The accept loop itself never blocks on a handler; it only blocks when
// every I/O goroutine is busy and the hand-off channel is full.
type Listener struct {
	ln        net.Listener
	handler   ConnectionHandler
	log       *logging.Logger
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// Listen binds addr (":9000"-style) and sizes the I/O goroutine pool at
// ioWorkers (<= 0 selects MaxIOThreads). These goroutines only read off the
// accept loop and invoke handler; the logical worker fleet sized by
// ThreadManager's own workerCount is a separate tier.
func Listen(addr string, handler ConnectionHandler, ioWorkers int) (*Listener, error) {
	if ioWorkers <= 0 {
		ioWorkers = constants.MaxIOThreads
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:      ln,
		handler: handler,
		log:     logging.Default(),
		conns:   make(chan net.Conn, ioWorkers*4),
		done:    make(chan struct{}),
	}
	for i := 0; i < ioWorkers; i++ {
		go l.ioWorker()
	}
	return l, nil
}

func (l *Listener) ioWorker() {
	for {
		select {
		case conn, ok := <-l.conns:
			if !ok {
				return
			}
			l.handler(conn)
		case <-l.done:
			return
		}
	}
}

// Addr returns the bound network address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until the listener is closed, setting
// TCP_NODELAY on each before handing it to the configured handler.
// Between accepts the accept object itself is implicitly refreshed by
// net.Listener.Accept, matching the original's "accept socket moved into
// the new Socket, pending one refreshed" pattern.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		setNoDelay(conn, l.log)
		select {
		case l.conns <- conn:
		case <-l.done:
			conn.Close()
			return nil
		}
	}
}

// Close stops accepting new connections and signals every I/O goroutine
// in the pool to exit.
func (l *Listener) Close() error {
	err := l.ln.Close()
	l.closeOnce.Do(func() { close(l.done) })
	return err
}

func setNoDelay(conn net.Conn, log *logging.Logger) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		log.Warnf("threadmgr: SyscallConn failed, leaving Nagle enabled: %v", err)
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			log.Warnf("threadmgr: TCP_NODELAY failed: %v", err)
		}
	})
	if ctrlErr != nil {
		log.Warnf("threadmgr: raw control failed: %v", ctrlErr)
	}
}

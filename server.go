// Package gameserver provides the main API for running the session
// runtime: the packet buffer pool, worker fleet, thread manager, and TCP
// listener wired together behind one Server.
package gameserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/interfaces"
	"github.com/griffith06/MMORPG-Server/internal/logging"
	"github.com/griffith06/MMORPG-Server/internal/monitor"
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/registry"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/threadmgr"
)

// Server owns the packet pool, session registry, network monitor, worker
// fleet, and TCP listener for one running session runtime.
type Server struct {
	pool     *pool.Pool
	registry *registry.Registry
	monitor  *monitor.NetworkMonitor
	threads  *threadmgr.ThreadManager
	listener atomic.Pointer[threadmgr.Listener]

	ctx    context.Context
	cancel context.CancelFunc

	addr      string
	ioWorkers int
	started   atomic.Bool

	shutdownOnce sync.Once

	metrics  *Metrics
	observer interfaces.Observer
}

// Params configures a Server. WorkerCount <= 0 falls back to
// constants.MaxLocalThreads; PoolPages <= 0 falls back to one page.
type Params struct {
	Addr        string
	WorkerCount int
	IOWorkers   int
	PoolPages   int
}

// DefaultParams returns sane defaults for Params.
func DefaultParams(addr string) Params {
	return Params{Addr: addr, WorkerCount: 0, IOWorkers: 0, PoolPages: 1}
}

// Options carries cross-cutting dependencies: cancellation and metrics
// observation. A nil Options is equivalent to the zero value.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context

	// Observer for metrics collection (if nil, uses a MetricsObserver
	// backed by the Server's own Metrics).
	Observer interfaces.Observer
}

// New builds a Server and its worker fleet but does not start accepting
// connections; call Run to bind and serve.
func New(params Params, options *Options) (*Server, error) {
	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pages := params.PoolPages
	if pages <= 0 {
		pages = 1
	}

	p := pool.New()
	p.Initialize(pages * constants.BufferPoolPageSize)
	reg := registry.New()
	mon := monitor.New()
	tm := threadmgr.New(params.WorkerCount, p, reg, mon)

	// The internal Metrics instance backing Server.MetricsSnapshot always
	// observes events, even when the caller supplies its own Observer
	// (e.g. a Prometheus sink): the two are teed together rather than one
	// replacing the other.
	metrics := NewMetrics()
	internalObserver := NewMetricsObserver(metrics)
	observer := options.Observer
	if observer == nil {
		observer = internalObserver
	} else {
		observer = NewTeeObserver(internalObserver, observer)
	}
	tm.SetObserver(observer)

	srv := &Server{
		pool:      p,
		registry:  reg,
		monitor:   mon,
		threads:   tm,
		addr:      params.Addr,
		ioWorkers: params.IOWorkers,
		metrics:   metrics,
		observer:  observer,
	}
	srv.ctx, srv.cancel = context.WithCancel(ctx)
	return srv, nil
}

// Run binds the listener, starts the worker fleet, and serves until the
// listener is closed or the server's context is cancelled. It blocks
// until Serve returns.
func (s *Server) Run() error {
	ln, err := threadmgr.Listen(s.addr, s.handleConn, s.ioWorkers)
	if err != nil {
		return fmt.Errorf("gameserver: listen %s: %w", s.addr, err)
	}
	s.listener.Store(ln)
	s.threads.Start()
	s.started.Store(true)

	logging.Default().Infof("gameserver: listening on %s", ln.Addr().String())

	go func() {
		<-s.ctx.Done()
		ln.Close()
	}()

	err = ln.Serve()
	if s.ctx.Err() != nil {
		return nil // Shutdown-driven close, not a failure.
	}
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	sock := socket.New(conn, s.pool, s.monitor)
	s.threads.RouteNewConnection(sock)
}

// Addr returns the bound listener address, or "" if Run has not been
// called yet.
func (s *Server) Addr() string {
	ln := s.listener.Load()
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}

// Metrics returns the server's metrics instance.
func (s *Server) Metrics() *Metrics { return s.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the server's metrics.
func (s *Server) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

// PoolSnapshot returns a point-in-time snapshot of the packet pool.
func (s *Server) PoolSnapshot() pool.Stats { return s.pool.Snapshot() }

// ResumeSnapshot returns a point-in-time snapshot of the registry's resume
// outcome counters.
func (s *Server) ResumeSnapshot() registry.ResumeStats { return s.registry.Snapshot() }

// MonitorSnapshot returns a point-in-time snapshot of the adaptive
// backpressure monitor: its current send-queue limit and lifetime
// disconnect count.
func (s *Server) MonitorSnapshot() monitor.Stats { return s.monitor.Snapshot() }

// WorkerActiveSessionCounts returns each worker's current active session
// count, keyed by its fleet-assigned index.
func (s *Server) WorkerActiveSessionCounts() map[string]int {
	return s.threads.ActiveSessionCounts()
}

// Shutdown cancels the server's context, closes the listener, stops the
// worker fleet, and marks metrics as stopped. Safe to call more than
// once; only the first call has any effect.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		if ln := s.listener.Load(); ln != nil {
			ln.Close()
		}
		s.threads.Shutdown()
		s.metrics.Stop()
		s.started.Store(false)
	})
}

// Running reports whether Run has been called and Shutdown has not.
func (s *Server) Running() bool { return s.started.Load() }

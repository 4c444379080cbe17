package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	gameserver "github.com/griffith06/MMORPG-Server"
	"github.com/griffith06/MMORPG-Server/internal/logging"
	"github.com/griffith06/MMORPG-Server/internal/socket"
	"github.com/griffith06/MMORPG-Server/internal/telemetry"
)

func main() {
	var (
		port        = pflag.IntP("port", "p", 9000, "listen port")
		local       = pflag.Int("local", 0, "number of logical worker threads (0 = default fleet size)")
		io          = pflag.Int("io", 0, "number of I/O goroutines accepting and dispatching connections (0 = default)")
		stall       = pflag.Bool("stall", false, "enable the network stall test hook (dev only)")
		metricsPort = pflag.Int("metrics-port", 9090, "port to serve Prometheus metrics on (0 disables)")
		verbose     = pflag.BoolP("verbose", "v", false, "verbose (debug) logging")
		help        = pflag.BoolP("help", "h", false, "print usage and exit")
	)
	pflag.Parse()

	if *help {
		fmt.Fprintf(os.Stderr, "gameserver: session runtime for a high-throughput TCP game server\n\n")
		pflag.PrintDefaults()
		return
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *stall {
		logger.Warnf("gameserver: network stall test hook enabled, sends will never drain")
		socket.NetworkStallTest.StoreRelease(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := gameserver.DefaultParams(fmt.Sprintf(":%d", *port))
	params.WorkerCount = *local
	params.IOWorkers = *io

	collectors := telemetry.NewCollectors()
	collectors.MustRegister(prometheus.DefaultRegisterer)

	srv, err := gameserver.New(params, &gameserver.Options{Context: ctx, Observer: collectors})
	if err != nil {
		logger.Errorf("gameserver: failed to build server: %v", err)
		os.Exit(1)
	}

	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", *metricsPort)
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Errorf("gameserver: metrics server on %s exited: %v", metricsAddr, err)
			}
		}()
		logger.Infof("gameserver: serving Prometheus metrics on %s/metrics", metricsAddr)
	}

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- srv.Run() }()

	select {
	case err := <-runErrCh:
		if err != nil {
			logger.Errorf("gameserver: server exited: %v", err)
			os.Exit(1)
		}
		return
	case <-waitForBind(srv):
	}

	logger.Infof("gameserver: listening on %s", srv.Addr())
	fmt.Fprintln(os.Stderr, "Press 'q' + Enter to quit, 'p' + Enter to toggle the network stall test hook.")

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	keyCh := make(chan byte, 1)
	go readKeys(keyCh)

	for {
		select {
		case err := <-runErrCh:
			if err != nil {
				logger.Errorf("gameserver: server exited: %v", err)
				os.Exit(1)
			}
			return

		case <-statsTicker.C:
			logStats(logger, srv)
			mon := srv.MonitorSnapshot()
			collectors.UpdateGauges(srv.PoolSnapshot(), mon.CurrentLimit, mon.TotalDisconnects, srv.WorkerActiveSessionCounts())

		case <-stackDumpCh:
			dumpStacks(logger)

		case key := <-keyCh:
			switch key {
			case 'q', 'Q':
				logger.Infof("gameserver: quit requested at console")
				shutdownWithTimeout(srv, cancel, logger)
				return
			case 'p', 'P':
				on := !socket.NetworkStallTest.LoadAcquire()
				socket.NetworkStallTest.StoreRelease(on)
				logger.Warnf("gameserver: network stall test hook toggled to %v", on)
			}

		case <-sigCh:
			logger.Infof("gameserver: received shutdown signal")
			shutdownWithTimeout(srv, cancel, logger)
			return
		}
	}
}

// readKeys forwards the first byte of each newline-terminated line typed
// on stdin; the console key hooks only care about q/p.
func readKeys(out chan<- byte) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		out <- line[0]
	}
}

func shutdownWithTimeout(srv *gameserver.Server, cancel context.CancelFunc, logger *logging.Logger) {
	cancel()
	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		logger.Warnf("gameserver: shutdown timed out, exiting anyway")
	}
}

// waitForBind returns a channel that closes once srv.Run has bound its
// listener, or immediately if it already has.
func waitForBind(srv *gameserver.Server) <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		for srv.Addr() == "" {
			time.Sleep(5 * time.Millisecond)
		}
		close(ready)
	}()
	return ready
}

func logStats(logger *logging.Logger, srv *gameserver.Server) {
	m := srv.MetricsSnapshot()
	p := srv.PoolSnapshot()
	r := srv.ResumeSnapshot()
	logger.Infof(
		"gameserver: stats accepts=%d rejects=%d in=%d out=%d pool_acquired=%d pool_free=%d pool_pages=%d resume_ok=%d resume_fail=%d new_logins=%d broadcasts=%d max_fanout=%d",
		m.AcceptsTotal, m.RejectsTotal, m.PacketsInTotal, m.PacketsOutTotal,
		p.Acquired, p.FreeListLen, p.Pages,
		r.Success, r.FailNotFound+r.FailInvalidState+r.FailTokenMismatch+r.FailExpired,
		m.NewLoginTotal, m.BroadcastCount, m.MaxBroadcastRecipients,
	)
}

func dumpStacks(logger *logging.Logger) {
	logger.Infof("gameserver: goroutine stack dump requested")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END DUMP ===\n\n", buf[:n])

	filename := fmt.Sprintf("gameserver-stacks-%d.txt", time.Now().Unix())
	f, err := os.Create(filename)
	if err != nil {
		logger.Warnf("gameserver: could not write stack dump file: %v", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "goroutine stack dump at %s\n\n", time.Now().Format(time.RFC3339))
	f.Write(buf[:n])
	fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
	pprof.Lookup("goroutine").WriteTo(f, 2)
	logger.Infof("gameserver: stack dump written to %s", filename)
}

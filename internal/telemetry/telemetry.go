// Package telemetry exposes the session runtime's observable counters as
// Prometheus collectors, on top of the in-process Metrics/Observer pattern
// defined at the module root.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/griffith06/MMORPG-Server/internal/interfaces"
	"github.com/griffith06/MMORPG-Server/internal/pool"
)

// Collectors groups every gauge/counter the runtime exposes. Callers
// register it with a prometheus.Registerer of their choice (the default
// registry, or a private one in tests).
type Collectors struct {
	AcceptsTotal   prometheus.Counter
	RejectsTotal   prometheus.Counter
	PacketsInTotal  prometheus.Counter
	PacketsOutTotal prometheus.Counter
	BroadcastFanout prometheus.Histogram

	PoolAcquiredGauge  prometheus.Gauge
	PoolFreeGauge      prometheus.Gauge
	PoolPagesGauge     prometheus.Gauge
	PoolExhaustedTotal prometheus.Counter
	PoolDoubleReleaseTotal prometheus.Counter

	ResumeSuccessTotal          prometheus.Counter
	ResumeFailNotFoundTotal     prometheus.Counter
	ResumeFailInvalidStateTotal prometheus.Counter
	ResumeFailTokenMismatchTotal prometheus.Counter
	ResumeFailExpiredTotal      prometheus.Counter

	MonitorDisconnectsTotal prometheus.Counter
	MonitorCurrentLimit     prometheus.Gauge

	WorkerActiveSessionsGauge *prometheus.GaugeVec

	// lastPoolExhausted/lastPoolDoubleReleases/lastMonitorDisconnects
	// track the previous cumulative snapshot value so UpdateGauges can
	// feed a monotonic Prometheus Counter (Add-only) from an
	// already-monotonic atomic counter snapshot without double-counting.
	lastPoolExhausted      uint64
	lastPoolDoubleReleases uint64
	lastMonitorDisconnects uint64
}

// NewCollectors builds the full collector set with the "gameserver"
// namespace, matching the gauge/counter registration pattern used for
// socket statistics exposition.
func NewCollectors() *Collectors {
	ns := "gameserver"
	return &Collectors{
		AcceptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "accepts_total", Help: "Total accepted TCP connections.",
		}),
		RejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "rejects_total", Help: "Connections rejected because every worker was saturated.",
		}),
		PacketsInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_in_total", Help: "Packets successfully framed off the wire.",
		}),
		PacketsOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_out_total", Help: "Packets written to sockets.",
		}),
		BroadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "broadcast_fanout", Help: "Recipients reached per broadcast.",
			Buckets: prometheus.LinearBuckets(0, 5, 7), // 0..30
		}),
		PoolAcquiredGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pool_acquired", Help: "Packet buffers currently checked out of the pool.",
		}),
		PoolFreeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pool_free", Help: "Packet buffers on the shared free list.",
		}),
		PoolPagesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "pool_pages", Help: "Packet buffer pool pages allocated.",
		}),
		PoolExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "pool_exhausted_total", Help: "Acquire calls that returned nil after expansion retries.",
		}),
		PoolDoubleReleaseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "pool_double_release_total", Help: "Releases observed on an already-free buffer.",
		}),
		ResumeSuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resume_success_total", Help: "Resume attempts that restored a TempDisconnect session.",
		}),
		ResumeFailNotFoundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resume_fail_not_found_total", Help: "Resume attempts for an unknown USN.",
		}),
		ResumeFailInvalidStateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resume_fail_invalid_state_total", Help: "Resume attempts against a session that was not TempDisconnect.",
		}),
		ResumeFailTokenMismatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resume_fail_token_mismatch_total", Help: "Resume attempts with a token that did not match.",
		}),
		ResumeFailExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "resume_fail_expired_total", Help: "Resume attempts after the reconnect window expired.",
		}),
		MonitorDisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "monitor_disconnects_total", Help: "Socket disconnects observed by the network monitor.",
		}),
		MonitorCurrentLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "monitor_current_send_queue_limit", Help: "Current adaptive send-queue limit (LOD).",
		}),
		WorkerActiveSessionsGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "worker_active_sessions", Help: "Active sessions owned by each worker.",
		}, []string{"worker"}),
	}
}

// MustRegister registers every collector against reg.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.AcceptsTotal, c.RejectsTotal, c.PacketsInTotal, c.PacketsOutTotal, c.BroadcastFanout,
		c.PoolAcquiredGauge, c.PoolFreeGauge, c.PoolPagesGauge, c.PoolExhaustedTotal, c.PoolDoubleReleaseTotal,
		c.ResumeSuccessTotal, c.ResumeFailNotFoundTotal, c.ResumeFailInvalidStateTotal,
		c.ResumeFailTokenMismatchTotal, c.ResumeFailExpiredTotal,
		c.MonitorDisconnectsTotal, c.MonitorCurrentLimit,
		c.WorkerActiveSessionsGauge,
	)
}

// ObserveAccept implements interfaces.Observer.
func (c *Collectors) ObserveAccept() { c.AcceptsTotal.Inc() }

// ObserveReject implements interfaces.Observer.
func (c *Collectors) ObserveReject() { c.RejectsTotal.Inc() }

// ObservePacketIn implements interfaces.Observer.
func (c *Collectors) ObservePacketIn(uint16) { c.PacketsInTotal.Inc() }

// ObservePacketOut implements interfaces.Observer.
func (c *Collectors) ObservePacketOut(uint16) { c.PacketsOutTotal.Inc() }

// ObserveBroadcast implements interfaces.Observer.
func (c *Collectors) ObserveBroadcast(recipients uint32) {
	c.BroadcastFanout.Observe(float64(recipients))
}

// ObserveResumeOutcome implements interfaces.Observer, recording one of
// the registry's five resume outcomes. "new_login" carries no resume
// attempt of its own (token was zero) and is intentionally not counted
// here.
func (c *Collectors) ObserveResumeOutcome(outcome string) {
	switch outcome {
	case "success":
		c.ResumeSuccessTotal.Inc()
	case "fail_not_found":
		c.ResumeFailNotFoundTotal.Inc()
	case "fail_invalid_state":
		c.ResumeFailInvalidStateTotal.Inc()
	case "fail_token_mismatch":
		c.ResumeFailTokenMismatchTotal.Inc()
	case "fail_expired":
		c.ResumeFailExpiredTotal.Inc()
	}
}

var _ interfaces.Observer = (*Collectors)(nil)

// UpdateGauges refreshes the point-in-time gauges (and the counters that
// can only be read back as cumulative snapshots) from the pool and
// network monitor's own Stats, plus each worker's current active session
// count. Call this periodically; the event-driven counters above are
// already kept current by ObserveAccept et al.
func (c *Collectors) UpdateGauges(poolStats pool.Stats, monitorLimit, monitorDisconnects uint64, workerActive map[string]int) {
	c.PoolAcquiredGauge.Set(float64(poolStats.Acquired))
	c.PoolFreeGauge.Set(float64(poolStats.FreeListLen))
	c.PoolPagesGauge.Set(float64(poolStats.Pages))

	if d := poolStats.Exhausted - c.lastPoolExhausted; d > 0 {
		c.PoolExhaustedTotal.Add(float64(d))
		c.lastPoolExhausted = poolStats.Exhausted
	}
	if d := poolStats.DoubleReleases - c.lastPoolDoubleReleases; d > 0 {
		c.PoolDoubleReleaseTotal.Add(float64(d))
		c.lastPoolDoubleReleases = poolStats.DoubleReleases
	}

	c.MonitorCurrentLimit.Set(float64(monitorLimit))
	if d := monitorDisconnects - c.lastMonitorDisconnects; d > 0 {
		c.MonitorDisconnectsTotal.Add(float64(d))
		c.lastMonitorDisconnects = monitorDisconnects
	}

	for worker, n := range workerActive {
		c.WorkerActiveSessionsGauge.WithLabelValues(worker).Set(float64(n))
	}
}

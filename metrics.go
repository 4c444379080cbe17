package gameserver

import (
	"sync/atomic"
	"time"

	"github.com/griffith06/MMORPG-Server/internal/interfaces"
)

// FanoutBuckets defines the broadcast-recipient-count histogram buckets.
// MaxBroadcastTargets caps a single sweep at 30 recipients, so the top
// bucket absorbs everything at or above that.
var FanoutBuckets = []uint32{0, 1, 2, 5, 10, 20, 30}

const numFanoutBuckets = 7

// Metrics tracks accept/reject, packet, resume, and broadcast statistics
// for a running server.
type Metrics struct {
	AcceptsTotal atomic.Uint64
	RejectsTotal atomic.Uint64

	PacketsInTotal  atomic.Uint64
	PacketsOutTotal atomic.Uint64

	ResumeSuccessTotal          atomic.Uint64
	ResumeFailNotFoundTotal     atomic.Uint64
	ResumeFailInvalidStateTotal atomic.Uint64
	ResumeFailTokenMismatchTotal atomic.Uint64
	ResumeFailExpiredTotal      atomic.Uint64
	NewLoginTotal               atomic.Uint64

	BroadcastCount           atomic.Uint64
	BroadcastRecipientsTotal atomic.Uint64
	MaxBroadcastRecipients   atomic.Uint32

	// FanoutHistogram[i] counts broadcasts whose recipient count was
	// <= FanoutBuckets[i] (cumulative, same convention as the teacher's
	// latency histogram).
	FanoutHistogram [numFanoutBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a fresh, running Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records one routed connection.
func (m *Metrics) RecordAccept() { m.AcceptsTotal.Add(1) }

// RecordReject records one connection rejected for a saturated fleet.
func (m *Metrics) RecordReject() { m.RejectsTotal.Add(1) }

// RecordPacketIn records one inbound packet dispatched by a worker.
func (m *Metrics) RecordPacketIn(protocolID uint16) {
	_ = protocolID
	m.PacketsInTotal.Add(1)
}

// RecordPacketOut records one outbound packet handed to a send queue.
func (m *Metrics) RecordPacketOut(protocolID uint16) {
	_ = protocolID
	m.PacketsOutTotal.Add(1)
}

// RecordResumeOutcome records one login/resume attempt outcome.
func (m *Metrics) RecordResumeOutcome(outcome string) {
	switch outcome {
	case "success":
		m.ResumeSuccessTotal.Add(1)
	case "fail_not_found":
		m.ResumeFailNotFoundTotal.Add(1)
	case "fail_invalid_state":
		m.ResumeFailInvalidStateTotal.Add(1)
	case "fail_token_mismatch":
		m.ResumeFailTokenMismatchTotal.Add(1)
	case "fail_expired":
		m.ResumeFailExpiredTotal.Add(1)
	case "new_login":
		m.NewLoginTotal.Add(1)
	}
}

// RecordBroadcast records one completed broadcast sweep with its
// recipient count.
func (m *Metrics) RecordBroadcast(recipients uint32) {
	m.BroadcastCount.Add(1)
	m.BroadcastRecipientsTotal.Add(uint64(recipients))

	for {
		current := m.MaxBroadcastRecipients.Load()
		if recipients <= current {
			break
		}
		if m.MaxBroadcastRecipients.CompareAndSwap(current, recipients) {
			break
		}
	}

	for i, bucket := range FanoutBuckets {
		if recipients <= bucket {
			m.FanoutHistogram[i].Add(1)
		}
	}
}

// Stop marks the server as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	AcceptsTotal uint64
	RejectsTotal uint64

	PacketsInTotal  uint64
	PacketsOutTotal uint64

	ResumeSuccessTotal           uint64
	ResumeFailNotFoundTotal      uint64
	ResumeFailInvalidStateTotal  uint64
	ResumeFailTokenMismatchTotal uint64
	ResumeFailExpiredTotal       uint64
	NewLoginTotal                uint64

	BroadcastCount         uint64
	AvgBroadcastRecipients float64
	MaxBroadcastRecipients uint32

	FanoutHistogram [numFanoutBuckets]uint64

	UptimeNs uint64
}

// Snapshot returns a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AcceptsTotal:                 m.AcceptsTotal.Load(),
		RejectsTotal:                 m.RejectsTotal.Load(),
		PacketsInTotal:               m.PacketsInTotal.Load(),
		PacketsOutTotal:              m.PacketsOutTotal.Load(),
		ResumeSuccessTotal:           m.ResumeSuccessTotal.Load(),
		ResumeFailNotFoundTotal:      m.ResumeFailNotFoundTotal.Load(),
		ResumeFailInvalidStateTotal:  m.ResumeFailInvalidStateTotal.Load(),
		ResumeFailTokenMismatchTotal: m.ResumeFailTokenMismatchTotal.Load(),
		ResumeFailExpiredTotal:       m.ResumeFailExpiredTotal.Load(),
		NewLoginTotal:                m.NewLoginTotal.Load(),
		BroadcastCount:               m.BroadcastCount.Load(),
		MaxBroadcastRecipients:       m.MaxBroadcastRecipients.Load(),
	}

	recipientsTotal := m.BroadcastRecipientsTotal.Load()
	if snap.BroadcastCount > 0 {
		snap.AvgBroadcastRecipients = float64(recipientsTotal) / float64(snap.BroadcastCount)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numFanoutBuckets; i++ {
		snap.FanoutHistogram[i] = m.FanoutHistogram[i].Load()
	}

	return snap
}

// Reset zeroes every counter; useful in tests.
func (m *Metrics) Reset() {
	m.AcceptsTotal.Store(0)
	m.RejectsTotal.Store(0)
	m.PacketsInTotal.Store(0)
	m.PacketsOutTotal.Store(0)
	m.ResumeSuccessTotal.Store(0)
	m.ResumeFailNotFoundTotal.Store(0)
	m.ResumeFailInvalidStateTotal.Store(0)
	m.ResumeFailTokenMismatchTotal.Store(0)
	m.ResumeFailExpiredTotal.Store(0)
	m.NewLoginTotal.Store(0)
	m.BroadcastCount.Store(0)
	m.BroadcastRecipientsTotal.Store(0)
	m.MaxBroadcastRecipients.Store(0)
	for i := 0; i < numFanoutBuckets; i++ {
		m.FanoutHistogram[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept()             {}
func (NoOpObserver) ObserveReject()              {}
func (NoOpObserver) ObservePacketIn(uint16)      {}
func (NoOpObserver) ObservePacketOut(uint16)     {}
func (NoOpObserver) ObserveBroadcast(uint32)     {}
func (NoOpObserver) ObserveResumeOutcome(string) {}

// MetricsObserver implements interfaces.Observer by recording into a
// Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver builds an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept()        { o.metrics.RecordAccept() }
func (o *MetricsObserver) ObserveReject()        { o.metrics.RecordReject() }
func (o *MetricsObserver) ObservePacketIn(id uint16)  { o.metrics.RecordPacketIn(id) }
func (o *MetricsObserver) ObservePacketOut(id uint16) { o.metrics.RecordPacketOut(id) }
func (o *MetricsObserver) ObserveBroadcast(recipients uint32) {
	o.metrics.RecordBroadcast(recipients)
}
func (o *MetricsObserver) ObserveResumeOutcome(outcome string) {
	o.metrics.RecordResumeOutcome(outcome)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = (*NoOpObserver)(nil)

// TeeObserver fans every event out to a fixed set of observers, in order.
// Used to drive the in-process Metrics snapshot and an external sink
// (e.g. Prometheus collectors) from the single Observer slot the worker
// fleet and thread manager accept.
type TeeObserver struct {
	observers []interfaces.Observer
}

// NewTeeObserver builds an observer that forwards every call to each of
// observers in turn.
func NewTeeObserver(observers ...interfaces.Observer) *TeeObserver {
	return &TeeObserver{observers: observers}
}

func (t *TeeObserver) ObserveAccept() {
	for _, o := range t.observers {
		o.ObserveAccept()
	}
}

func (t *TeeObserver) ObserveReject() {
	for _, o := range t.observers {
		o.ObserveReject()
	}
}

func (t *TeeObserver) ObservePacketIn(protocolID uint16) {
	for _, o := range t.observers {
		o.ObservePacketIn(protocolID)
	}
}

func (t *TeeObserver) ObservePacketOut(protocolID uint16) {
	for _, o := range t.observers {
		o.ObservePacketOut(protocolID)
	}
}

func (t *TeeObserver) ObserveBroadcast(recipients uint32) {
	for _, o := range t.observers {
		o.ObserveBroadcast(recipients)
	}
}

func (t *TeeObserver) ObserveResumeOutcome(outcome string) {
	for _, o := range t.observers {
		o.ObserveResumeOutcome(outcome)
	}
}

var _ interfaces.Observer = (*TeeObserver)(nil)

// Package monitor implements the adaptive backpressure monitor: a
// process-wide observer that turns recent disconnect counts into a
// dynamic send-queue limit.
package monitor

import (
	"time"

	"code.hybscloud.com/atomix"

	"github.com/griffith06/MMORPG-Server/internal/constants"
)

// NetworkMonitor tracks disconnects over a rolling window and publishes a
// current send-queue limit every Sockets consult on enqueue.
//
// The limit ladder intentionally reproduces the original source's literal
// (buggy) branch order: ">= 5000" is checked before ">= 10000", so the
// ">= 10000" branch below is unreachable in the normal walk. See
// spec.md §9 / DESIGN.md "Open Question decisions" — this is kept as
// written, not silently corrected.
type NetworkMonitor struct {
	disconnectCount  atomix.Uint64
	totalDisconnects atomix.Uint64 // cumulative, never reset by the window roll-over
	currentLimit     atomix.Uint64
	elapsed          atomix.Uint64 // accumulated nanoseconds since last window reset
}

// New creates a monitor starting at the relaxed LOD0 limit.
func New() *NetworkMonitor {
	m := &NetworkMonitor{}
	m.currentLimit.StoreRelease(constants.MaxSendQueueSizeLOD0)
	return m
}

// OnDisconnect must be called exactly once per socket close.
func (m *NetworkMonitor) OnDisconnect() {
	m.disconnectCount.AddAcqRel(1)
	m.totalDisconnects.AddAcqRel(1)
}

// Update accumulates elapsed time and, once NetworkMonitorWindow has
// passed, reads and resets the disconnect counter and selects the new
// limit. Driven by worker 0's tick loop with each tick's delta,
// matching the original's update(delta_ms) signature.
func (m *NetworkMonitor) Update(delta time.Duration) {
	elapsed := m.elapsed.AddAcqRel(uint64(delta))
	if elapsed < uint64(constants.NetworkMonitorWindow) {
		return
	}
	m.elapsed.StoreRelease(0)

	count := m.disconnectCount.LoadAcquire()
	m.disconnectCount.StoreRelease(0)
	m.currentLimit.StoreRelease(selectLimit(count))
}

// selectLimit reproduces the original's literal if/else-if chain:
//
//	if count >= 5000      -> LOD2 (600)
//	else if count >= 10000 -> LOD1 (2000)   // unreachable: 5000 already matched
//	else                    -> LOD0 (4000)
//
// A correctly ordered ladder would read
// {<5000: 4000, [5000,10000): 600, >=10000: 2000}; this does not, and the
// spec directs implementers to keep the literal behavior rather than fix it.
func selectLimit(count uint64) uint64 {
	switch {
	case count >= constants.NetworkMonitorThresholdHigh:
		return constants.MaxSendQueueSizeLOD2
	case count >= constants.NetworkMonitorThresholdVeryHigh:
		return constants.MaxSendQueueSizeLOD1
	default:
		return constants.MaxSendQueueSizeLOD0
	}
}

// CurrentSendQueueLimit returns the limit Sockets should enforce on
// enqueue right now.
func (m *NetworkMonitor) CurrentSendQueueLimit() uint64 {
	return m.currentLimit.LoadAcquire()
}

// Stats is a point-in-time snapshot of monitor state.
type Stats struct {
	CurrentLimit     uint64
	TotalDisconnects uint64
}

// Snapshot returns the current limit and the lifetime disconnect count.
func (m *NetworkMonitor) Snapshot() Stats {
	return Stats{
		CurrentLimit:     m.currentLimit.LoadAcquire(),
		TotalDisconnects: m.totalDisconnects.LoadAcquire(),
	}
}

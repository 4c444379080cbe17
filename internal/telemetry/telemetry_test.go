package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/telemetry"
)

func TestCollectorsMustRegisterOnPrivateRegistry(t *testing.T) {
	c := telemetry.NewCollectors()
	reg := prometheus.NewRegistry()
	c.MustRegister(reg)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestObserveAcceptIncrementsCounter(t *testing.T) {
	c := telemetry.NewCollectors()
	c.ObserveAccept()
	c.ObserveAccept()
	require.Equal(t, float64(2), testutil.ToFloat64(c.AcceptsTotal))
}

func TestObserveResumeOutcomeRoutesToMatchingCounter(t *testing.T) {
	c := telemetry.NewCollectors()
	c.ObserveResumeOutcome("success")
	c.ObserveResumeOutcome("fail_expired")
	c.ObserveResumeOutcome("fail_expired")
	c.ObserveResumeOutcome("new_login") // not a resume attempt, counted nowhere

	require.Equal(t, float64(1), testutil.ToFloat64(c.ResumeSuccessTotal))
	require.Equal(t, float64(2), testutil.ToFloat64(c.ResumeFailExpiredTotal))
	require.Zero(t, testutil.ToFloat64(c.ResumeFailNotFoundTotal))
}

func TestUpdateGaugesSetsPointInTimeValues(t *testing.T) {
	c := telemetry.NewCollectors()
	stats := pool.Stats{Acquired: 3, FreeListLen: 61, Pages: 1}

	c.UpdateGauges(stats, 500, 0, map[string]int{"0": 2, "1": 5})

	require.Equal(t, float64(3), testutil.ToFloat64(c.PoolAcquiredGauge))
	require.Equal(t, float64(61), testutil.ToFloat64(c.PoolFreeGauge))
	require.Equal(t, float64(500), testutil.ToFloat64(c.MonitorCurrentLimit))
	require.Equal(t, float64(2), testutil.ToFloat64(c.WorkerActiveSessionsGauge.WithLabelValues("0")))
	require.Equal(t, float64(5), testutil.ToFloat64(c.WorkerActiveSessionsGauge.WithLabelValues("1")))
}

// TestUpdateGaugesOnlyCountsForwardProgress exercises the delta tracking
// that converts the pool's already-cumulative snapshot counters into a
// Prometheus Counter without double-adding across repeated calls.
func TestUpdateGaugesOnlyCountsForwardProgress(t *testing.T) {
	c := telemetry.NewCollectors()

	c.UpdateGauges(pool.Stats{Exhausted: 2, DoubleReleases: 1}, 0, 0, nil)
	require.Equal(t, float64(2), testutil.ToFloat64(c.PoolExhaustedTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(c.PoolDoubleReleaseTotal))

	c.UpdateGauges(pool.Stats{Exhausted: 2, DoubleReleases: 1}, 0, 0, nil)
	require.Equal(t, float64(2), testutil.ToFloat64(c.PoolExhaustedTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(c.PoolDoubleReleaseTotal))

	c.UpdateGauges(pool.Stats{Exhausted: 5, DoubleReleases: 1}, 0, 0, nil)
	require.Equal(t, float64(5), testutil.ToFloat64(c.PoolExhaustedTotal))
}

func TestUpdateGaugesTracksMonitorDisconnectDeltas(t *testing.T) {
	c := telemetry.NewCollectors()

	c.UpdateGauges(pool.Stats{}, 0, 4, nil)
	require.Equal(t, float64(4), testutil.ToFloat64(c.MonitorDisconnectsTotal))

	c.UpdateGauges(pool.Stats{}, 0, 9, nil)
	require.Equal(t, float64(9), testutil.ToFloat64(c.MonitorDisconnectsTotal))
}

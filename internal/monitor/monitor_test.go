package monitor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/monitor"
)

func TestDefaultLimitIsLOD0(t *testing.T) {
	m := monitor.New()
	require.EqualValues(t, constants.MaxSendQueueSizeLOD0, m.CurrentSendQueueLimit())
}

func TestLadderIsLiteralNotFixed(t *testing.T) {
	m := monitor.New()
	for i := 0; i < 20000; i++ {
		m.OnDisconnect()
	}
	// Force the window to roll over immediately for the test.
	m.Update(constants.NetworkMonitorWindow)

	// A disconnect count of 20000 would, under a corrected ladder, select
	// LOD1; under the literal (preserved) ladder it selects LOD2 because
	// ">= 5000" is checked first. This is the intended, documented bug.
	require.EqualValues(t, constants.MaxSendQueueSizeLOD2, m.CurrentSendQueueLimit())
}

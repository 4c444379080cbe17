package gameserver

import (
	"sync"

	"github.com/griffith06/MMORPG-Server/internal/interfaces"
)

// RecordingObserver implements interfaces.Observer and tracks every call
// for assertions in tests, mirroring the call-count tracking pattern used
// throughout this package's own test doubles.
type RecordingObserver struct {
	mu sync.Mutex

	accepts    int
	rejects    int
	packetsIn  int
	packetsOut int
	broadcasts int
	recipients uint32

	resumeOutcomes map[string]int
}

// NewRecordingObserver builds an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{resumeOutcomes: make(map[string]int)}
}

func (o *RecordingObserver) ObserveAccept() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepts++
}

func (o *RecordingObserver) ObserveReject() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejects++
}

func (o *RecordingObserver) ObservePacketIn(uint16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.packetsIn++
}

func (o *RecordingObserver) ObservePacketOut(uint16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.packetsOut++
}

func (o *RecordingObserver) ObserveBroadcast(recipients uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broadcasts++
	o.recipients += recipients
}

func (o *RecordingObserver) ObserveResumeOutcome(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resumeOutcomes[outcome]++
}

// CallCounts returns a snapshot of every counter, keyed by event name.
func (o *RecordingObserver) CallCounts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := map[string]int{
		"accept":    o.accepts,
		"reject":    o.rejects,
		"packetIn":  o.packetsIn,
		"packetOut": o.packetsOut,
		"broadcast": o.broadcasts,
	}
	for outcome, n := range o.resumeOutcomes {
		counts["resume:"+outcome] = n
	}
	return counts
}

// TotalBroadcastRecipients returns the sum of recipient counts passed to
// ObserveBroadcast.
func (o *RecordingObserver) TotalBroadcastRecipients() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recipients
}

// Reset zeroes every counter.
func (o *RecordingObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepts = 0
	o.rejects = 0
	o.packetsIn = 0
	o.packetsOut = 0
	o.broadcasts = 0
	o.recipients = 0
	o.resumeOutcomes = make(map[string]int)
}

var _ interfaces.Observer = (*RecordingObserver)(nil)

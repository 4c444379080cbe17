// Package interfaces holds definitions shared between the public root
// package and its internal packages. These are kept separate from the
// root package's concrete types to avoid a circular import: the root
// package depends on internal/worker and internal/threadmgr to build a
// Server, so those packages cannot depend back on the root package.
package interfaces

// Logger is the subset of logging.Logger that internal packages accept
// from callers wanting to redirect output, without importing the
// concrete logger type.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives metrics events from the worker fleet and thread
// manager. Implementations must be safe for concurrent use: methods are
// called from worker tick goroutines and listener accept goroutines
// concurrently.
type Observer interface {
	// ObserveAccept is called once per connection routed to a worker.
	ObserveAccept()

	// ObserveReject is called once per connection rejected because the
	// fleet is saturated.
	ObserveReject()

	// ObservePacketIn is called once per inbound packet a worker
	// dispatches, tagged with its wire protocol id.
	ObservePacketIn(protocolID uint16)

	// ObservePacketOut is called once per outbound packet handed off to
	// a socket's send queue, tagged with its wire protocol id.
	ObservePacketOut(protocolID uint16)

	// ObserveBroadcast is called once per MOVE broadcast a worker
	// processes, with the number of recipients that sweep reached.
	ObserveBroadcast(recipients uint32)

	// ObserveResumeOutcome is called once per login/resume attempt, with
	// one of "success", "fail_not_found", "fail_invalid_state",
	// "fail_token_mismatch", "fail_expired", or "new_login".
	ObserveResumeOutcome(outcome string)
}

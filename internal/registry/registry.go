// Package registry implements the process-wide session directory: a
// table keyed by session id (O(1) via hash-probe) with a secondary O(n)
// lookup by user serial number (USN), plus the resume-attempt outcome
// counters and policy.
package registry

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"

	"github.com/griffith06/MMORPG-Server/internal/constants"
	"github.com/griffith06/MMORPG-Server/internal/session"
)

// Registry is an open-addressed table of session pointers, sized
// MaxTotalSessions. A nil slot means unused; pointer slots are written
// with release ordering via atomic.Pointer so a concurrent reader never
// observes a non-nil slot before the session it points to is complete.
type Registry struct {
	slots []atomic.Pointer[session.Session]
	size  uint64

	resumeSuccess          atomix.Uint64
	resumeFailNotFound     atomix.Uint64
	resumeFailInvalidState atomix.Uint64
	resumeFailTokenMismatch atomix.Uint64
	resumeFailExpired      atomix.Uint64
}

// New creates a registry sized for constants.MaxTotalSessions sessions.
func New() *Registry {
	size := uint64(constants.MaxTotalSessions)
	return &Registry{
		slots: make([]atomic.Pointer[session.Session], size),
		size:  size,
	}
}

func hash(id uint64) uint64 {
	// MurmurHash3 fmix64 finalizer, cheap and sufficient for a probe table.
	h := id
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// Register inserts s into the table via hash-probe from hash(session id),
// linear probing on collision. Returns false if the table is full.
func (r *Registry) Register(s *session.Session) bool {
	start := hash(s.ID()) % r.size
	for i := uint64(0); i < r.size; i++ {
		idx := (start + i) % r.size
		if r.slots[idx].CompareAndSwap(nil, s) {
			return true
		}
	}
	return false
}

// Deregister clears s's slot, probing from hash(session id) the same way
// Register did.
func (r *Registry) Deregister(s *session.Session) {
	start := hash(s.ID()) % r.size
	for i := uint64(0); i < r.size; i++ {
		idx := (start + i) % r.size
		if r.slots[idx].CompareAndSwap(s, nil) {
			return
		}
	}
}

// FindByID performs the O(1) hash-probe lookup.
func (r *Registry) FindByID(id uint64) (*session.Session, bool) {
	start := hash(id) % r.size
	for i := uint64(0); i < r.size; i++ {
		idx := (start + i) % r.size
		s := r.slots[idx].Load()
		if s == nil {
			continue
		}
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// ResumeOutcome enumerates the five results find_by_usn can produce.
type ResumeOutcome int

const (
	ResumeSuccess ResumeOutcome = iota
	ResumeFailNotFound
	ResumeFailInvalidState
	ResumeFailTokenMismatch
	ResumeFailExpired
)

// String renders the outcome the way Observer implementations tag it.
func (o ResumeOutcome) String() string {
	switch o {
	case ResumeSuccess:
		return "success"
	case ResumeFailNotFound:
		return "fail_not_found"
	case ResumeFailInvalidState:
		return "fail_invalid_state"
	case ResumeFailTokenMismatch:
		return "fail_token_mismatch"
	case ResumeFailExpired:
		return "fail_expired"
	default:
		return "unknown"
	}
}

// ResumeStats is a snapshot of the five outcome counters.
type ResumeStats struct {
	Success          uint64
	FailNotFound     uint64
	FailInvalidState uint64
	FailTokenMismatch uint64
	FailExpired      uint64
}

// Snapshot returns the current resume-outcome counters.
func (r *Registry) Snapshot() ResumeStats {
	return ResumeStats{
		Success:           r.resumeSuccess.LoadAcquire(),
		FailNotFound:      r.resumeFailNotFound.LoadAcquire(),
		FailInvalidState:  r.resumeFailInvalidState.LoadAcquire(),
		FailTokenMismatch: r.resumeFailTokenMismatch.LoadAcquire(),
		FailExpired:       r.resumeFailExpired.LoadAcquire(),
	}
}

// FindByUSN implements the entire resume policy in one place, per
// spec.md §4.6. It performs a linear scan for a session with matching
// USN, then applies hijack-protection / token / expiry checks, closing
// and deregistering the stale session whenever the attempt fails for a
// reason other than "not found", and increments exactly one of the five
// outcome counters.
//
// isReconnectAttempt distinguishes an explicit resume (token != 0) from
// an internal lookup; on "not found" it controls whether the miss is
// counted (a reconnect attempt always counts a miss; other callers may
// probe without counting).
func (r *Registry) FindByUSN(usn, token uint64, isReconnectAttempt bool) (*session.Session, ResumeOutcome) {
	var found *session.Session
	for i := range r.slots {
		s := r.slots[i].Load()
		if s != nil && s.USN() == usn {
			found = s
			break
		}
	}

	if found == nil {
		if isReconnectAttempt {
			r.resumeFailNotFound.AddAcqRel(1)
		}
		return nil, ResumeFailNotFound
	}

	if found.State() != session.StateTempDisconnect {
		r.closeAndDeregister(found)
		r.resumeFailInvalidState.AddAcqRel(1)
		return nil, ResumeFailInvalidState
	}

	if !found.ValidateReconnectToken(token) {
		r.closeAndDeregister(found)
		r.resumeFailTokenMismatch.AddAcqRel(1)
		return nil, ResumeFailTokenMismatch
	}

	if found.IsDisconnectTimerExpired() {
		r.closeAndDeregister(found)
		r.resumeFailExpired.AddAcqRel(1)
		return nil, ResumeFailExpired
	}

	r.resumeSuccess.AddAcqRel(1)
	return found, ResumeSuccess
}

// closeAndDeregister implements the shared cleanup used by every failure
// branch of FindByUSN except "not found": close the stale socket, mark
// the session Closed, and remove it from the table.
func (r *Registry) closeAndDeregister(s *session.Session) {
	if sock := s.Socket(); sock != nil {
		sock.Close()
	}
	s.SetState(session.StateClosed)
	r.Deregister(s)
}

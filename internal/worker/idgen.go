package worker

import (
	"code.hybscloud.com/atomix"
)

// IDGenerator mints session ids and reconnect tokens, shared by every
// LocalThread in the fleet so ids never collide across workers.
type IDGenerator struct {
	nextID    atomix.Uint64
	nextToken atomix.Uint64
}

// NewIDGenerator returns a generator whose first session id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NextSessionID returns a fresh, monotonically increasing session id.
func (g *IDGenerator) NextSessionID() uint64 {
	return g.nextID.AddAcqRel(1)
}

// NextToken mints a fresh, strictly increasing reconnect token. The first
// token is 1, so zero (reserved to mean "no token" on the wire, a
// new-login request) is never returned.
func (g *IDGenerator) NextToken() uint64 {
	return g.nextToken.AddAcqRel(1)
}

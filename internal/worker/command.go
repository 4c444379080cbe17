package worker

import (
	"github.com/griffith06/MMORPG-Server/internal/pool"
	"github.com/griffith06/MMORPG-Server/internal/socket"
)

// CommandKind tags the four commands a LocalThread's command queue carries.
type CommandKind int

const (
	CmdCreateSession CommandKind = iota
	CmdRemoveSession
	CmdBroadcast
	CmdShutdown
)

// Command is the single command-queue element type; only the fields
// relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	Socket    *socket.Socket // CmdCreateSession
	SessionID uint64         // CmdRemoveSession

	MapID     uint32      // CmdBroadcast
	Packet    *pool.Buffer // CmdBroadcast: already this thread's own copy
	ExcludeID uint64      // CmdBroadcast
}

package gameserver

import "github.com/griffith06/MMORPG-Server/internal/constants"

// Re-exported tunables for callers that want to reference them without
// importing the internal package directly.
const (
	MaxPacketSize        = constants.MaxPacketSize
	PacketHeaderSize     = constants.PacketHeaderSize
	RecvBufferSize       = constants.RecvBufferSize
	MaxTotalSessions     = constants.MaxTotalSessions
	MaxSessionsPerThread = constants.MaxSessionsPerThread
	MaxLocalThreads      = constants.MaxLocalThreads
	ReconnectTimeoutSec  = constants.ReconnectTimeoutSec
	MaxBroadcastTargets  = constants.MaxBroadcastTargets
	NetworkMonitorWindow = constants.NetworkMonitorWindow

	PktMove     = constants.PktMove
	PktLoginReq = constants.PktLoginReq
	PktLoginRes = constants.PktLoginRes
)

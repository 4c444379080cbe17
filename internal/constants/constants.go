// Package constants holds the tunable sizes and timings of the session
// runtime in one place.
package constants

import "time"

// Wire format limits.
const (
	// PacketHeaderSize is the fixed 4-byte [size][protocol_id] header.
	PacketHeaderSize = 4

	// MaxPacketSize is the largest framed packet the runtime will accept,
	// including the header.
	MaxPacketSize = 2048

	// MinPacketSize is the smallest framed packet: the header alone.
	MinPacketSize = PacketHeaderSize
)

// Packet buffer pool.
const (
	// PacketBufferSize is the fixed payload capacity of one pool slot.
	PacketBufferSize = 2048

	// BufferPoolPageSize is how many buffers one page holds.
	BufferPoolPageSize = 4096

	// BufferPoolExpandSize is how many buffers a page adds on exhaustion.
	BufferPoolExpandSize = BufferPoolPageSize

	// BufferPoolAcquireRetries bounds the non-allocating retries after an
	// expansion, giving concurrent releasers a chance to land their push
	// before giving up and returning nil.
	BufferPoolAcquireRetries = 5

	// WorkerLocalCacheMax is the bound on each worker's local free-buffer
	// cache before it must flush back to the shared free list.
	WorkerLocalCacheMax = 1000

	// PoolBatchSize is the batch size used both when refilling a local
	// cache from the shared free list and when flushing a local cache
	// back to it.
	PoolBatchSize = 500
)

// Lock-free queues.
const (
	// SessionInboundQueueCapacity is the SPSC capacity of a Session's
	// inbound packet queue.
	SessionInboundQueueCapacity = 512

	// SocketSendQueueCapacity is the MPSC capacity of a Socket's outbound
	// send queue (usable capacity; the MPSC implementation allocates twice
	// this many physical slots for its SCQ-style slot cycling).
	SocketSendQueueCapacity = 4096

	// WorkerCommandQueueCapacity is the MPSC capacity of a worker's
	// command queue (CreateSession/RemoveSession/Broadcast/Shutdown).
	WorkerCommandQueueCapacity = 1024

	// SendBatchPopSize is how many buffers process_send_queue pops per
	// gathered write.
	SendBatchPopSize = 32
)

// Receive buffer.
const (
	// RecvBufferSize is the total capacity of a Socket's receive buffer.
	RecvBufferSize = 8192
)

// Session / registry.
const (
	// MaxTotalSessions sizes the registry's open-addressed pointer table.
	MaxTotalSessions = 10000

	// MaxSessionsPerThread sizes each worker's session slab.
	MaxSessionsPerThread = MaxTotalSessions/MaxLocalThreads + 1

	// ReconnectTimeoutSec is how long a TempDisconnect session's resume
	// window stays open before it is reaped.
	ReconnectTimeoutSec = 10

	// DefaultMapID is the map new sessions join absent any other
	// assignment (the core has no world-state concept of its own).
	DefaultMapID = 1
)

// Worker / thread manager.
const (
	// MaxLocalThreads is the default/maximum size of the worker fleet.
	MaxLocalThreads = 4

	// MaxIOThreads is the default size of the shared I/O goroutine pool.
	MaxIOThreads = 2

	// WorkerTickInterval is the worker's soft-periodic tick period.
	WorkerTickInterval = 16 * time.Millisecond

	// MaxBroadcastTargets caps how many recipients one broadcast fan-out
	// reaches, regardless of how many Active sessions share the map.
	MaxBroadcastTargets = 30
)

// Network monitor.
const (
	// NetworkMonitorWindow is how often the disconnect counter is sampled
	// and the send-queue limit re-selected.
	NetworkMonitorWindow = 10 * time.Second

	// MaxSendQueueSizeLOD0 is the relaxed limit used when disconnects in
	// the last window were low.
	MaxSendQueueSizeLOD0 = 4000

	// MaxSendQueueSizeLOD1 is the limit the literal (unreachable, see
	// internal/monitor) ">= 10000" branch would select.
	MaxSendQueueSizeLOD1 = 2000

	// MaxSendQueueSizeLOD2 is the tight limit applied once the
	// disconnect count crosses 5000 in a window.
	MaxSendQueueSizeLOD2 = 600

	// NetworkMonitorThresholdHigh is the "many disconnects" cutoff that
	// shadows NetworkMonitorThresholdVeryHigh in the literal ladder.
	NetworkMonitorThresholdHigh = 5000

	// NetworkMonitorThresholdVeryHigh would, on a correctly ordered
	// ladder, select MaxSendQueueSizeLOD1; it is unreachable as written.
	NetworkMonitorThresholdVeryHigh = 10000
)

// Protocol identifiers. FLoginFailPacket and FKickPacket are reserved wire
// types (see internal/wire) but never carry their own protocol_id in the
// original source and are never dispatched by the core.
const (
	PktMove     = 1
	PktLoginReq = 100
	PktLoginRes = 101
)

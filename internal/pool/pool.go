// Package pool implements the packet buffer pool: fixed-size (2 KiB)
// reusable packet slots, growable in large pages that never move, backed
// by a spin-locked shared free list and a bounded per-worker local cache.
package pool

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/griffith06/MMORPG-Server/internal/constants"
)

// Buffer is one pool-allocated packet slot. It is never copied or moved:
// every reference to a Buffer is a *Buffer into its owning page.
type Buffer struct {
	Data       [constants.PacketBufferSize]byte
	Size       uint16
	ProtocolID uint16
	SessionID  uint64
	allocated  atomix.Bool
}

// CopyFrom copies src (a full framed packet, header included) into the
// buffer's payload and records its size.
func (b *Buffer) CopyFrom(src []byte) {
	n := copy(b.Data[:], src)
	b.Size = uint16(n)
}

// Payload returns the framed bytes currently held by the buffer.
func (b *Buffer) Payload() []byte {
	return b.Data[:b.Size]
}

func (b *Buffer) reset() {
	b.Size = 0
	b.ProtocolID = 0
	b.SessionID = 0
}

// page is one contiguous, never-resized array of buffers.
type page struct {
	buffers []Buffer
}

// Pool is the process-wide packet buffer pool.
type Pool struct {
	pagesMu sync.Mutex // serializes page expansion only
	pages   []*page

	freeLock atomix.Bool // test-and-set spin-flag guarding freeList
	freeList []*Buffer

	acquired atomix.Uint64 // outstanding buffers, for Stats
	exhausted atomix.Uint64
	doubleReleases atomix.Uint64
}

// New creates an empty pool; call Initialize before first use.
func New() *Pool {
	return &Pool{}
}

// Initialize allocates the first page, holding exactly n buffers (n <= 0
// selects BufferPoolPageSize). Not safe to call concurrently with itself.
func (p *Pool) Initialize(n int) {
	if n <= 0 {
		n = constants.BufferPoolPageSize
	}
	p.expand(n)
}

// Shutdown releases all pages. Not reentrant; callers must ensure no
// other goroutine is using the pool.
func (p *Pool) Shutdown() {
	p.pagesMu.Lock()
	defer p.pagesMu.Unlock()
	p.pages = nil
	p.freeList = nil
}

// expand appends a new page of n buffers and pushes them all onto the
// free list. Serialized by pagesMu so concurrent exhaustion only creates
// one page.
func (p *Pool) expand(n int) {
	p.pagesMu.Lock()
	defer p.pagesMu.Unlock()

	pg := &page{buffers: make([]Buffer, n)}
	p.pages = append(p.pages, pg)

	fresh := make([]*Buffer, n)
	for i := range pg.buffers {
		fresh[i] = &pg.buffers[i]
	}
	p.pushFree(fresh)
}

// lockFree/unlockFree implement the spin-flag ("test-and-set") protecting
// freeList, per spec: the page list uses a mutex, the free list a spin.
func (p *Pool) lockFree() {
	sw := spin.Wait{}
	for !p.freeLock.CompareAndSwap(false, true) {
		sw.Once()
	}
}

func (p *Pool) unlockFree() {
	p.freeLock.StoreRelease(false)
}

func (p *Pool) pushFree(bufs []*Buffer) {
	p.lockFree()
	p.freeList = append(p.freeList, bufs...)
	p.unlockFree()
}

// popFreeBatch pops up to n buffers from the shared free list.
func (p *Pool) popFreeBatch(n int) []*Buffer {
	p.lockFree()
	avail := len(p.freeList)
	if n > avail {
		n = avail
	}
	var out []*Buffer
	if n > 0 {
		out = append(out, p.freeList[avail-n:]...)
		p.freeList = p.freeList[:avail-n]
	}
	p.unlockFree()
	return out
}

// Acquire returns a zeroed-metadata buffer with its allocated flag set.
// On exhaustion it expands the pool by BufferPoolExpandSize buffers and
// retries up to BufferPoolAcquireRetries times (other threads may be
// mid-push into a list that looked empty); it returns nil only after
// those retries are spent.
func (p *Pool) Acquire() *Buffer {
	if buf := p.popFreeBatch(1); len(buf) == 1 {
		return p.claim(buf[0])
	}
	if batch := p.popFreeBatch(constants.PoolBatchSize); len(batch) > 0 {
		buf := batch[0]
		if len(batch) > 1 {
			p.pushFree(batch[1:])
		}
		return p.claim(buf)
	}

	p.expand(constants.BufferPoolExpandSize)

	for i := 0; i < constants.BufferPoolAcquireRetries; i++ {
		if buf := p.popFreeBatch(1); len(buf) == 1 {
			return p.claim(buf[0])
		}
	}
	p.exhausted.AddAcqRel(1)
	return nil
}

func (p *Pool) claim(buf *Buffer) *Buffer {
	buf.reset()
	buf.allocated.StoreRelease(true)
	p.acquired.AddAcqRel(1)
	return buf
}

// Release returns buf to circulation. A double release (allocated
// already false) is silently absorbed and counted, not fatal.
func (p *Pool) Release(buf *Buffer) {
	if !buf.allocated.CompareAndSwap(true, false) {
		p.doubleReleases.AddAcqRel(1)
		return
	}
	p.acquired.AddAcqRel(^uint64(0)) // decrement
	p.pushFree([]*Buffer{buf})
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Acquired       uint64
	FreeListLen    int
	Pages          int
	Exhausted      uint64
	DoubleReleases uint64
}

// Snapshot returns current pool statistics.
func (p *Pool) Snapshot() Stats {
	p.lockFree()
	freeLen := len(p.freeList)
	p.unlockFree()

	p.pagesMu.Lock()
	pages := len(p.pages)
	p.pagesMu.Unlock()

	return Stats{
		Acquired:       p.acquired.LoadAcquire(),
		FreeListLen:    freeLen,
		Pages:          pages,
		Exhausted:      p.exhausted.LoadAcquire(),
		DoubleReleases: p.doubleReleases.LoadAcquire(),
	}
}

// LocalCache is a per-worker bounded front-end to the pool's shared free
// list, amortizing the spin-lock over PoolBatchSize-sized exchanges.
// Acquire/Release must only be called from the cache's owning goroutine;
// length is additionally mirrored into an atomic counter, the same
// pattern LocalThread uses for activeLen, so Len can be read from other
// goroutines (stats, tests) without racing the owner's slice mutations.
type LocalCache struct {
	pool   *Pool
	bufs   []*Buffer
	length atomix.Uint64
}

// NewLocalCache creates a worker-local cache bound to pool.
func NewLocalCache(pool *Pool) *LocalCache {
	return &LocalCache{pool: pool}
}

// Len reports how many buffers currently sit in the cache. Safe to call
// from any goroutine.
func (c *LocalCache) Len() int { return int(c.length.LoadAcquire()) }

// Acquire returns a buffer from the local cache, refilling in one
// PoolBatchSize batch from the shared free list when empty. Only when the
// shared list cannot even fill a partial batch does this fall through to
// Pool.Acquire, which pays the expansion-and-retry cost once for the
// whole cache instead of once per packet.
func (c *LocalCache) Acquire() *Buffer {
	if len(c.bufs) == 0 {
		if batch := c.pool.popFreeBatch(constants.PoolBatchSize); len(batch) > 0 {
			c.bufs = batch
			c.length.StoreRelease(uint64(len(c.bufs)))
		} else if buf := c.pool.Acquire(); buf != nil {
			return buf
		} else {
			return nil
		}
	}
	n := len(c.bufs) - 1
	buf := c.bufs[n]
	c.bufs = c.bufs[:n]
	c.length.StoreRelease(uint64(n))
	buf.reset()
	buf.allocated.StoreRelease(true)
	c.pool.acquired.AddAcqRel(1)
	return buf
}

// Release returns buf to the local cache, flushing half of it back to the
// shared pool's free list when the cache is full.
func (c *LocalCache) Release(buf *Buffer) {
	if !buf.allocated.CompareAndSwap(true, false) {
		c.pool.doubleReleases.AddAcqRel(1)
		return
	}
	c.pool.acquired.AddAcqRel(^uint64(0)) // decrement
	if len(c.bufs) >= constants.WorkerLocalCacheMax {
		half := len(c.bufs) / 2
		c.pool.pushFree(append([]*Buffer(nil), c.bufs[:half]...))
		c.bufs = c.bufs[half:]
	}
	c.bufs = append(c.bufs, buf)
	c.length.StoreRelease(uint64(len(c.bufs)))
}

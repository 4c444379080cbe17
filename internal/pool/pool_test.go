package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/pool"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := pool.New()
	p.Initialize(16)

	buf := p.Acquire()
	require.NotNil(t, buf)

	buf.CopyFrom([]byte{1, 2, 3, 4})
	require.Equal(t, []byte{1, 2, 3, 4}, buf.Payload())

	p.Release(buf)
	stats := p.Snapshot()
	require.Zero(t, stats.Acquired)
}

func TestDoubleReleaseIsAbsorbed(t *testing.T) {
	p := pool.New()
	p.Initialize(4)

	buf := p.Acquire()
	require.NotNil(t, buf)

	p.Release(buf)
	p.Release(buf) // double release: must not panic, must be counted

	stats := p.Snapshot()
	require.EqualValues(t, 1, stats.DoubleReleases)
}

func TestExpandsOnExhaustion(t *testing.T) {
	p := pool.New()
	p.Initialize(2)

	var bufs []*pool.Buffer
	for i := 0; i < 10; i++ {
		buf := p.Acquire()
		require.NotNil(t, buf)
		bufs = append(bufs, buf)
	}

	stats := p.Snapshot()
	require.GreaterOrEqual(t, stats.Pages, 2)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	p := pool.New()
	p.Initialize(64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				buf := p.Acquire()
				if buf != nil {
					p.Release(buf)
				}
			}
		}()
	}
	wg.Wait()

	stats := p.Snapshot()
	require.Zero(t, stats.Acquired)
	require.Zero(t, stats.DoubleReleases)
}

func TestLocalCache(t *testing.T) {
	p := pool.New()
	p.Initialize(16)
	cache := pool.NewLocalCache(p)

	buf := cache.Acquire()
	require.NotNil(t, buf)
	cache.Release(buf)

	buf2 := cache.Acquire()
	require.NotNil(t, buf2)
}

func TestLocalCacheBatchRefillDoesNotContendSharedPoolPerBuffer(t *testing.T) {
	p := pool.New()
	p.Initialize(16)
	cache := pool.NewLocalCache(p)

	buf := cache.Acquire()
	require.NotNil(t, buf)

	// One acquire should have pulled the whole page into the cache in a
	// single batch, not one buffer at a time off the shared free list.
	require.Zero(t, p.Snapshot().FreeListLen)
	require.EqualValues(t, 15, cache.Len())

	cache.Release(buf)
	require.EqualValues(t, 16, cache.Len())
	require.Zero(t, p.Snapshot().FreeListLen, "released buffer should return to the cache, not the shared pool")
}

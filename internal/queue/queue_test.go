package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/griffith06/MMORPG-Server/internal/queue"
)

func TestSPSCBasic(t *testing.T) {
	q := queue.NewSPSC[int](4)
	require.Equal(t, 4, q.Cap())

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	v, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = q.Dequeue()
	require.ErrorIs(t, err, queue.ErrQueueEmpty)
}

func TestSPSCFull(t *testing.T) {
	q := queue.NewSPSC[int](2)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.ErrorIs(t, q.Enqueue(3), queue.ErrQueueFull)
}

func TestSPSCConcurrentProducerConsumer(t *testing.T) {
	q := queue.NewSPSC[int](64)
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for q.Enqueue(i) != nil {
			}
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for {
				v, err := q.Dequeue()
				if err == nil {
					sum += v
					break
				}
			}
		}
	}()

	wg.Wait()
	require.Equal(t, n*(n-1)/2, sum)
}

func TestMPSCBasic(t *testing.T) {
	q := queue.NewMPSC[int](4)
	require.Equal(t, 4, q.Cap())

	require.NoError(t, q.Enqueue(10))
	require.NoError(t, q.Enqueue(20))

	v, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 10, v)
}

func TestMPSCFull(t *testing.T) {
	q := queue.NewMPSC[int](2)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.ErrorIs(t, q.Enqueue(3), queue.ErrQueueFull)
}

func TestMPSCMultipleProducers(t *testing.T) {
	q := queue.NewMPSC[int](8192) // room for all 8000 items: nothing drains until every producer is done
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for q.Enqueue(1) != nil {
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	buf := make([]int, 64)
	for {
		n := q.DequeueBatch(buf)
		total += n
		if n == 0 {
			break
		}
	}
	require.Equal(t, producers*perProducer, total)
}

func TestMPSCDequeueBatch(t *testing.T) {
	q := queue.NewMPSC[int](64)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	dst := make([]int, 32)
	n := q.DequeueBatch(dst)
	require.Equal(t, 10, n)
	for i := 0; i < 10; i++ {
		require.Equal(t, i, dst[i])
	}
}

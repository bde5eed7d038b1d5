package queue_test

import (
	"sync"
	"testing"

	"github.com/grz0zrg/fas/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFullLeavesContents(t *testing.T) {
	q := queue.New[int](4)
	require.Equal(t, 4, q.Cap())
	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.False(t, q.Enqueue(99), "enqueue beyond capacity must report full")
	assert.Equal(t, 4, q.Len())
	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestQueueHonorsRequestedCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 5} {
		q := queue.New[int](capacity)
		require.Equal(t, capacity, q.Cap())
		for round := 0; round < 3; round++ {
			for i := 0; i < capacity; i++ {
				require.True(t, q.Enqueue(i))
			}
			assert.False(t, q.Enqueue(99), "capacity %d", capacity)
			for i := 0; i < capacity; i++ {
				v, ok := q.Dequeue()
				require.True(t, ok)
				assert.Equal(t, i, v)
			}
		}
	}
	assert.Equal(t, 1, queue.New[int](0).Cap())
}

func TestQueueWrapAround(t *testing.T) {
	q := queue.New[string](2)
	for round := 0; round < 10; round++ {
		require.True(t, q.Enqueue("a"))
		require.True(t, q.Enqueue("b"))
		assert.False(t, q.Enqueue("c"))
		v, _ := q.Dequeue()
		assert.Equal(t, "a", v)
		v, _ = q.Dequeue()
		assert.Equal(t, "b", v)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	const (
		producers = 4
		perWriter = 20000
	)
	q := queue.New[[2]int](64)
	var enqueued [producers]int
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if q.Enqueue([2]int{p, i}) {
					enqueued[p]++
				}
			}
		}(p)
	}
	stop := make(chan struct{})
	var dequeued int
	lastPerProducer := [producers]int{-1, -1, -1, -1}
	consumer := make(chan struct{})
	go func() {
		defer close(consumer)
		for {
			v, ok := q.Dequeue()
			if ok {
				dequeued++
				assert.Greater(t, v[1], lastPerProducer[v[0]], "per producer order must be kept")
				lastPerProducer[v[0]] = v[1]
				continue
			}
			select {
			case <-stop:
				if q.Len() == 0 {
					return
				}
			default:
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-consumer
	total := 0
	for _, n := range enqueued {
		total += n
	}
	assert.Equal(t, total, dequeued, "successful dequeues must equal successful enqueues")
}

// Package queue provides a bounded lock-free multi-producer single-consumer
// queue. Each cell carries a sequence number telling producers and the consumer
// whose turn it is, so neither side ever takes a lock.
package queue

import (
	"sync/atomic"

	"github.com/grz0zrg/fas/pool"
)

type (
	// Queue is a bounded FIFO. Enqueue may be called from any number of
	// goroutines; Dequeue from one goroutine at a time.
	Queue[T any] struct {
		cells   []cell[T]
		mask    uint64
		limit   uint64
		enqueue atomic.Uint64
		dequeue atomic.Uint64
	}

	cell[T any] struct {
		seq   atomic.Uint64
		value T
	}
)

// New creates a queue holding up to capacity values, at least one. The cell
// ring is a power of two of at least 2 cells; enqueues beyond capacity are
// refused even when cells are left.
func New[T any](capacity int) *Queue[T] {
	capacity = max(capacity, 1)
	n := 2
	for n < capacity {
		n <<= 1
	}
	q := &Queue[T]{cells: make([]cell[T], n), mask: uint64(n - 1), limit: uint64(capacity)}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int { return int(q.limit) }

// Len returns the number of queued values. Snapshot only.
func (q *Queue[T]) Len() int {
	return int(q.enqueue.Load() - q.dequeue.Load())
}

// Enqueue appends v. It returns false without modifying the queue when the
// queue is full.
func (q *Queue[T]) Enqueue(v T) bool {
	var b pool.Backoff
	for {
		pos := q.enqueue.Load()
		// the dequeue position only grows, a stale load errs on full
		if pos-q.dequeue.Load() >= q.limit {
			return false
		}
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				c.value = v
				c.seq.Store(pos + 1)
				return true
			}
			b.Wait()
		case diff < 0:
			return false
		default:
			// another producer claimed pos, reload
		}
	}
}

// Dequeue removes the oldest value. ok is false when the queue is empty or
// the oldest producer has not finished writing yet.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	pos := q.dequeue.Load()
	c := &q.cells[pos&q.mask]
	if c.seq.Load() != pos+1 {
		return v, false
	}
	v = c.value
	var zero T
	c.value = zero
	q.dequeue.Store(pos + 1)
	c.seq.Store(pos + q.mask + 1)
	return v, true
}

// Package relay passes pool handles from one writer goroutine to one reader
// goroutine through a bounded ring. The ring is lossy: when it is full, Write
// evicts the oldest unread handle and hands it back so the writer can return
// it to its pool. A reader that fell behind skips forward to recent data
// instead of accumulating latency.
package relay

import (
	"sync/atomic"

	"github.com/grz0zrg/fas/pool"
)

// Relay is a single-producer, single-consumer lossy ring of pool handles. Write
// must only be called from one goroutine, and Read from one (possibly other)
// goroutine. Neither call blocks or allocates.
type Relay struct {
	cells []atomic.Uint64
	read  atomic.Uint64 // next position to read, advanced by the reader or by an eviction
	write atomic.Uint64 // next position to write, advanced by the writer only
}

// New creates a relay holding up to capacity handles.
func New(capacity int) *Relay {
	if capacity < 1 {
		capacity = 1
	}
	return &Relay{cells: make([]atomic.Uint64, capacity)}
}

// Cap returns the capacity of the relay.
func (r *Relay) Cap() int { return len(r.cells) }

// Len returns the number of unread handles. Snapshot only.
func (r *Relay) Len() int {
	return int(r.write.Load() - r.read.Load())
}

// Write publishes h. If the relay was full, the oldest unread handle is removed
// and returned with evicted set to true; the caller now owns it.
func (r *Relay) Write(h pool.Handle) (old pool.Handle, evicted bool) {
	w := r.write.Load()
	n := uint64(len(r.cells))
	var b pool.Backoff
	for {
		rd := r.read.Load()
		if w-rd < n {
			break
		}
		// the cell at rd is only overwritten by this goroutine, so its value
		// is stable until the read position moves past it
		v := pool.Handle(r.cells[rd%n].Load())
		if r.read.CompareAndSwap(rd, rd+1) {
			old, evicted = v, true
			break
		}
		// the reader consumed it first, there is room now
		b.Wait()
	}
	r.cells[w%n].Store(uint64(h))
	r.write.Store(w + 1)
	return old, evicted
}

// Read takes the oldest unread handle. ok is false when nothing was written
// since the last successful read.
func (r *Relay) Read() (h pool.Handle, ok bool) {
	n := uint64(len(r.cells))
	for {
		rd := r.read.Load()
		if rd == r.write.Load() {
			return 0, false
		}
		v := pool.Handle(r.cells[rd%n].Load())
		if r.read.CompareAndSwap(rd, rd+1) {
			return v, true
		}
		// lost the race against an eviction, the writer already moved on
	}
}

// Drain reads every pending handle and passes it to fn. It must only be used
// when the regular reader is stopped.
func (r *Relay) Drain(fn func(pool.Handle)) int {
	count := 0
	for {
		h, ok := r.Read()
		if !ok {
			return count
		}
		fn(h)
		count++
	}
}

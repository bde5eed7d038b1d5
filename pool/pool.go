// Package pool implements a lock-free arena of reusable buffers. Free slots
// form a LIFO stack threaded through the arena by index; the stack head is a
// single 64-bit word packing a generation counter with the top slot index, so
// a slot that was popped and pushed back between a reader's load and its
// compare-and-swap is never mistaken for the original occupant.
//
// Acquire and Release never allocate and never block, which makes them safe to
// call from the audio callback.
package pool

import (
	"fmt"
	"sync/atomic"
)

type (
	// Handle identifies an acquired slot. It packs the slot index with the
	// generation of the pop that produced it, so a handle kept after its slot
	// was released and re-acquired can be told apart from the live one. The
	// zero Handle is never returned by Acquire.
	Handle uint64

	// Pool is a fixed-size arena of T values. The zero value is an empty pool
	// with no slots; use New.
	Pool[T any] struct {
		head  atomic.Uint64 // generation<<32 | (index+1), 0 index = empty
		slots []slot[T]
		free  atomic.Int64
	}

	slot[T any] struct {
		next  atomic.Uint32 // index+1 of the slot below in the free stack
		owner atomic.Uint32 // generation of the handle owning this slot, 0 = free
		value T
	}
)

// New creates a pool with n slots, each initialized by newFn, all free.
func New[T any](n int, newFn func() T) *Pool[T] {
	p := &Pool[T]{}
	p.fill(n, newFn)
	return p
}

func (h Handle) index() uint32      { return uint32(h) - 1 }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index+1))
}

func pack(generation, top uint32) uint64 { return uint64(generation)<<32 | uint64(top) }

func unpack(w uint64) (generation, top uint32) { return uint32(w >> 32), uint32(w) }

// Cap returns the number of slots in the pool.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// Free returns the number of free slots. The value is a snapshot and may be
// stale by the time it is used.
func (p *Pool[T]) Free() int { return int(p.free.Load()) }

// Acquire pops a free slot. ok is false when the pool is exhausted; the caller
// must then drop its work rather than wait.
func (p *Pool[T]) Acquire() (h Handle, ok bool) {
	var b backoff
	for {
		old := p.head.Load()
		gen, top := unpack(old)
		if top == 0 {
			return 0, false
		}
		next := p.slots[top-1].next.Load()
		if p.head.CompareAndSwap(old, pack(gen+1, next)) {
			// generation 0 marks a free slot, skip it on wrap around
			owner := gen + 1
			if owner == 0 {
				owner = 1
			}
			p.slots[top-1].owner.Store(owner)
			p.free.Add(-1)
			return makeHandle(top-1, owner), true
		}
		b.wait()
	}
}

// Release pushes the slot of h back on the free stack. Releasing a handle that
// is not the current owner of its slot is a programming error and panics.
func (p *Pool[T]) Release(h Handle) {
	if !p.Owns(h) {
		panic(fmt.Sprintf("pool: release of stale handle %#x", uint64(h)))
	}
	i := h.index()
	s := &p.slots[i]
	s.owner.Store(0)
	p.free.Add(1)
	var b backoff
	for {
		old := p.head.Load()
		gen, top := unpack(old)
		s.next.Store(top)
		if p.head.CompareAndSwap(old, pack(gen, i+1)) {
			return
		}
		b.wait()
	}
}

// Owns reports whether h is the live handle of an acquired slot.
func (p *Pool[T]) Owns(h Handle) bool {
	if h == 0 {
		return false
	}
	i := h.index()
	if int(i) >= len(p.slots) {
		return false
	}
	return p.slots[i].owner.Load() == h.generation()
}

// Get returns the value of an acquired slot. The pointer is valid until the
// handle is released.
func (p *Pool[T]) Get(h Handle) *T {
	if !p.Owns(h) {
		panic(fmt.Sprintf("pool: access through stale handle %#x", uint64(h)))
	}
	return &p.slots[h.index()].value
}

// Reset discards every slot and refills the pool with n fresh values. It is
// not safe for concurrent use: every other user of the pool must be stopped,
// and handles acquired before Reset become stale.
func (p *Pool[T]) Reset(n int, newFn func() T) {
	gen, _ := unpack(p.head.Load())
	p.slots = nil
	p.fill(n, newFn)
	// keep generations moving forward so old handles stay stale
	_, top := unpack(p.head.Load())
	p.head.Store(pack(gen+1, top))
}

func (p *Pool[T]) fill(n int, newFn func() T) {
	p.slots = make([]slot[T], n)
	var top uint32
	for i := range p.slots {
		p.slots[i].value = newFn()
		p.slots[i].next.Store(top)
		top = uint32(i + 1)
	}
	p.head.Store(pack(0, top))
	p.free.Store(int64(n))
}

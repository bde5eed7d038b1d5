package pool_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/grz0zrg/fas/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id   int
	busy atomic.Int32
}

func newItems(n int) *pool.Pool[*item] {
	next := 0
	return pool.New(n, func() *item {
		next++
		return &item{id: next}
	})
}

func TestPoolIsLIFO(t *testing.T) {
	p := newItems(2)
	a, ok := p.Acquire()
	require.True(t, ok)
	b, ok := p.Acquire()
	require.True(t, ok)
	ida, idb := (*p.Get(a)).id, (*p.Get(b)).id
	p.Release(a)
	p.Release(b)
	h, ok := p.Acquire()
	require.True(t, ok)
	assert.Equal(t, idb, (*p.Get(h)).id, "last pushed must be popped first")
	h2, ok := p.Acquire()
	require.True(t, ok)
	assert.Equal(t, ida, (*p.Get(h2)).id)
}

func TestPoolEmpty(t *testing.T) {
	p := newItems(1)
	h, ok := p.Acquire()
	require.True(t, ok)
	_, ok = p.Acquire()
	assert.False(t, ok, "acquire on exhausted pool must report empty")
	assert.Equal(t, 0, p.Free())
	p.Release(h)
	assert.Equal(t, 1, p.Free())
}

func TestPoolStaleHandle(t *testing.T) {
	p := newItems(1)
	h, _ := p.Acquire()
	p.Release(h)
	h2, ok := p.Acquire()
	require.True(t, ok)
	assert.NotEqual(t, h, h2, "reacquired slot must carry a new generation")
	assert.False(t, p.Owns(h))
	assert.True(t, p.Owns(h2))
	assert.Panics(t, func() { p.Release(h) })
	assert.Panics(t, func() { p.Get(h) })
	assert.False(t, p.Owns(0))
}

func TestPoolReset(t *testing.T) {
	p := newItems(2)
	h, _ := p.Acquire()
	p.Reset(3, func() *item { return &item{id: 100} })
	assert.Equal(t, 3, p.Cap())
	assert.Equal(t, 3, p.Free())
	assert.False(t, p.Owns(h), "handles acquired before Reset must be stale")
	for i := 0; i < 3; i++ {
		h, ok := p.Acquire()
		require.True(t, ok)
		assert.Equal(t, 100, (*p.Get(h)).id)
	}
	_, ok := p.Acquire()
	assert.False(t, ok)
}

func TestPoolConcurrentOwnership(t *testing.T) {
	const (
		workers = 8
		rounds  = 20000
	)
	p := newItems(4)
	var violations atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, ok := p.Acquire()
				if !ok {
					continue
				}
				it := *p.Get(h)
				if !it.busy.CompareAndSwap(0, 1) {
					violations.Add(1)
				}
				it.busy.Store(0)
				p.Release(h)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, violations.Load(), "two acquires returned the same live slot")
	assert.Equal(t, 4, p.Free())
}

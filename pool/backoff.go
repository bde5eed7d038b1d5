package pool

import "sync/atomic"

// backoff spaces out compare-and-swap retries on a contended word. The delay
// doubles on every failed attempt up to maxSpins iterations of a busy loop;
// it never sleeps or yields to the scheduler, so it is usable on the audio
// callback.
type backoff struct {
	spins int
}

const (
	minSpins = 4
	maxSpins = 1024
)

// keeps the spin loop from being optimized away
var spinSink atomic.Uint32

func (b *backoff) wait() {
	if b.spins < minSpins {
		b.spins = minSpins
	}
	var x uint32
	for i := 0; i < b.spins; i++ {
		x += uint32(i)
	}
	spinSink.Store(x)
	if b.spins < maxSpins {
		b.spins *= 2
	}
}

// Backoff is the exported form of the retry policy for the other lock-free
// structures of this module.
type Backoff struct{ b backoff }

// Wait delays the caller before the next retry.
func (b *Backoff) Wait() { b.b.wait() }

package synth

// Rand is a small xorshift generator. Unlike math/rand it has no locking and
// lives inline in its owner, so the audio callback can draw numbers without
// synchronization or allocation. The zero value is seeded with 1.
type Rand struct {
	state uint32
}

// NewRand returns a generator seeded with seed (0 is replaced by 1).
func NewRand(seed uint32) *Rand {
	r := &Rand{}
	r.Seed(seed)
	return r
}

func (r *Rand) Seed(seed uint32) {
	if seed == 0 {
		seed = 1
	}
	r.state = seed
}

// Uint32 returns the next pseudo-random value.
func (r *Rand) Uint32() uint32 {
	if r.state == 0 {
		r.state = 1
	}
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint32()>>8) / (1 << 24)
}

// Range returns a value in [lo, hi).
func (r *Rand) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Intn returns a value in [0, n). n must be positive.
func (r *Rand) Intn(n int) int {
	return int(r.Uint32() % uint32(n))
}

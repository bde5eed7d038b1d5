// Package synth contains the synthesis building blocks used by the render
// engine: precomputed tables, the oscillator and grain banks, and the volume
// interpolator. Everything that runs per sample works on preallocated memory.
package synth

import "math"

const (
	// NoiseTableSize is the length of the white noise table. It matches the
	// range of a uint16 so the read index wraps for free.
	NoiseTableSize = 65536

	// EnvelopeSize is the length of every grain envelope table.
	EnvelopeSize = 8192
)

// Envelope shapes available to grains.
const (
	EnvSine = iota
	EnvHann
	EnvHamming
	EnvTukey
	EnvGaussian
	EnvTrapezoid
	NumEnvelopes
)

// SineTable returns one period of a sine wave sampled size times.
func SineTable(size int) []float32 {
	t := make([]float32, size)
	for i := range t {
		t[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(size)))
	}
	return t
}

// NoiseTable returns size uniformly distributed values in [-amount, amount].
func NoiseTable(size int, amount float64, rng *Rand) []float32 {
	t := make([]float32, size)
	for i := range t {
		t[i] = float32(rng.Range(-1, 1) * amount)
	}
	return t
}

// Envelopes returns NumEnvelopes amplitude windows of the given size, indexed
// by the Env constants.
func Envelopes(size int) [][]float32 {
	envs := make([][]float32, NumEnvelopes)
	for e := range envs {
		envs[e] = make([]float32, size)
	}
	n := float64(size - 1)
	if n <= 0 {
		n = 1
	}
	for i := 0; i < size; i++ {
		x := float64(i) / n
		envs[EnvSine][i] = float32(math.Sin(math.Pi * x))
		envs[EnvHann][i] = float32(0.5 * (1 - math.Cos(2*math.Pi*x)))
		envs[EnvHamming][i] = float32(0.54 - 0.46*math.Cos(2*math.Pi*x))
		envs[EnvTukey][i] = float32(tukey(x, 0.5))
		envs[EnvGaussian][i] = float32(math.Exp(-0.5 * math.Pow((x-0.5)/0.15, 2)))
		envs[EnvTrapezoid][i] = float32(math.Min(1, 4*math.Min(x, 1-x)))
	}
	return envs
}

func tukey(x, alpha float64) float64 {
	switch {
	case x < alpha/2:
		return 0.5 * (1 + math.Cos(math.Pi*(2*x/alpha-1)))
	case x > 1-alpha/2:
		return 0.5 * (1 + math.Cos(math.Pi*(2*x/alpha-2/alpha+1)))
	}
	return 1
}

package synth

import "math"

// Oscillator is the persistent state of one additive voice. Every output
// channel pair has its own phase so channels do not interfere.
type Oscillator struct {
	Freq  float64   // frequency in Hz
	Step  float64   // phase increment per sample, in wavetable entries
	Phase []float64 // current wavetable position, one per channel
}

// Frequency returns the frequency of voice index in a bank of count voices
// spanning octaves octaves above base. Index 0 is the highest voice, which
// matches the top-down row order of the frame data.
func Frequency(index, count, octaves int, base float64) float64 {
	octaveLength := float64(count) / float64(octaves)
	y := float64(count - index - 1)
	return base * math.Pow(2, y/octaveLength)
}

// NewOscillators creates a bank of count oscillators for the given number of
// channels. Phases start at random positions to avoid a click of aligned
// sines when many voices start together.
func NewOscillators(count, octaves int, base float64, sampleRate, tableSize, channels int, rng *Rand) []Oscillator {
	oscs := make([]Oscillator, count)
	phases := make([]float64, count*channels)
	for i := range oscs {
		freq := Frequency(i, count, octaves, base)
		o := &oscs[i]
		o.Freq = freq
		o.Step = freq / float64(sampleRate) * float64(tableSize)
		o.Phase = phases[i*channels : (i+1)*channels : (i+1)*channels]
		for k := range o.Phase {
			o.Phase[k] = float64(rng.Intn(tableSize))
		}
	}
	return oscs
}

// Frequencies returns the frequency of every voice of a bank, as reported by
// the telemetry.
func Frequencies(count, octaves int, base float64) []float64 {
	f := make([]float64, count)
	for i := range f {
		f[i] = Frequency(i, count, octaves, base)
	}
	return f
}

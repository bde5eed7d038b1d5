package synth

import "math"

const (
	minGrainSeconds = 0.02
	maxGrainSeconds = 1.0
)

// Grain is the persistent playback cursor of one granular voice.
type Grain struct {
	Start    int     // first frame of the grain in the source sample
	Pos      float64 // position inside the grain, in source frames
	Speed    float64 // source frames advanced per output sample
	Length   float64 // grain length in source frames
	EnvType  int     // envelope shape
	EnvIndex float64 // position in the envelope table
	EnvStep  float64 // envelope advance per output sample
}

// NewGrains creates a bank of count grains. The playback speed of each grain
// is the pitch ratio of the matching oscillator, centered so the middle of the
// bank plays samples at their original speed.
func NewGrains(count, octaves int, base float64, sampleRate int, rng *Rand) []Grain {
	grains := make([]Grain, count)
	center := math.Pow(2, float64(octaves)/2)
	for i := range grains {
		g := &grains[i]
		g.Speed = Frequency(i, count, octaves, base) / base / center
		g.EnvType = rng.Intn(NumEnvelopes)
		g.reseed(sampleRate, rng)
	}
	return grains
}

func (g *Grain) reseed(sampleRate int, rng *Rand) {
	g.Length = rng.Range(minGrainSeconds, maxGrainSeconds) * float64(sampleRate)
	g.EnvStep = EnvelopeSize / (g.Length / g.Speed)
	g.EnvIndex = 0
	g.Pos = 0
}

// Advance moves the grain by one output sample. When the grain completes, the
// read cursor moves forward by alpha of the grain length within a source of
// frames frames, and a new random length is drawn.
func (g *Grain) Advance(alpha float32, frames, sampleRate int, rng *Rand) {
	g.Pos += g.Speed
	g.EnvIndex += g.EnvStep
	if g.Pos < g.Length {
		return
	}
	g.Start += int(math.Round(g.Length * float64(alpha)))
	g.reseed(sampleRate, rng)
	if span := frames - int(g.Length); span > 0 {
		g.Start %= span
		if g.Start < 0 {
			g.Start += span
		}
	} else {
		g.Start = 0
	}
}

// Envelope returns the current envelope value of the grain.
func (g *Grain) Envelope(envs [][]float32) float32 {
	return envs[g.EnvType][int(g.EnvIndex)%EnvelopeSize]
}

// Package fas holds the data model shared by the ingestion and render sides of
// the audio server: notes and frames produced from the network, synthesis
// settings, and the audio output interfaces.
package fas

import "fmt"

// Method is the synthesis method used to render one stereo channel.
type Method uint32

const (
	Additive Method = iota
	Granular
)

func (m Method) String() string {
	switch m {
	case Additive:
		return "additive"
	case Granular:
		return "granular"
	}
	return fmt.Sprintf("Method(%d)", uint32(m))
}

// Valid reports whether m is a known synthesis method.
func (m Method) Valid() bool { return m <= Granular }

type (
	// Settings is the synthesis configuration sent by the client.
	Settings struct {
		Oscillators   int     // oscillators (or grains) per channel
		Octaves       int     // octave span covered by the oscillator bank
		FloatData     bool    // frame samples are float32 instead of uint8
		BaseFrequency float64 // frequency of the lowest oscillator, in Hz
	}

	// Gain is the output gain of the left and right channels.
	Gain struct {
		L, R float32
	}

	// ChannelSettings holds the per channel synthesis options.
	ChannelSettings struct {
		Method Method
	}

	// Note is one active voice of a frame. Volumes are interpolated from
	// Prev towards Prev+Diff over one update tick.
	Note struct {
		Index        int     // oscillator or grain index
		PrevL, PrevR float32 // volume at the start of the tick
		DiffL, DiffR float32 // volume change over the tick
		Noise        float32 // detune amount (additive), sample selector (granular)
		Alpha        float32 // grain cursor advance, as a fraction of the grain length
	}

	// Sample is a sound used as grain source by the granular method. Data is
	// interleaved with Channels values per frame.
	Sample struct {
		Name     string
		Channels int
		Frames   int
		Data     []float32
	}
)

// TargetL returns the left volume reached at the end of the tick.
func (n *Note) TargetL() float32 { return n.PrevL + n.DiffL }

// TargetR returns the right volume reached at the end of the tick.
func (n *Note) TargetR() float32 { return n.PrevR + n.DiffR }

// Volume returns the interpolated left and right volumes at progress t in
// [0, 1] of the tick.
func (n *Note) Volume(t float32) (l, r float32) {
	return n.PrevL + n.DiffL*t, n.PrevR + n.DiffR*t
}

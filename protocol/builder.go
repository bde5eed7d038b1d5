package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/grz0zrg/fas"
)

// Builder turns frame payloads into note frames. It keeps the previous payload
// so every note carries the volume it starts from and the change it goes
// through during the tick.
type Builder struct {
	channels    int
	oscillators int
	float       bool
	cutoff      float32
	prev, cur   []float32
}

// ErrFrameFull is returned when the target frame is too small for the notes
// of a payload, which happens with a frame sized for other settings.
var ErrFrameFull = errors.New("protocol: frame too small")

// NewBuilder creates a builder for the given number of output channels and
// settings. Amplitudes not above cutoff are treated as silent.
func NewBuilder(channels int, s fas.Settings, cutoff float32) *Builder {
	n := channels * s.Oscillators * Components
	return &Builder{
		channels:    channels,
		oscillators: s.Oscillators,
		float:       s.FloatData,
		cutoff:      cutoff,
		prev:        make([]float32, n),
		cur:         make([]float32, n),
	}
}

// Channels returns the number of output channels.
func (b *Builder) Channels() int { return b.channels }

// Oscillators returns the number of oscillators per channel.
func (b *Builder) Oscillators() int { return b.oscillators }

// ChannelSize returns the byte length of one channel payload.
func (b *Builder) ChannelSize() int {
	width := 1
	if b.float {
		width = 4
	}
	return b.oscillators * Components * width
}

// Build decodes m and fills f with the notes of every output channel. Payload
// channels beyond the output channel count are ignored and missing ones are
// silent. A payload shorter than its declared channels, or a float payload
// holding NaN or infinite values, is malformed and leaves the builder
// unchanged. Float noise and alpha are clamped to [0, 1].
func (b *Builder) Build(m FrameMsg, f *fas.Frame) error {
	n := min(m.Channels, b.channels)
	size := b.ChannelSize()
	if len(m.Data) < n*size {
		return malformed("frame of %d channels in %d bytes, want %d per channel", m.Channels, len(m.Data), size)
	}
	if b.float {
		if err := checkFloats(m.Data[:n*size]); err != nil {
			return err
		}
	}
	b.prev, b.cur = b.cur, b.prev
	values := b.oscillators * Components
	for k := 0; k < n; k++ {
		src := m.Data[k*size : (k+1)*size]
		dst := b.cur[k*values : (k+1)*values]
		if b.float {
			for i := range dst {
				v := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
				if i%Components >= 2 {
					// noise and alpha share the range of 8 bit payloads
					v = min(max(v, 0), 1)
				}
				dst[i] = v
			}
		} else {
			for i := range dst {
				dst[i] = float32(src[i]) / 255
			}
		}
	}
	clear(b.cur[n*values:])
	return b.fill(f)
}

// checkFloats rejects payloads holding NaN or infinite values.
func checkFloats(data []byte) error {
	for i := 0; i+4 <= len(data); i += 4 {
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return malformed("non finite value %v at byte %d", v, i)
		}
	}
	return nil
}

func (b *Builder) fill(f *fas.Frame) error {
	f.Reset()
	if f.Channels() < b.channels {
		return fmt.Errorf("%w: %d channels, want %d", ErrFrameFull, f.Channels(), b.channels)
	}
	values := b.oscillators * Components
	for k := 0; k < b.channels; k++ {
		cur := b.cur[k*values : (k+1)*values]
		prev := b.prev[k*values : (k+1)*values]
		for i := 0; i < b.oscillators; i++ {
			c := cur[i*Components : (i+1)*Components]
			p := prev[i*Components : (i+1)*Components]
			if !b.active(c[0], c[1]) && !b.active(p[0], p[1]) {
				continue
			}
			note := fas.Note{
				Index: i,
				PrevL: p[0],
				PrevR: p[1],
				DiffL: c[0] - p[0],
				DiffR: c[1] - p[1],
				Noise: c[2],
				Alpha: c[3],
			}
			if !f.Add(note) {
				return fmt.Errorf("%w: channel %d oscillator %d", ErrFrameFull, k, i)
			}
		}
		f.CloseChannel()
	}
	return nil
}

func (b *Builder) active(l, r float32) bool { return l > b.cutoff || r > b.cutoff }

// Reset forgets the previous payload, so the next frame fades in from silence.
func (b *Builder) Reset() {
	clear(b.prev)
	clear(b.cur)
}

package engine

import (
	"math"

	"github.com/grz0zrg/fas"
)

func (e *Engine) render(out []float32) {
	channels := e.cfg.Channels
	stride := 2 * channels
	gain := *e.params.Gain
	methods := e.params.Channels
	frame := e.currentFrame()
	for i := 0; i+stride <= len(out); i += stride {
		t := e.interp.Progress()
		for k := 0; k < channels; k++ {
			var l, r float32
			if frame != nil && k < len(methods) && k < frame.Channels() {
				notes := frame.Channel(k)
				switch methods[k].Method {
				case fas.Additive:
					l, r = e.additive(notes, k, t)
				case fas.Granular:
					l, r = e.granular(notes, t)
				}
			}
			out[i+2*k] = l * gain.L
			out[i+2*k+1] = r * gain.R
		}
		if e.interp.Advance() {
			e.nextFrame()
			frame = e.currentFrame()
		}
	}
	// trailing partial block
	for i := len(out) - len(out)%stride; i < len(out); i++ {
		out[i] = 0
	}
}

// additive sums one sine oscillator per note. Every oscillator keeps a phase
// per channel so channels sharing a bank do not interfere; the phase step is
// detuned by the noise table scaled by the note noise coefficient.
func (e *Engine) additive(notes []fas.Note, k int, t float32) (l, r float32) {
	oscs := e.params.Oscillators
	size := float64(len(e.sine))
	for j := range notes {
		n := &notes[j]
		if n.Index < 0 || n.Index >= len(oscs) {
			continue
		}
		o := &oscs[n.Index]
		s := e.sine[int(o.Phase[k])]
		vl, vr := n.Volume(t)
		l += vl * s
		r += vr * s

		phase := o.Phase[k] + o.Step*(1+float64(e.noise[e.noiseIndex]*n.Noise))
		e.noiseIndex++
		if !(phase >= 0 && phase < size) {
			phase = math.Mod(phase, size)
			if phase < 0 {
				phase += size
			}
			// NaN and infinite steps restart the oscillator
			if !(phase >= 0 && phase < size) {
				phase = 0
			}
		}
		o.Phase[k] = phase
	}
	return l, r
}

// granular plays one grain per note. The note noise selects the source sample
// and alpha controls how far the grain cursor jumps once a grain completes.
func (e *Engine) granular(notes []fas.Note, t float32) (l, r float32) {
	if len(e.samples) == 0 {
		return 0, 0
	}
	grains := e.params.Grains
	last := len(e.samples) - 1
	for j := range notes {
		n := &notes[j]
		if n.Index < 0 || n.Index >= len(grains) {
			continue
		}
		si := min(max(int(float32(last)*n.Noise), 0), last)
		smp := &e.samples[si]
		if smp.Frames == 0 || smp.Channels == 0 {
			continue
		}
		g := &grains[n.Index]
		pos := (g.Start + int(g.Pos)) % smp.Frames
		if pos < 0 {
			pos += smp.Frames
		}
		base := pos * smp.Channels
		env := g.Envelope(e.envs)
		vl, vr := n.Volume(t)
		l += vl * smp.Data[base] * env
		r += vr * smp.Data[base+smp.Channels-1] * env
		g.Advance(n.Alpha, smp.Frames, e.cfg.SampleRate, &e.rng)
	}
	return l, r
}

package synth

// Interpolator tracks the progress through one update tick. Progress goes from
// 0 to exactly 1 over TickSamples samples; notes blend their previous and
// target volumes with it.
type Interpolator struct {
	tickSamples int
	step        float64
	elapsed     int
	t           float64
	hold        bool
}

// NewInterpolator creates an interpolator for ticks of tickSamples samples.
func NewInterpolator(tickSamples int) Interpolator {
	if tickSamples < 1 {
		tickSamples = 1
	}
	return Interpolator{tickSamples: tickSamples, step: 1 / float64(tickSamples)}
}

// TickSamples returns the number of samples of one tick.
func (in *Interpolator) TickSamples() int { return in.tickSamples }

// Progress returns the fraction of the tick elapsed, in [0, 1].
func (in *Interpolator) Progress() float32 { return float32(in.t) }

// Advance moves one sample forward and reports whether the tick is complete.
// Progress is computed from the sample count rather than accumulated, so it
// hits 1 exactly at the end of the tick.
func (in *Interpolator) Advance() bool {
	if in.elapsed < in.tickSamples {
		in.elapsed++
		switch {
		case in.hold:
		case in.elapsed == in.tickSamples:
			in.t = 1
		default:
			in.t = float64(in.elapsed) * in.step
		}
	}
	return in.elapsed >= in.tickSamples
}

// Reset starts a new tick from zero progress.
func (in *Interpolator) Reset() {
	in.elapsed = 0
	in.t = 0
	in.hold = false
}

// Hold starts a new tick while keeping the progress at 1, so notes stay at
// their target volumes.
func (in *Interpolator) Hold() {
	in.elapsed = 0
	in.t = 1
	in.hold = true
}

package engine

import (
	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/synth"
)

type (
	// Params is the parameter set the engine renders with. Every field is
	// replaced as a whole; the render side never copies into a live value.
	Params struct {
		Settings    *fas.Settings
		Oscillators []synth.Oscillator
		Grains      []synth.Grain
		Gain        *fas.Gain
		Channels    []fas.ChannelSettings
	}

	// Command is a partial parameter set. Nil fields are absent and leave
	// the live parameter untouched. Once submitted, a Command and everything
	// it references belong to the engine.
	Command struct {
		Settings    *fas.Settings
		Oscillators []synth.Oscillator
		Grains      []synth.Grain
		Gain        *fas.Gain
		Channels    []fas.ChannelSettings
	}
)

// Complete reports whether every parameter needed for rendering is present.
func (p *Params) Complete() bool {
	return p.Settings != nil && p.Oscillators != nil && p.Grains != nil &&
		p.Gain != nil && p.Channels != nil
}

func (c *Command) apply(p *Params) {
	if c.Settings != nil {
		p.Settings = c.Settings
	}
	if c.Oscillators != nil {
		p.Oscillators = c.Oscillators
	}
	if c.Grains != nil {
		p.Grains = c.Grains
	}
	if c.Gain != nil {
		p.Gain = c.Gain
	}
	if c.Channels != nil {
		p.Channels = c.Channels
	}
}

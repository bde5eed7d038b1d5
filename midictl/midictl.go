// Package midictl maps MIDI control changes to gain commands, so the output
// gain can be driven from a hardware controller next to the network client.
package midictl

import (
	"sync"
	"sync/atomic"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/engine"
	"gitlab.com/gomidi/midi/v2"
)

// BalanceCC is the standard MIDI balance controller.
const BalanceCC = 8

type (
	// Submitter queues engine commands. *engine.Engine implements it.
	Submitter interface {
		Submit(cmd *engine.Command) bool
	}

	// Controller turns the gain and balance control changes of any MIDI
	// channel into gain commands.
	Controller struct {
		submit  Submitter
		gainCC  uint8
		mu      sync.Mutex
		level   float32
		balance float32
		dropped atomic.Uint64
	}
)

// New creates a controller mapping control change gainCC to the gain.
func New(s Submitter, gainCC uint8) *Controller {
	return &Controller{submit: s, gainCC: gainCC, level: 1, balance: 0.5}
}

// HandleMessage handles one incoming MIDI message. Its signature matches the
// receiver of midi.ListenTo; it may be called from a driver goroutine.
func (c *Controller) HandleMessage(msg midi.Message, timestampms int32) {
	var channel, cc, value uint8
	if !msg.GetControlChange(&channel, &cc, &value) {
		return
	}
	c.mu.Lock()
	switch cc {
	case c.gainCC:
		c.level = float32(value) / 127
	case BalanceCC:
		c.balance = float32(value) / 127
	default:
		c.mu.Unlock()
		return
	}
	g := c.gain()
	c.mu.Unlock()
	if !c.submit.Submit(&engine.Command{Gain: &g}) {
		c.dropped.Add(1)
	}
}

// gain returns the level split by the balance: centered, both sides get the
// full level.
func (c *Controller) gain() fas.Gain {
	return fas.Gain{
		L: c.level * min(1, 2*(1-c.balance)),
		R: c.level * min(1, 2*c.balance),
	}
}

// Dropped returns the number of gain changes lost to a full command queue.
func (c *Controller) Dropped() uint64 { return c.dropped.Load() }

//go:build !cgo

package midictl

import "errors"

// Input is an open MIDI input port feeding a Controller.
type Input struct{}

// Open fails: MIDI input needs the cgo rtmidi driver.
func Open(prefix string, c *Controller) (*Input, error) {
	return nil, errors.New("MIDI input is not available without cgo")
}

// Close does nothing.
func (i *Input) Close() error { return nil }

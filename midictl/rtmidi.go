//go:build cgo

package midictl

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input is an open MIDI input port feeding a Controller.
type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
}

// Open opens the first MIDI input whose name starts with prefix and feeds its
// messages to c.
func Open(prefix string, c *Controller) (*Input, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("midi inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			driver.Close()
			return nil, fmt.Errorf("opening MIDI input %s failed: %w", in, err)
		}
		stop, err := midi.ListenTo(in, c.HandleMessage)
		if err != nil {
			in.Close()
			driver.Close()
			return nil, fmt.Errorf("listening to MIDI input %s failed: %w", in, err)
		}
		logrus.WithFields(logrus.Fields{"function": "midictl.Open", "port": in.String()}).Info("MIDI input opened")
		return &Input{driver: driver, in: in, stop: stop}, nil
	}
	driver.Close()
	return nil, fmt.Errorf("could not find any MIDI input starting with %q", prefix)
}

// Close stops listening and closes the port.
func (i *Input) Close() error {
	i.stop()
	if i.in.IsOpen() {
		i.in.Close()
	}
	return i.driver.Close()
}

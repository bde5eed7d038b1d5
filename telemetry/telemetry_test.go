package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/telemetry"
	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	got  chan *osc.Message
	fail bool
}

func (c *fakeClient) Send(p osc.Packet) error {
	if c.fail {
		return errors.New("unreachable")
	}
	c.got <- p.(*osc.Message)
	return nil
}

func frame(notes ...fas.Note) *fas.Frame {
	f := fas.NewFrame(1, len(notes))
	for _, n := range notes {
		f.Add(n)
	}
	f.CloseChannel()
	return &f
}

func TestSenderSendsEveryNote(t *testing.T) {
	c := &fakeClient{got: make(chan *osc.Message, 8)}
	s := telemetry.New(c, 4)
	go s.Run()
	defer s.Close(time.Second)

	s.Notes(frame(
		fas.Note{Index: 2, PrevL: 0.5, DiffL: 0.25, PrevR: 1},
		fas.Note{Index: 7},
	), []float64{100, 200, 300})

	msg := <-c.got
	assert.Equal(t, telemetry.Address, msg.Address)
	assert.Equal(t, []interface{}{int32(2), 300.0, float32(0.75), float32(1)}, msg.Arguments)
	msg = <-c.got
	assert.Equal(t, []interface{}{int32(7), 0.0, float32(0), float32(0)}, msg.Arguments, "unknown oscillator has no frequency")
}

func TestSenderDropsWhenFull(t *testing.T) {
	c := &fakeClient{got: make(chan *osc.Message, 8)}
	s := telemetry.New(c, 1)
	f := frame(fas.Note{Index: 0, PrevL: 1})
	s.Notes(f, nil)
	s.Notes(f, nil)
	s.Notes(frame(), nil) // empty frames are not queued
	_, dropped, _ := s.Stats()
	assert.Equal(t, uint64(1), dropped)

	go s.Run()
	<-c.got
	require.True(t, s.Close(time.Second))
	sent, _, _ := s.Stats()
	assert.Equal(t, uint64(1), sent)
}

func TestSenderIgnoresFailures(t *testing.T) {
	c := &fakeClient{fail: true}
	s := telemetry.New(c, 4)
	go s.Run()
	s.Notes(frame(fas.Note{Index: 0}, fas.Note{Index: 1}), nil)
	require.Eventually(t, func() bool {
		_, _, failed := s.Stats()
		return failed == 2
	}, time.Second, time.Millisecond)
	assert.True(t, s.Close(time.Second))
}

func TestTrySend(t *testing.T) {
	c := make(chan int, 1)
	assert.True(t, telemetry.TrySend(c, 1))
	assert.False(t, telemetry.TrySend(c, 2))
	assert.Equal(t, 1, <-c)
}

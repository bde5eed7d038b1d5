// Package telemetry sends the notes of every built frame to an OSC endpoint.
// Sending is best effort: batches are handed to a dedicated goroutine through
// a bounded channel and dropped when it is full, and send errors are ignored.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
)

type (
	// Note is the telemetry of one note: the oscillator index and frequency
	// with the volumes reached at the end of the tick.
	Note struct {
		Index int32
		Freq  float64
		L, R  float32
	}

	// Client sends OSC packets. *osc.Client implements it.
	Client interface {
		Send(packet osc.Packet) error
	}

	// Sender forwards note batches to an OSC client. For closing the sender
	// goroutine, Close sends to closeCh, which has a capacity of 1; the
	// goroutine closes finished once it is done.
	Sender struct {
		client   Client
		batches  chan *[]Note
		closeCh  chan struct{}
		finished chan struct{}
		pool     sync.Pool

		sent    atomic.Uint64
		dropped atomic.Uint64
		failed  atomic.Uint64
	}
)

// Address is the OSC address of note messages.
const Address = "/fragment"

// New creates a sender with room for queue pending batches. Run must be
// started for anything to be sent.
func New(client Client, queue int) *Sender {
	return &Sender{
		client:   client,
		batches:  make(chan *[]Note, max(queue, 1)),
		closeCh:  make(chan struct{}, 1),
		finished: make(chan struct{}),
		pool:     sync.Pool{New: func() any { return &[]Note{} }},
	}
}

// Dial creates a sender for the OSC server at host:port.
func Dial(host string, port, queue int) *Sender {
	return New(osc.NewClient(host, port), queue)
}

// Notes queues the notes of f for sending. freqs maps oscillator indexes to
// frequencies. f is not retained.
func (s *Sender) Notes(f *fas.Frame, freqs []float64) {
	if f.Len() == 0 {
		return
	}
	batch := s.pool.Get().(*[]Note)
	notes := (*batch)[:0]
	for k := 0; k < f.Channels(); k++ {
		for _, n := range f.Channel(k) {
			var freq float64
			if n.Index < len(freqs) {
				freq = freqs[n.Index]
			}
			notes = append(notes, Note{Index: int32(n.Index), Freq: freq, L: n.TargetL(), R: n.TargetR()})
		}
	}
	*batch = notes
	if !TrySend(s.batches, batch) {
		s.dropped.Add(1)
		s.put(batch)
	}
}

func (s *Sender) put(batch *[]Note) {
	*batch = (*batch)[:0]
	s.pool.Put(batch)
}

// Run sends queued batches until Close is called.
func (s *Sender) Run() {
	defer close(s.finished)
	log := logrus.WithFields(logrus.Fields{"function": "telemetry.Run"})
	for {
		select {
		case <-s.closeCh:
			return
		case batch := <-s.batches:
			for _, n := range *batch {
				msg := osc.NewMessage(Address, n.Index, n.Freq, n.L, n.R)
				if err := s.client.Send(msg); err != nil {
					if s.failed.Add(1) == 1 {
						log.WithError(err).Warn("OSC send failed, further failures are not logged")
					}
					continue
				}
				s.sent.Add(1)
			}
			s.put(batch)
		}
	}
}

// Close stops the goroutine started with Run and waits for it at most
// timeout. It reports whether the goroutine finished in time.
func (s *Sender) Close(timeout time.Duration) bool {
	TrySend(s.closeCh, struct{}{})
	select {
	case <-s.finished:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stats returns the number of messages sent, batches dropped because the
// queue was full and messages that failed to send.
func (s *Sender) Stats() (sent, dropped, failed uint64) {
	return s.sent.Load(), s.dropped.Load(), s.failed.Load()
}

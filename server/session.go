// Package server is the ingestion side of the audio server: it decodes client
// packets, reconfigures the engine on settings changes, builds note frames
// and forwards parameter changes as commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/engine"
	"github.com/grz0zrg/fas/protocol"
	"github.com/grz0zrg/fas/synth"
	"github.com/sirupsen/logrus"
)

type (
	// NoteSink receives the notes of every built frame, before the frame is
	// handed to the engine. It must not retain the frame.
	NoteSink interface {
		Notes(f *fas.Frame, freqs []float64)
	}

	// Recorder receives every complete packet.
	Recorder interface {
		Record(packet []byte) error
	}

	// SessionConfig holds the options of a session.
	SessionConfig struct {
		Cutoff       float32       // amplitude at or below which a slot is silent
		PauseTimeout time.Duration // bound of the pause handshake
		Seed         uint32        // seed of the oscillator phases and grain lengths
		Notes        NoteSink      // optional
		Recorder     Recorder      // optional
	}

	// Session holds the ingestion state of the connected client. Its methods
	// must be called from a single goroutine.
	Session struct {
		engine  *engine.Engine
		cfg     SessionConfig
		rng     *synth.Rand
		builder *protocol.Builder
		methods []fas.ChannelSettings
		freqs   []float64

		stats sessionCounters
	}

	sessionCounters struct {
		packets   atomic.Uint64
		malformed atomic.Uint64
		dropped   atomic.Uint64
		queueFull atomic.Uint64
		frames    atomic.Uint64
	}

	// SessionStats is a snapshot of the session counters.
	SessionStats struct {
		Packets   uint64 // packets handled
		Malformed uint64 // packets discarded as malformed
		Dropped   uint64 // frames dropped: no buffer or no settings
		QueueFull uint64 // commands refused by a full command queue
		Frames    uint64 // frames handed to the engine
	}
)

// ErrBusy is returned when a command could not be queued, or when a second
// client tries to connect.
var ErrBusy = errors.New("server: busy")

// NewSession creates a session feeding e.
func NewSession(e *engine.Engine, cfg SessionConfig) *Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}
	return &Session{
		engine:  e,
		cfg:     cfg,
		rng:     synth.NewRand(seed),
		methods: make([]fas.ChannelSettings, e.Config().Channels),
	}
}

// Handle processes one complete packet. Malformed packets and dropped frames
// are counted; the returned error is meant for logging only.
func (s *Session) Handle(ctx context.Context, packet []byte) error {
	s.stats.packets.Add(1)
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.Record(packet); err != nil {
			logrus.WithFields(logrus.Fields{"function": "Session.Handle"}).WithError(err).Warn("recording failed")
		}
	}
	msg, err := protocol.Decode(packet)
	if err != nil {
		s.stats.malformed.Add(1)
		return err
	}
	switch m := msg.(type) {
	case protocol.SettingsMsg:
		return s.settings(ctx, m.Settings)
	case protocol.FrameMsg:
		return s.frame(m)
	case protocol.GainMsg:
		g := m.Gain
		return s.submit(&engine.Command{Gain: &g})
	case protocol.ChannelMethodMsg:
		for i := 0; i < len(s.methods) && i < len(m.Methods); i++ {
			s.methods[i].Method = m.Methods[i]
		}
		return s.submit(&engine.Command{Channels: slices.Clone(s.methods)})
	}
	return nil
}

// settings pauses the engine, resizes its frame buffers and hands it a new
// oscillator and grain bank. The engine resumes with the next frame.
func (s *Session) settings(ctx context.Context, set fas.Settings) error {
	log := logrus.WithFields(logrus.Fields{
		"function":    "Session.settings",
		"oscillators": set.Oscillators,
		"octaves":     set.Octaves,
		"float":       set.FloatData,
		"base":        set.BaseFrequency,
	})
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PauseTimeout)
	defer cancel()
	if err := s.engine.Pause(ctx); err != nil {
		return fmt.Errorf("settings change: %w", err)
	}
	defer s.engine.AwaitSettings()
	s.builder = nil
	if err := s.engine.Reconfigure(set.Oscillators); err != nil {
		return fmt.Errorf("settings change: %w", err)
	}
	cfg := s.engine.Config()
	cmd := &engine.Command{
		Settings:    &set,
		Oscillators: synth.NewOscillators(set.Oscillators, set.Octaves, set.BaseFrequency, cfg.SampleRate, cfg.WavetableSize, cfg.Channels, s.rng),
		Grains:      synth.NewGrains(set.Oscillators, set.Octaves, set.BaseFrequency, cfg.SampleRate, s.rng),
		Channels:    slices.Clone(s.methods),
	}
	if err := s.submit(cmd); err != nil {
		return fmt.Errorf("settings change: %w", err)
	}
	s.builder = protocol.NewBuilder(cfg.Channels, set, s.cfg.Cutoff)
	s.freqs = synth.Frequencies(set.Oscillators, set.Octaves, set.BaseFrequency)
	log.Info("synthesis settings changed")
	return nil
}

// frame builds m into a pooled frame and publishes it. The engine may still be
// paused right after a settings change; the frame then waits in the relay and
// starts playback.
func (s *Session) frame(m protocol.FrameMsg) error {
	if s.builder == nil {
		s.stats.dropped.Add(1)
		return nil
	}
	frames := s.engine.Frames()
	h, ok := frames.Acquire()
	if !ok {
		s.stats.dropped.Add(1)
		return nil
	}
	f := frames.Get(h)
	if err := s.builder.Build(m, f); err != nil {
		frames.Release(h)
		s.stats.malformed.Add(1)
		return err
	}
	if s.cfg.Notes != nil {
		s.cfg.Notes.Notes(f, s.freqs)
	}
	s.engine.Publish(h)
	s.stats.frames.Add(1)
	return nil
}

func (s *Session) submit(cmd *engine.Command) error {
	if !s.engine.Submit(cmd) {
		s.stats.queueFull.Add(1)
		return fmt.Errorf("%w: command queue full", ErrBusy)
	}
	return nil
}

// Disconnect forgets the client state. Frames are refused until the next
// settings change.
func (s *Session) Disconnect() {
	s.builder = nil
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Packets:   s.stats.packets.Load(),
		Malformed: s.stats.malformed.Load(),
		Dropped:   s.stats.dropped.Load(),
		QueueFull: s.stats.queueFull.Load(),
		Frames:    s.stats.frames.Load(),
	}
}

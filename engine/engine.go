// Package engine implements the render side of the audio server. The Engine
// is called from the audio callback with a fixed deadline; it picks up
// parameter changes from a lock-free command queue and note frames from a
// lossy relay, and synthesizes one block of interleaved stereo audio per call.
//
// The ingestion side talks to the engine only through Submit, Frames, Publish,
// and the Pause / AwaitSettings / Resume requests. None of the render side code
// takes a lock, blocks or allocates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/pool"
	"github.com/grz0zrg/fas/queue"
	"github.com/grz0zrg/fas/relay"
	"github.com/grz0zrg/fas/synth"
	"github.com/viterin/vek/vek32"
)

type (
	// State is the playback state of the engine.
	State int32

	request int32

	// Config holds the fixed parameters of an engine.
	Config struct {
		SampleRate    int     // output sample rate in Hz
		Channels      int     // number of stereo channel pairs
		TickSamples   int     // samples between two frames
		WavetableSize int     // length of the sine table
		FramesQueue   int     // capacity of the frame relay
		CommandsQueue int     // capacity of the command queue
		NoiseAmount   float64 // detune noise amplitude
		HoldTicks     int     // ticks a frame is held when no new frame arrives
		Seed          uint32  // seed of the render side generator
	}

	// Engine is the render engine. It is created once at startup and shared
	// by the ingestion side and the audio callback.
	Engine struct {
		cfg      Config
		frames   *pool.Pool[fas.Frame]
		relay    *relay.Relay
		commands *queue.Queue[*Command]
		samples  []fas.Sample

		sine  []float32
		noise []float32
		envs  [][]float32

		request atomic.Int32
		state   atomic.Int32

		// owned by the render side
		params     Params
		current    pool.Handle
		hasCurrent bool
		interp     synth.Interpolator
		noiseIndex uint16
		rng        synth.Rand
		missed     int

		stats counters
	}
)

const (
	AwaitingSettings State = iota
	Paused
	Playing
)

const (
	requestNone request = iota
	requestPause
	requestAwait
	requestResume
)

const (
	pausePollInterval = 100 * time.Microsecond
	// ackTimeout bounds the wait for a pause request the render side already
	// took when the caller's context expired.
	ackTimeout = 50 * time.Millisecond
)

var (
	// ErrPauseTimeout is returned by Pause when the render side did not
	// acknowledge the request in time, typically because the audio callback
	// is not running.
	ErrPauseTimeout = errors.New("engine: pause not acknowledged")
	// ErrNotPaused is returned by operations that need exclusive access to
	// the render side data.
	ErrNotPaused = errors.New("engine: not paused")
)

func (s State) String() string {
	switch s {
	case AwaitingSettings:
		return "awaiting-settings"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// New creates an engine in the AwaitingSettings state. samples are the grain
// sources of the granular method and may be empty.
func New(cfg Config, samples []fas.Sample) *Engine {
	cfg.Channels = max(cfg.Channels, 1)
	cfg.WavetableSize = max(cfg.WavetableSize, 1)
	cfg.FramesQueue = max(cfg.FramesQueue, 1)
	cfg.CommandsQueue = max(cfg.CommandsQueue, 1)
	cfg.HoldTicks = max(cfg.HoldTicks, 0)
	e := &Engine{
		cfg:      cfg,
		relay:    relay.New(cfg.FramesQueue),
		commands: queue.New[*Command](cfg.CommandsQueue),
		samples:  samples,
		sine:     synth.SineTable(cfg.WavetableSize),
		envs:     synth.Envelopes(synth.EnvelopeSize),
		interp:   synth.NewInterpolator(cfg.TickSamples),
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}
	e.rng.Seed(seed)
	e.noise = synth.NoiseTable(synth.NoiseTableSize, cfg.NoiseAmount, &e.rng)
	e.frames = pool.New(e.poolSize(), func() fas.Frame { return fas.NewFrame(cfg.Channels, 0) })
	e.state.Store(int32(AwaitingSettings))
	return e
}

// poolSize leaves room for a full relay plus the frame being rendered and the
// frame being built.
func (e *Engine) poolSize() int { return e.cfg.FramesQueue + 2 }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current playback state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Frames returns the pool of frame buffers. Acquire from it, fill the frame
// and hand it over with Publish.
func (e *Engine) Frames() *pool.Pool[fas.Frame] { return e.frames }

// Publish hands a filled frame to the render side. It reports whether an
// unread frame had to be evicted to make room; evicted frames are returned to
// the pool. Publish must always be called from the same goroutine.
func (e *Engine) Publish(h pool.Handle) (evicted bool) {
	old, evicted := e.relay.Write(h)
	if evicted {
		e.frames.Release(old)
		e.stats.evictions.Add(1)
	}
	return evicted
}

// Submit queues a parameter change. It returns false when the queue is full;
// the command is then dropped. Safe for concurrent use.
func (e *Engine) Submit(cmd *Command) bool {
	if !e.commands.Enqueue(cmd) {
		e.stats.commandsDropped.Add(1)
		return false
	}
	return true
}

// Pause asks the render side to stop and waits until it acknowledges. The
// current frame is returned to the pool before the acknowledgement. When ctx
// expires first, the request is withdrawn and ErrPauseTimeout is returned. A
// request the render side took just before expiry is waited for a little
// longer; if it still is not acknowledged, a resume is queued behind it.
func (e *Engine) Pause(ctx context.Context) error {
	e.request.Store(int32(requestPause))
	for {
		if e.State() == Paused && request(e.request.Load()) != requestPause {
			return nil
		}
		select {
		case <-ctx.Done():
			if e.request.CompareAndSwap(int32(requestPause), int32(requestNone)) {
				return fmt.Errorf("%w: %v", ErrPauseTimeout, ctx.Err())
			}
			// the render side took the request and is about to acknowledge
			deadline := time.Now().Add(ackTimeout)
			for e.State() != Paused {
				if time.Now().After(deadline) {
					// a late acknowledgement must not leave the engine paused
					e.request.CompareAndSwap(int32(requestNone), int32(requestResume))
					return fmt.Errorf("%w: %v", ErrPauseTimeout, ctx.Err())
				}
				runtime.Gosched()
			}
			return nil
		case <-time.After(pausePollInterval):
		}
	}
}

// AwaitSettings asks the render side to wait for the first frame following a
// settings change. Rendering resumes with that frame.
func (e *Engine) AwaitSettings() { e.request.Store(int32(requestAwait)) }

// Resume asks a paused render side to play again.
func (e *Engine) Resume() { e.request.Store(int32(requestResume)) }

// Reconfigure resizes every frame buffer for the given number of oscillators
// per channel. The engine must be paused: pending frames are drained and all
// buffers are reallocated, so previously acquired handles become stale.
func (e *Engine) Reconfigure(oscillators int) error {
	if e.State() != Paused {
		return ErrNotPaused
	}
	e.relay.Drain(func(h pool.Handle) { e.frames.Release(h) })
	channels := e.cfg.Channels
	e.frames.Reset(e.poolSize(), func() fas.Frame { return fas.NewFrame(channels, oscillators) })
	return nil
}

// Process renders one block into out, interleaved with two values per channel
// pair. It implements fas.AudioSource and must only be called from the audio
// callback.
func (e *Engine) Process(out []float32) {
	defer func() {
		if r := recover(); r != nil {
			e.stats.faults.Add(1)
			clear(out)
		}
	}()
	if cmd, ok := e.commands.Dequeue(); ok {
		cmd.apply(&e.params)
		e.stats.commands.Add(1)
	}
	e.handleRequest()
	st := e.State()
	if st == AwaitingSettings {
		if h, ok := e.relay.Read(); ok {
			e.setCurrent(h)
			e.state.Store(int32(Playing))
			st = Playing
		}
	}
	if st != Playing || !e.params.Complete() {
		vek32.Zeros_Into(out, len(out))
		e.interp.Reset()
		e.stats.peak.Store(0)
		return
	}
	e.render(out)
	if len(out) > 0 {
		peak := max(vek32.Max(out), -vek32.Min(out))
		e.stats.peak.Store(math.Float32bits(peak))
	}
}

func (e *Engine) handleRequest() {
	switch request(e.request.Swap(int32(requestNone))) {
	case requestPause:
		e.releaseCurrent()
		e.interp.Reset()
		e.state.Store(int32(Paused))
	case requestAwait:
		e.state.Store(int32(AwaitingSettings))
	case requestResume:
		if e.State() == Paused {
			e.state.Store(int32(Playing))
		}
	}
}

func (e *Engine) setCurrent(h pool.Handle) {
	e.releaseCurrent()
	e.current, e.hasCurrent = h, true
	e.missed = 0
	e.interp.Reset()
	e.stats.framesRead.Add(1)
}

func (e *Engine) releaseCurrent() {
	if e.hasCurrent {
		e.frames.Release(e.current)
		e.hasCurrent = false
	}
}

func (e *Engine) currentFrame() *fas.Frame {
	if !e.hasCurrent {
		return nil
	}
	return e.frames.Get(e.current)
}

// nextFrame runs at the end of every tick.
func (e *Engine) nextFrame() {
	if h, ok := e.relay.Read(); ok {
		e.setCurrent(h)
		return
	}
	e.stats.underruns.Add(1)
	e.missed++
	if e.missed > e.cfg.HoldTicks {
		e.releaseCurrent()
		e.interp.Reset()
		return
	}
	e.interp.Hold()
}

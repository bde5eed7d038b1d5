// Package oto plays an AudioSource on the default output device through oto.
// The device pulls audio from a Reader, whose Read is the hardware callback
// of the server.
package oto

import (
	"errors"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/grz0zrg/fas"
)

type (
	// Context is an opened output device.
	Context struct {
		ctx        *oto.Context
		sampleRate int
		channels   int
		frames     int
	}

	// Player is a running output stream.
	Player struct {
		player *oto.Player
	}

	// Reader renders a source in blocks of a fixed number of frames and
	// encodes them as float32 samples. It never allocates after creation.
	Reader struct {
		src      fas.AudioSource
		channels int
		buf      []float32
	}
)

var _ fas.AudioContext = (*Context)(nil)

// NewContext opens the output device. frames is the number of sample frames
// rendered per callback and sets the device buffer length. Only one context
// may exist per process.
func NewContext(sampleRate, channels, frames int) (*Context, error) {
	if sampleRate <= 0 || channels <= 0 || frames <= 0 {
		return nil, fmt.Errorf("cannot create oto context: invalid format %d Hz, %d channels, %d frames", sampleRate, channels, frames)
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(frames) * time.Second / time.Duration(sampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate, channels: channels, frames: frames}, nil
}

// Play starts pulling audio from src.
func (c *Context) Play(src fas.AudioSource) (fas.AudioPlayer, error) {
	p := c.ctx.NewPlayer(NewReader(src, c.channels, c.frames))
	p.SetBufferSize(4 * c.channels * c.frames)
	p.Play()
	if err := c.ctx.Err(); err != nil {
		p.Close()
		return nil, fmt.Errorf("cannot start oto player: %w", err)
	}
	return &Player{player: p}, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }

func (c *Context) Channels() int { return c.channels }

// Close suspends the device; oto contexts cannot be released.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// Close stops the stream.
func (p *Player) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// Err returns the last error of the stream, if any.
func (p *Player) Err() error {
	return p.player.Err()
}

// NewReader creates a reader rendering src in blocks of frames frames of
// channels interleaved samples.
func NewReader(src fas.AudioSource, channels, frames int) *Reader {
	return &Reader{src: src, channels: channels, buf: make([]float32, channels*frames)}
}

// Read fills p with whole sample frames. Trailing bytes that do not hold a
// complete frame are zeroed.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.channels <= 0 || len(r.buf) == 0 {
		return 0, errors.New("oto: reader without channels")
	}
	frameBytes := 4 * r.channels
	samples := len(p) / frameBytes * r.channels
	off := 0
	for samples > 0 {
		n := min(samples, len(r.buf))
		block := r.buf[:n]
		r.src.Process(block)
		off += FloatBufferToFloat32LE(p[off:], block)
		samples -= n
	}
	clear(p[off:])
	return len(p), nil
}

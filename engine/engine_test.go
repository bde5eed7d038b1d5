package engine_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/engine"
	"github.com/grz0zrg/fas/pool"
	"github.com/grz0zrg/fas/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate = 1000
	testTick = 4
)

func newEngine(channels int, samples ...fas.Sample) *engine.Engine {
	return engine.New(engine.Config{
		SampleRate:    testRate,
		Channels:      channels,
		TickSamples:   testTick,
		WavetableSize: 1024,
		FramesQueue:   3,
		CommandsQueue: 8,
		NoiseAmount:   0.1,
		HoldTicks:     1,
		Seed:          1,
	}, samples)
}

// pause drives the render side until the pause request is acknowledged.
func pause(t *testing.T, e *engine.Engine) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- e.Pause(ctx)
	}()
	buf := make([]float32, 2*e.Config().Channels)
	for {
		e.Process(buf)
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		default:
		}
	}
}

// configure performs the settings sequence of the ingestion side.
func configure(t *testing.T, e *engine.Engine, oscillators int, methods ...fas.Method) {
	t.Helper()
	channels := e.Config().Channels
	pause(t, e)
	require.Equal(t, engine.Paused, e.State())
	require.NoError(t, e.Reconfigure(oscillators))
	rng := synth.NewRand(5)
	settings := &fas.Settings{Oscillators: oscillators, Octaves: 2, BaseFrequency: 110}
	chans := make([]fas.ChannelSettings, channels)
	for k := range chans {
		if k < len(methods) {
			chans[k].Method = methods[k]
		}
	}
	require.True(t, e.Submit(&engine.Command{
		Settings:    settings,
		Oscillators: synth.NewOscillators(oscillators, 2, 110, testRate, 1024, channels, rng),
		Grains:      synth.NewGrains(oscillators, 2, 110, testRate, rng),
		Gain:        &fas.Gain{L: 1, R: 1},
		Channels:    chans,
	}))
	e.AwaitSettings()
}

// publish fills a frame with one note list per channel.
func publish(t *testing.T, e *engine.Engine, channels ...[]fas.Note) pool.Handle {
	t.Helper()
	h, ok := e.Frames().Acquire()
	require.True(t, ok)
	f := e.Frames().Get(h)
	f.Reset()
	for _, notes := range channels {
		for _, n := range notes {
			require.True(t, f.Add(n))
		}
		f.CloseChannel()
	}
	e.Publish(h)
	return h
}

func loud(index int) fas.Note {
	return fas.Note{Index: index, PrevL: 1, PrevR: 1, Noise: 0.5, Alpha: 0.5}
}

func energy(buf []float32, channels, k int) float64 {
	var sum float64
	for i := 2 * k; i < len(buf); i += 2 * channels {
		sum += math.Abs(float64(buf[i])) + math.Abs(float64(buf[i+1]))
	}
	return sum
}

func TestSettingsAwaitFirstFrame(t *testing.T) {
	e := newEngine(1)
	buf := make([]float32, 2*testTick)
	e.Process(buf)
	assert.Equal(t, engine.AwaitingSettings, e.State())
	assert.Zero(t, energy(buf, 1, 0))

	configure(t, e, 4, fas.Additive)
	e.Process(buf)
	assert.Equal(t, engine.AwaitingSettings, e.State(), "no frame yet")
	assert.Zero(t, energy(buf, 1, 0))
	assert.Equal(t, 5, e.Frames().Cap())
	assert.Equal(t, uint64(1), e.Stats().Commands)

	publish(t, e, []fas.Note{loud(0), loud(3)})
	e.Process(buf)
	assert.Equal(t, engine.Playing, e.State())
	assert.Positive(t, energy(buf, 1, 0))
	assert.Positive(t, e.Stats().Peak)
	assert.Equal(t, uint64(1), e.Stats().FramesRead)
}

func TestMissingChannelIsSilent(t *testing.T) {
	e := newEngine(2)
	configure(t, e, 4)
	publish(t, e, []fas.Note{loud(1)})
	buf := make([]float32, 4*testTick)
	e.Process(buf)
	require.Equal(t, engine.Playing, e.State())
	assert.Positive(t, energy(buf, 2, 0))
	assert.Zero(t, energy(buf, 2, 1))
}

func TestPoolExhaustedKeepsPlaying(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 4)
	publish(t, e, []fas.Note{loud(2)})
	buf := make([]float32, 2)
	e.Process(buf)
	require.Equal(t, engine.Playing, e.State())

	var held []pool.Handle
	for {
		h, ok := e.Frames().Acquire()
		if !ok {
			break
		}
		held = append(held, h)
	}
	assert.Zero(t, e.Frames().Free())
	var total float64
	for i := 0; i < testTick-1; i++ {
		e.Process(buf)
		total += energy(buf, 1, 0)
	}
	assert.Positive(t, total, "current frame keeps rendering")
	for _, h := range held {
		e.Frames().Release(h)
	}
}

func TestHoldThenSilence(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 4)
	publish(t, e, []fas.Note{loud(0), loud(1), loud(2)})
	buf := make([]float32, 2*testTick)
	e.Process(buf) // first tick
	assert.Positive(t, energy(buf, 1, 0))
	e.Process(buf) // held tick
	assert.Positive(t, energy(buf, 1, 0))
	e.Process(buf) // released
	assert.Zero(t, energy(buf, 1, 0))
	assert.Equal(t, engine.Playing, e.State())
	assert.Equal(t, e.Frames().Cap(), e.Frames().Free())
	assert.GreaterOrEqual(t, e.Stats().Underruns, uint64(2))
}

func TestNewFrameReplacesCurrent(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 4)
	publish(t, e, []fas.Note{loud(0)})
	buf := make([]float32, 2*testTick)
	e.Process(buf)
	publish(t, e, []fas.Note{loud(1)})
	e.Process(buf)
	assert.Equal(t, uint64(2), e.Stats().FramesRead)
	// one frame rendering, the rest free
	assert.Equal(t, e.Frames().Cap()-1, e.Frames().Free())
}

func TestPublishEvictsOldest(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 2)
	evicted := 0
	for i := 0; i < 4; i++ {
		h, ok := e.Frames().Acquire()
		require.True(t, ok)
		e.Frames().Get(h).CloseChannel()
		if e.Publish(h) {
			evicted++
		}
	}
	assert.Equal(t, 1, evicted)
	assert.Equal(t, uint64(1), e.Stats().Evictions)
	assert.Equal(t, e.Frames().Cap()-3, e.Frames().Free())
}

func TestGain(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 4)
	require.True(t, e.Submit(&engine.Command{Gain: &fas.Gain{L: 0.5, R: 0}}))
	publish(t, e, []fas.Note{loud(0), loud(1)})
	buf := make([]float32, 2*testTick)
	e.Process(buf)
	e.Process(buf)
	var left float64
	for i := 0; i < len(buf); i += 2 {
		left += math.Abs(float64(buf[i]))
		assert.Zero(t, buf[i+1])
		assert.LessOrEqual(t, math.Abs(float64(buf[i])), 1.0)
	}
	assert.Positive(t, left)
}

func TestGranular(t *testing.T) {
	data := make([]float32, 2*500)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) / 7))
	}
	e := newEngine(1, fas.Sample{Name: "a", Channels: 2, Frames: 500, Data: data})
	configure(t, e, 4, fas.Granular)
	publish(t, e, []fas.Note{loud(0), loud(3)})
	buf := make([]float32, 2*testTick)
	var total float64
	for i := 0; i < 10; i++ {
		e.Process(buf)
		total += energy(buf, 1, 0)
		publish(t, e, []fas.Note{loud(0), loud(3)})
	}
	assert.Positive(t, total)
	assert.Zero(t, e.Stats().Faults)
}

func TestRenderFaultIsSilenced(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 2)
	// oscillators without phases make the render panic
	require.True(t, e.Submit(&engine.Command{Oscillators: make([]synth.Oscillator, 2)}))
	publish(t, e, []fas.Note{loud(0)})
	buf := make([]float32, 2*testTick)
	for i := range buf {
		buf[i] = 1
	}
	e.Process(buf)
	e.Process(buf)
	assert.Positive(t, e.Stats().Faults)
	assert.Zero(t, energy(buf, 1, 0))
}

func TestPauseTimeout(t *testing.T) {
	e := newEngine(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := e.Pause(ctx)
	assert.ErrorIs(t, err, engine.ErrPauseTimeout)
	assert.ErrorIs(t, e.Reconfigure(4), engine.ErrNotPaused)
}

func TestResume(t *testing.T) {
	e := newEngine(1)
	pause(t, e)
	e.Resume()
	e.Process(make([]float32, 2))
	assert.Equal(t, engine.Playing, e.State())
	assert.Equal(t, "playing", e.State().String())
}

func TestGranularRecoversFromOutOfRangeAlpha(t *testing.T) {
	data := make([]float32, 2*5000)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) / 7))
	}
	e := newEngine(1, fas.Sample{Name: "a", Channels: 2, Frames: 5000, Data: data})
	configure(t, e, 4, fas.Granular)
	bad := fas.Note{Index: 0, PrevL: 1, PrevR: 1, Alpha: -1}
	worse := fas.Note{Index: 3, PrevL: 1, PrevR: 1, Alpha: float32(math.NaN())}
	buf := make([]float32, 2*testTick)
	for i := 0; i < 1000; i++ {
		publish(t, e, []fas.Note{bad, worse})
		e.Process(buf)
	}
	var total float64
	for i := 0; i < 50; i++ {
		publish(t, e, []fas.Note{loud(0), loud(3)})
		e.Process(buf)
		total += energy(buf, 1, 0)
	}
	assert.Zero(t, e.Stats().Faults)
	assert.Positive(t, total)
}

func TestAdditiveRecoversFromNonFiniteNoise(t *testing.T) {
	e := newEngine(1)
	configure(t, e, 4)
	buf := make([]float32, 2*testTick)
	for _, noise := range []float32{float32(math.Inf(1)), float32(math.NaN())} {
		publish(t, e, []fas.Note{{Index: 1, PrevL: 1, PrevR: 1, Noise: noise}})
		e.Process(buf)
	}
	var total float64
	for i := 0; i < 20; i++ {
		publish(t, e, []fas.Note{loud(1)})
		e.Process(buf)
		total += energy(buf, 1, 0)
		for _, v := range buf {
			require.False(t, math.IsNaN(float64(v)))
		}
	}
	assert.Zero(t, e.Stats().Faults)
	assert.Positive(t, total)
}

func TestMissedFrameSilencesWithoutHold(t *testing.T) {
	e := engine.New(engine.Config{
		SampleRate:    testRate,
		Channels:      1,
		TickSamples:   testTick,
		WavetableSize: 1024,
		FramesQueue:   3,
		CommandsQueue: 8,
		Seed:          1,
	}, nil)
	configure(t, e, 4)
	publish(t, e, []fas.Note{loud(0), loud(1)})
	buf := make([]float32, 2*testTick)
	e.Process(buf)
	assert.Positive(t, energy(buf, 1, 0))
	assert.Equal(t, e.Frames().Cap(), e.Frames().Free(), "the frame is released at the first missed tick")
	assert.Equal(t, uint64(1), e.Stats().Underruns)

	e.Process(buf)
	assert.Zero(t, energy(buf, 1, 0))
	assert.Equal(t, engine.Playing, e.State())
}

func TestPauseTimeoutWhenRequestReplaced(t *testing.T) {
	e := newEngine(1)
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		done <- e.Pause(ctx)
	}()
	time.Sleep(5 * time.Millisecond)
	// another request takes the place of the pause while nothing renders
	e.AwaitSettings()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, engine.ErrPauseTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Pause did not return")
	}
	e.Process(make([]float32, 2))
	assert.Equal(t, engine.AwaitingSettings, e.State(), "the replacing request is kept")
}

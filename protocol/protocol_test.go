package protocol_test

import (
	"math"
	"testing"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	settings := fas.Settings{Oscillators: 4, Octaves: 2, FloatData: true, BaseFrequency: 110}
	tests := []struct {
		name   string
		packet []byte
		want   protocol.Message
	}{
		{"settings", protocol.AppendSettings(nil, settings), protocol.SettingsMsg{Settings: settings}},
		{"gain", protocol.AppendGain(nil, fas.Gain{L: 0.5, R: 0.25}), protocol.GainMsg{Gain: fas.Gain{L: 0.5, R: 0.25}}},
		{"methods", protocol.AppendChannelMethods(nil, fas.Granular, fas.Additive), protocol.ChannelMethodMsg{Methods: []fas.Method{fas.Granular, fas.Additive}}},
		{"frame", protocol.AppendFrame8(nil, 2, []uint8{1, 2, 3}), protocol.FrameMsg{Channels: 2, Data: []byte{1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.Decode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type(), got.Type())
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid := fas.Settings{Oscillators: 4, Octaves: 2, BaseFrequency: 110}
	with := func(f func(*fas.Settings)) []byte {
		s := valid
		f(&s)
		return protocol.AppendSettings(nil, s)
	}
	methods := protocol.AppendChannelMethods(nil, fas.Additive, fas.Granular)
	badMethod := protocol.AppendChannelMethods(nil, fas.Method(7))
	tests := []struct {
		name   string
		packet []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 0, 0}},
		{"unknown type", []byte{9, 0, 0, 0, 0, 0, 0, 0}},
		{"short settings", protocol.AppendSettings(nil, valid)[:20]},
		{"no oscillators", with(func(s *fas.Settings) { s.Oscillators = 0 })},
		{"too many oscillators", with(func(s *fas.Settings) { s.Oscillators = protocol.MaxOscillators + 1 })},
		{"no octave", with(func(s *fas.Settings) { s.Octaves = 0 })},
		{"zero frequency", with(func(s *fas.Settings) { s.BaseFrequency = 0 })},
		{"nan frequency", with(func(s *fas.Settings) { s.BaseFrequency = math.NaN() })},
		{"inf frequency", with(func(s *fas.Settings) { s.BaseFrequency = math.Inf(1) })},
		{"short frame", []byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0}},
		{"short gain", protocol.AppendGain(nil, fas.Gain{L: 1, R: 1})[:12]},
		{"nan gain", protocol.AppendGain(nil, fas.Gain{L: float32(math.NaN()), R: 1})},
		{"truncated methods", methods[:len(methods)-1]},
		{"unknown method", badMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode(tt.packet)
			assert.ErrorIs(t, err, protocol.ErrMalformed)
		})
	}
	// width flag other than 0 or 1
	p := protocol.AppendSettings(nil, valid)
	p[protocol.HeaderSize+8] = 2
	_, err := protocol.Decode(p)
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

// payload8 builds one channel payload with every oscillator set to v.
func payload8(oscillators int, l, r, noise, alpha uint8) []uint8 {
	var out []uint8
	for i := 0; i < oscillators; i++ {
		out = append(out, l, r, noise, alpha)
	}
	return out
}

func decodeFrame(t *testing.T, p []byte) protocol.FrameMsg {
	t.Helper()
	m, err := protocol.Decode(p)
	require.NoError(t, err)
	return m.(protocol.FrameMsg)
}

func TestBuilderZeroFillsMissingChannels(t *testing.T) {
	b := protocol.NewBuilder(2, fas.Settings{Oscillators: 4, Octaves: 2, BaseFrequency: 110}, 0)
	f := fas.NewFrame(2, 4)
	m := decodeFrame(t, protocol.AppendFrame8(nil, 1, payload8(4, 255, 255, 0, 0)))
	require.NoError(t, b.Build(m, &f))
	assert.Equal(t, 4, f.Count(0))
	assert.Equal(t, 0, f.Count(1))
	assert.Equal(t, 2, f.Channels())
}

func TestBuilderDiscardsExtraChannels(t *testing.T) {
	b := protocol.NewBuilder(1, fas.Settings{Oscillators: 2, Octaves: 1, BaseFrequency: 110}, 0)
	f := fas.NewFrame(1, 2)
	data := append(payload8(2, 255, 0, 0, 0), payload8(2, 0, 255, 0, 0)...)
	m := decodeFrame(t, protocol.AppendFrame8(nil, 2, data))
	require.NoError(t, b.Build(m, &f))
	require.Equal(t, 2, f.Count(0))
	assert.Equal(t, float32(1), f.Channel(0)[0].TargetL())
	assert.Zero(t, f.Channel(0)[0].TargetR())
}

func TestBuilderInterpolatesFromPreviousFrame(t *testing.T) {
	b := protocol.NewBuilder(1, fas.Settings{Oscillators: 3, Octaves: 1, BaseFrequency: 110, FloatData: true}, 0.1)
	f := fas.NewFrame(1, 3)

	first := []float32{0.5, 0.5, 0.2, 0.3, 0, 0, 0, 0, 0.05, 0, 0, 0}
	require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, first)), &f))
	notes := f.Channel(0)
	require.Len(t, notes, 1, "only the slot above the cutoff")
	assert.Equal(t, fas.Note{Index: 0, DiffL: 0.5, DiffR: 0.5, Noise: 0.2, Alpha: 0.3}, notes[0])

	second := []float32{0, 0, 0, 0, 1, 0.25, 0.5, 0, 0, 0, 0, 0}
	require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, second)), &f))
	notes = f.Channel(0)
	require.Len(t, notes, 2)
	// fading out
	assert.Equal(t, 0, notes[0].Index)
	assert.Equal(t, float32(0.5), notes[0].PrevL)
	assert.Equal(t, float32(-0.5), notes[0].DiffL)
	assert.Zero(t, notes[0].TargetL())
	// fading in
	assert.Equal(t, 1, notes[1].Index)
	assert.Zero(t, notes[1].PrevL)
	assert.Equal(t, float32(1), notes[1].TargetL())
	assert.Equal(t, float32(0.25), notes[1].TargetR())
	assert.Equal(t, float32(0.5), notes[1].Noise)

	b.Reset()
	require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, second)), &f))
	assert.Equal(t, 1, f.Count(0))
}

func TestBuilderRejectsShortPayload(t *testing.T) {
	b := protocol.NewBuilder(2, fas.Settings{Oscillators: 4, Octaves: 1, BaseFrequency: 110}, 0)
	f := fas.NewFrame(2, 4)
	m := decodeFrame(t, protocol.AppendFrame8(nil, 2, payload8(4, 255, 255, 0, 0)))
	assert.ErrorIs(t, b.Build(m, &f), protocol.ErrMalformed)
	assert.Equal(t, 16, b.ChannelSize())
}

func TestBuilderFrameTooSmall(t *testing.T) {
	b := protocol.NewBuilder(1, fas.Settings{Oscillators: 4, Octaves: 1, BaseFrequency: 110}, 0)
	f := fas.NewFrame(1, 2)
	m := decodeFrame(t, protocol.AppendFrame8(nil, 1, payload8(4, 255, 255, 0, 0)))
	assert.ErrorIs(t, b.Build(m, &f), protocol.ErrFrameFull)
}

func TestBuilderRejectsNonFiniteFloats(t *testing.T) {
	settings := fas.Settings{Oscillators: 2, Octaves: 1, BaseFrequency: 110, FloatData: true}
	nan := float32(math.NaN())
	inf := float32(math.Inf(-1))
	tests := []struct {
		name    string
		payload []float32
	}{
		{"nan volume", []float32{nan, 1, 0, 0, 0, 0, 0, 0}},
		{"infinite volume", []float32{1, inf, 0, 0, 0, 0, 0, 0}},
		{"nan noise", []float32{1, 1, nan, 0, 0, 0, 0, 0}},
		{"infinite alpha", []float32{0, 0, 0, 0, 1, 1, 0, inf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := protocol.NewBuilder(1, settings, 0)
			f := fas.NewFrame(1, 2)
			first := []float32{0.5, 0.5, 0, 0, 0, 0, 0, 0}
			require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, first)), &f))

			err := b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, tt.payload)), &f)
			assert.ErrorIs(t, err, protocol.ErrMalformed)

			// the rejected payload did not become the previous frame
			require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, first)), &f))
			require.Equal(t, 1, f.Count(0))
			assert.Equal(t, float32(0.5), f.Channel(0)[0].PrevL)
			assert.Zero(t, f.Channel(0)[0].DiffL)
		})
	}
}

func TestBuilderClampsNoiseAndAlpha(t *testing.T) {
	b := protocol.NewBuilder(1, fas.Settings{Oscillators: 2, Octaves: 1, BaseFrequency: 110, FloatData: true}, 0)
	f := fas.NewFrame(1, 2)
	payload := []float32{1, 1, -3, 7, 2, 0.5, 40, -0.5}
	require.NoError(t, b.Build(decodeFrame(t, protocol.AppendFrame32(nil, 1, payload)), &f))
	notes := f.Channel(0)
	require.Len(t, notes, 2)
	assert.Equal(t, float32(0), notes[0].Noise)
	assert.Equal(t, float32(1), notes[0].Alpha)
	assert.Equal(t, float32(1), notes[1].Noise)
	assert.Equal(t, float32(0), notes[1].Alpha)
	assert.Equal(t, float32(2), notes[1].TargetL(), "volumes are not clamped")
}

// Package protocol decodes the binary packets sent by the client and turns
// frame payloads into note frames.
//
// Every packet starts with an 8 byte header whose first byte is the packet
// type; the rest of the header is reserved. Multi-byte fields are little
// endian.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/grz0zrg/fas"
)

type (
	// Type is the leading byte of a packet.
	Type uint8

	// Message is a decoded packet: one of SettingsMsg, FrameMsg, GainMsg or
	// ChannelMethodMsg.
	Message interface {
		Type() Type
	}

	// SettingsMsg changes the synthesis configuration.
	SettingsMsg struct {
		fas.Settings
	}

	// FrameMsg carries the amplitudes of one update tick. Data aliases the
	// packet and holds Channels channel payloads; its sample width depends on
	// the current settings, so it is interpreted by a Builder.
	FrameMsg struct {
		Channels int
		Data     []byte
	}

	// GainMsg changes the output gain.
	GainMsg struct {
		fas.Gain
	}

	// ChannelMethodMsg sets the synthesis method of each channel.
	ChannelMethodMsg struct {
		Methods []fas.Method
	}
)

const (
	Settings Type = iota
	FrameData
	GainChange
	ChannelMethod
)

const (
	// HeaderSize is the length of the packet header.
	HeaderSize = 8
	// Components is the number of values per oscillator in a frame payload:
	// left amplitude, right amplitude, noise and alpha.
	Components = 4
	// MaxOscillators bounds the oscillator count a client may request.
	MaxOscillators = 1 << 16
	// MaxChannels bounds the channel count of frame and method packets.
	MaxChannels = 1 << 10

	settingsSize     = 24
	frameHeaderSize  = 8
	gainSize         = 8
	methodHeaderSize = 8
	methodSize       = 4
	maxOctaves       = 32
)

// ErrMalformed is returned for packets that are truncated or carry invalid
// values. Such packets are discarded as a whole.
var ErrMalformed = errors.New("protocol: malformed packet")

func (t Type) String() string {
	switch t {
	case Settings:
		return "SETTINGS"
	case FrameData:
		return "FRAME_DATA"
	case GainChange:
		return "GAIN_CHANGE"
	case ChannelMethod:
		return "CHANNEL_METHOD"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func (SettingsMsg) Type() Type { return Settings }

func (FrameMsg) Type() Type { return FrameData }

func (GainMsg) Type() Type { return GainChange }

func (ChannelMethodMsg) Type() Type { return ChannelMethod }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Decode decodes a complete packet.
func Decode(p []byte) (Message, error) {
	if len(p) < HeaderSize {
		return nil, malformed("packet of %d bytes is shorter than its header", len(p))
	}
	body := p[HeaderSize:]
	switch t := Type(p[0]); t {
	case Settings:
		return DecodeSettings(body)
	case FrameData:
		return DecodeFrame(body)
	case GainChange:
		return DecodeGain(body)
	case ChannelMethod:
		return DecodeChannelMethod(body)
	default:
		return nil, malformed("unknown packet type %d", uint8(t))
	}
}

// DecodeSettings decodes the body of a SETTINGS packet.
func DecodeSettings(b []byte) (SettingsMsg, error) {
	if len(b) < settingsSize {
		return SettingsMsg{}, malformed("settings body of %d bytes, want %d", len(b), settingsSize)
	}
	oscillators := binary.LittleEndian.Uint32(b[0:])
	octaves := binary.LittleEndian.Uint32(b[4:])
	width := binary.LittleEndian.Uint32(b[8:])
	base := math.Float64frombits(binary.LittleEndian.Uint64(b[16:]))
	switch {
	case oscillators == 0 || oscillators > MaxOscillators:
		return SettingsMsg{}, malformed("oscillator count %d", oscillators)
	case octaves == 0 || octaves > maxOctaves:
		return SettingsMsg{}, malformed("octave count %d", octaves)
	case width > 1:
		return SettingsMsg{}, malformed("data width flag %d", width)
	case !(base > 0) || math.IsInf(base, 0):
		return SettingsMsg{}, malformed("base frequency %v", base)
	}
	return SettingsMsg{fas.Settings{
		Oscillators:   int(oscillators),
		Octaves:       int(octaves),
		FloatData:     width == 1,
		BaseFrequency: base,
	}}, nil
}

// DecodeFrame decodes the header of a FRAME_DATA body. The payload length is
// checked against the settings by the Builder.
func DecodeFrame(b []byte) (FrameMsg, error) {
	if len(b) < frameHeaderSize {
		return FrameMsg{}, malformed("frame body of %d bytes", len(b))
	}
	channels := binary.LittleEndian.Uint32(b)
	if channels > MaxChannels {
		return FrameMsg{}, malformed("frame channel count %d", channels)
	}
	return FrameMsg{Channels: int(channels), Data: b[frameHeaderSize:]}, nil
}

// DecodeGain decodes the body of a GAIN_CHANGE packet.
func DecodeGain(b []byte) (GainMsg, error) {
	if len(b) < gainSize {
		return GainMsg{}, malformed("gain body of %d bytes, want %d", len(b), gainSize)
	}
	l := math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))
	r := math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	if !finite(l) || !finite(r) {
		return GainMsg{}, malformed("gain %v, %v", l, r)
	}
	return GainMsg{fas.Gain{L: l, R: r}}, nil
}

// DecodeChannelMethod decodes the body of a CHANNEL_METHOD packet.
func DecodeChannelMethod(b []byte) (ChannelMethodMsg, error) {
	if len(b) < methodHeaderSize {
		return ChannelMethodMsg{}, malformed("channel method body of %d bytes", len(b))
	}
	count := binary.LittleEndian.Uint32(b)
	if count > MaxChannels {
		return ChannelMethodMsg{}, malformed("channel count %d", count)
	}
	b = b[methodHeaderSize:]
	if len(b) < int(count)*methodSize {
		return ChannelMethodMsg{}, malformed("%d channel methods in %d bytes", count, len(b))
	}
	methods := make([]fas.Method, count)
	for i := range methods {
		m := fas.Method(binary.LittleEndian.Uint32(b[i*methodSize:]))
		if !m.Valid() {
			return ChannelMethodMsg{}, malformed("channel %d: unknown method %d", i, uint32(m))
		}
		methods[i] = m
	}
	return ChannelMethodMsg{Methods: methods}, nil
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

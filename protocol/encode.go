package protocol

import (
	"encoding/binary"
	"math"

	"github.com/grz0zrg/fas"
)

func appendHeader(dst []byte, t Type) []byte {
	return append(dst, byte(t), 0, 0, 0, 0, 0, 0, 0)
}

// AppendSettings appends a SETTINGS packet to dst.
func AppendSettings(dst []byte, s fas.Settings) []byte {
	dst = appendHeader(dst, Settings)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(s.Oscillators))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(s.Octaves))
	var width uint32
	if s.FloatData {
		width = 1
	}
	dst = binary.LittleEndian.AppendUint32(dst, width)
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(s.BaseFrequency))
}

// AppendFrame8 appends a FRAME_DATA packet with 8 bit samples. samples holds
// channels payloads of Components values per oscillator.
func AppendFrame8(dst []byte, channels int, samples []uint8) []byte {
	dst = appendHeader(dst, FrameData)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(channels))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	return append(dst, samples...)
}

// AppendFrame32 appends a FRAME_DATA packet with float32 samples.
func AppendFrame32(dst []byte, channels int, samples []float32) []byte {
	dst = appendHeader(dst, FrameData)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(channels))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// AppendGain appends a GAIN_CHANGE packet.
func AppendGain(dst []byte, g fas.Gain) []byte {
	dst = appendHeader(dst, GainChange)
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(g.L))
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(g.R))
}

// AppendChannelMethods appends a CHANNEL_METHOD packet.
func AppendChannelMethods(dst []byte, methods ...fas.Method) []byte {
	dst = appendHeader(dst, ChannelMethod)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(methods)))
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	for _, m := range methods {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(m))
	}
	return dst
}

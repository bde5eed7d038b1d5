package fas

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

type (
	riffChunk struct {
		ID   [4]byte
		Size uint32
		Wave [4]byte
	}

	chunkHeader struct {
		ID   [4]byte
		Size uint32
	}

	// fmtChunk is the format chunk of a .wav file, without its header.
	fmtChunk struct {
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
)

const (
	wavePCM   = 1
	waveFloat = 3
)

// Wav encodes an interleaved buffer as a .wav file. With pcm16 the samples are
// converted to 16-bit signed integers, otherwise they are stored as IEEE
// float32 with a fact chunk.
func Wav(buffer []float32, channels, sampleRate int, pcm16 bool) ([]byte, error) {
	if channels <= 0 || len(buffer)%channels != 0 {
		return nil, fmt.Errorf("Wav failed: buffer length %d is not a multiple of %d channels", len(buffer), channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("Wav failed: invalid sample rate %d", sampleRate)
	}
	format, width := uint16(waveFloat), 4
	if pcm16 {
		format, width = wavePCM, 2
	}
	dataSize := uint32(width * len(buffer))
	f := fmtChunk{
		Format:        format,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * width),
		BlockAlign:    uint16(channels * width),
		BitsPerSample: uint16(8 * width),
	}
	var header []any
	if pcm16 {
		header = []any{
			riffChunk{ID: fourCC("RIFF"), Size: 36 + dataSize, Wave: fourCC("WAVE")},
			chunkHeader{ID: fourCC("fmt "), Size: 16}, f,
		}
	} else {
		// non-PCM formats carry an empty extension and a fact chunk
		header = []any{
			riffChunk{ID: fourCC("RIFF"), Size: 50 + dataSize, Wave: fourCC("WAVE")},
			chunkHeader{ID: fourCC("fmt "), Size: 18}, f, uint16(0),
			chunkHeader{ID: fourCC("fact"), Size: 4}, uint32(len(buffer) / channels),
		}
	}
	header = append(header, chunkHeader{ID: fourCC("data"), Size: dataSize})

	buf := bytes.NewBuffer(make([]byte, 0, 58+int(dataSize)))
	for _, h := range header {
		if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
			return nil, fmt.Errorf("Wav failed: %v", err)
		}
	}
	buf.Write(encodeSamples(buffer, pcm16))
	return buf.Bytes(), nil
}

// Raw encodes an interleaved buffer as headerless little-endian samples.
func Raw(buffer []float32, pcm16 bool) ([]byte, error) {
	return encodeSamples(buffer, pcm16), nil
}

func encodeSamples(data []float32, pcm16 bool) []byte {
	if !pcm16 {
		out := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}
	out := make([]byte, 2*len(data))
	for i, v := range data {
		s := math.Round(float64(v) * math.MaxInt16)
		s = min(max(s, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}

func fourCC(s string) (id [4]byte) {
	copy(id[:], s)
	return id
}

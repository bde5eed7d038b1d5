package oto

import (
	"encoding/binary"
	"math"
)

// FloatBufferToFloat32LE encodes buff as little-endian float32 samples into
// dst, which must hold 4 bytes per sample. It returns the number of bytes
// written.
func FloatBufferToFloat32LE(dst []byte, buff []float32) int {
	for i, v := range buff {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
	return 4 * len(buff)
}

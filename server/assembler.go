package server

import (
	"errors"
	"fmt"
)

// ErrPacketTooLarge is returned when a packet grows beyond the maximum packet
// size. The rest of the packet is skipped.
var ErrPacketTooLarge = errors.New("server: packet too large")

// Assembler joins the fragments of a packet. A packet that outgrows the
// maximum size puts the assembler in a skip state in which fragments are
// discarded until the final fragment of that packet.
type Assembler struct {
	max      int
	buf      []byte
	skipping bool
}

// NewAssembler creates an assembler for packets of at most max bytes.
func NewAssembler(max int) *Assembler {
	return &Assembler{max: max}
}

// Write adds a fragment. When final is set and the packet is complete, it is
// returned; it stays valid until the next call to Write. An oversized packet
// returns ErrPacketTooLarge once, on the fragment that overflows.
func (a *Assembler) Write(fragment []byte, final bool) ([]byte, error) {
	if a.skipping {
		if final {
			a.skipping = false
		}
		return nil, nil
	}
	if len(a.buf)+len(fragment) > a.max {
		size := len(a.buf) + len(fragment)
		a.buf = a.buf[:0]
		a.skipping = !final
		return nil, fmt.Errorf("%w: more than %d bytes (got %d)", ErrPacketTooLarge, a.max, size)
	}
	a.buf = append(a.buf, fragment...)
	if !final {
		return nil, nil
	}
	packet := a.buf
	a.buf = a.buf[:0]
	return packet, nil
}

// Skipping reports whether the assembler is discarding an oversized packet.
func (a *Assembler) Skipping() bool { return a.skipping }

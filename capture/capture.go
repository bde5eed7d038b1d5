// Package capture records the packets received from a client to a file and
// reads them back, so a session can be replayed offline.
//
// A capture file starts with a magic string followed by records of a little
// endian uint64 timestamp in nanoseconds since the start of the recording, a
// uint32 packet length and the packet bytes.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	magic      = "FASCAP1\n"
	recordHead = 12
	// MaxPacket bounds the packet length accepted by the reader.
	MaxPacket = 1 << 30
)

// ErrFormat is returned for files that are not captures or are corrupt.
var ErrFormat = errors.New("capture: invalid file")

type (
	// Record is one captured packet.
	Record struct {
		At     time.Duration // since the start of the recording
		Packet []byte
	}

	// Writer records packets. It is safe for concurrent use.
	Writer struct {
		mu    sync.Mutex
		w     *bufio.Writer
		c     io.Closer
		start time.Time
		now   func() time.Time
	}

	// Reader reads a capture.
	Reader struct {
		r   *bufio.Reader
		buf []byte
	}
)

// Create creates a capture file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter starts a capture on w. If w is an io.Closer, Close closes it.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := &Writer{w: bufio.NewWriter(w), now: time.Now}
	cw.c, _ = w.(io.Closer)
	cw.start = cw.now()
	if _, err := cw.w.WriteString(magic); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return cw, nil
}

// Record appends a packet stamped with the time elapsed since the capture
// started.
func (w *Writer) Record(packet []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(w.now().Sub(w.start), packet)
}

func (w *Writer) write(at time.Duration, packet []byte) error {
	var head [recordHead]byte
	binary.LittleEndian.PutUint64(head[0:], uint64(at))
	binary.LittleEndian.PutUint32(head[8:], uint32(len(packet)))
	if _, err := w.w.Write(head[:]); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if _, err := w.w.Write(packet); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Close flushes the capture and closes the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.w.Flush()
	if w.c != nil {
		err = errors.Join(err, w.c.Close())
	}
	return err
}

// NewReader checks the header of a capture and returns a reader for its
// records.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || !bytes.Equal(head, []byte(magic)) {
		return nil, ErrFormat
	}
	return &Reader{r: br}, nil
}

// Next returns the next record. The packet stays valid until the next call.
// At the end of the capture it returns io.EOF.
func (r *Reader) Next() (Record, error) {
	var head [recordHead]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: truncated record header", ErrFormat)
	}
	n := binary.LittleEndian.Uint32(head[8:])
	if n > MaxPacket {
		return Record{}, fmt.Errorf("%w: packet of %d bytes", ErrFormat, n)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return Record{}, fmt.Errorf("%w: truncated packet", ErrFormat)
	}
	return Record{
		At:     time.Duration(binary.LittleEndian.Uint64(head[0:])),
		Packet: r.buf,
	}, nil
}

package fas

// Frame is the note data of one update tick. Notes are stored flat and grouped
// by channel: the notes of channel k directly follow those of channel k-1, and
// a per channel end offset acts as the count header. A Frame is allocated once
// with room for every oscillator of every channel and reused through a pool.
type Frame struct {
	notes []Note
	ends  []int
	open  int // channel currently being filled
}

// NewFrame allocates a frame for the given channel and oscillator counts.
func NewFrame(channels, oscillators int) Frame {
	return Frame{
		notes: make([]Note, 0, channels*oscillators),
		ends:  make([]int, channels),
	}
}

// Reset empties the frame, keeping its storage.
func (f *Frame) Reset() {
	f.notes = f.notes[:0]
	for i := range f.ends {
		f.ends[i] = 0
	}
	f.open = 0
}

// Add appends a note to the channel currently being filled. It reports false
// when the frame is full or every channel was already closed.
func (f *Frame) Add(n Note) bool {
	if f.open >= len(f.ends) || len(f.notes) == cap(f.notes) {
		return false
	}
	f.notes = append(f.notes, n)
	return true
}

// CloseChannel ends the channel being filled; subsequent notes go to the next
// channel.
func (f *Frame) CloseChannel() {
	if f.open >= len(f.ends) {
		return
	}
	f.ends[f.open] = len(f.notes)
	f.open++
}

// Channels returns the number of channels of the frame.
func (f *Frame) Channels() int { return len(f.ends) }

// Len returns the total number of notes.
func (f *Frame) Len() int { return len(f.notes) }

// Channel returns the notes of channel k. Channels that were never closed
// are empty.
func (f *Frame) Channel(k int) []Note {
	if k < 0 || k >= f.open {
		return nil
	}
	start := 0
	if k > 0 {
		start = f.ends[k-1]
	}
	return f.notes[start:f.ends[k]]
}

// Count returns the number of notes of channel k.
func (f *Frame) Count(k int) int { return len(f.Channel(k)) }

package capture

import (
	"errors"
	"fmt"
)

// ErrOverflow indicates a chunk that would push the buffer past the length
// the camera reported. That is a protocol-level inconsistency, never
// silently truncated.
var ErrOverflow = errors.New("chunk would exceed expected image length")

// Accumulator collects image chunks until the expected byte count is
// reached. It is the only owner of the buffer while a download runs; the
// finalized bytes are handed out once, when complete.
type Accumulator struct {
	expected int
	buf      []byte
}

// NewAccumulator prepares a buffer for an image of the given length.
func NewAccumulator(expected int) *Accumulator {
	return &Accumulator{
		expected: expected,
		buf:      make([]byte, 0, expected),
	}
}

// Append adds a chunk, rejecting any append that would exceed the expected
// length.
func (a *Accumulator) Append(chunk []byte) error {
	if len(a.buf)+len(chunk) > a.expected {
		return fmt.Errorf("%w: have %d, chunk %d, expected %d",
			ErrOverflow, len(a.buf), len(chunk), a.expected)
	}
	a.buf = append(a.buf, chunk...)
	return nil
}

// Len reports the bytes received so far.
func (a *Accumulator) Len() int { return len(a.buf) }

// Remaining reports how many bytes are still missing.
func (a *Accumulator) Remaining() int { return a.expected - len(a.buf) }

// Complete reports whether the buffer holds exactly the expected length.
func (a *Accumulator) Complete() bool { return len(a.buf) == a.expected }

// Bytes returns the finalized image. It fails while the download is still
// incomplete so partial buffers can never leak out as images.
func (a *Accumulator) Bytes() ([]byte, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("image incomplete: %d of %d bytes", len(a.buf), a.expected)
	}
	return a.buf, nil
}

package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
)

// State is the position of a capture session in its lifecycle.
type State int

const (
	Idle State = iota
	Resetting
	Freezing
	AwaitingLength
	Reading
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resetting:
		return "resetting"
	case Freezing:
		return "freezing"
	case AwaitingLength:
		return "awaiting-length"
	case Reading:
		return "reading"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Failure is the terminal error of a session: the underlying cause plus the
// state the machine was in when it happened, for diagnostics.
type Failure struct {
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("capture failed while %s: %v", f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Params tunes a capture session.
type Params struct {
	// ChunkSize is the number of bytes requested per read command.
	// Must be a positive multiple of 4; defaults to 128.
	ChunkSize int
}

const defaultChunkSize = 128

// Session walks a camera through one capture and download:
// reset, freeze the frame buffer, query the frame length, then read chunks
// until the buffer holds exactly that many bytes. One session owns the
// camera (and its transport) for its whole run; there is never more than
// one command in flight. No retries happen here; a failed session is left
// in the Failed state and the caller decides whether to run a new one.
type Session struct {
	cam   camera.Camera
	chunk int
	state State
	acc   *Accumulator
}

// NewSession creates an idle session for cam.
func NewSession(cam camera.Camera, p Params) *Session {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Session{
		cam:   cam,
		chunk: chunk,
		state: Idle,
	}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Image returns the downloaded bytes once the session is Complete.
func (s *Session) Image() ([]byte, error) {
	if s.state != Complete {
		return nil, fmt.Errorf("no image: session is %s", s.state)
	}
	return s.acc.Bytes()
}

// Run executes the capture sequence and returns the complete image.
// Any partial buffer from a previous run is discarded first. On error the
// returned *Failure records the state at which the sequence died.
func (s *Session) Run(ctx context.Context) ([]byte, error) {
	// Rerunning a finished or failed session starts over from Idle.
	s.state = Idle
	s.acc = nil

	debug.Section("Capture Session")

	if err := s.step(ctx, Resetting, s.cam.Reset); err != nil {
		return nil, err
	}
	if err := s.step(ctx, Freezing, s.cam.Freeze); err != nil {
		return nil, err
	}

	s.state = AwaitingLength
	debug.Capture(s.state.String())
	if err := ctx.Err(); err != nil {
		return nil, s.fail(err)
	}
	length, err := s.cam.FrameLength()
	if err != nil {
		return nil, s.fail(err)
	}
	if length == 0 {
		return nil, s.fail(errors.New("camera reported an empty frame"))
	}
	debug.Value("Frame length", length)
	s.acc = NewAccumulator(int(length))

	s.state = Reading
	debug.Capture(s.state.String())
	if err := s.download(ctx); err != nil {
		return nil, err
	}

	s.state = Complete
	debug.Live("Capture complete: %d bytes", s.acc.Len())

	// Best effort: put the camera back into live mode. A failure here does
	// not invalidate the image already in hand.
	if err := s.cam.Resume(); err != nil {
		debug.Error(fmt.Errorf("resume frame buffer: %w", err))
	}

	return s.acc.Bytes()
}

// step runs one simple transition: enter the state, check the context, run
// the camera operation.
func (s *Session) step(ctx context.Context, st State, op func() error) error {
	s.state = st
	debug.Capture(st.String())
	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}
	if err := op(); err != nil {
		return s.fail(err)
	}
	return nil
}

// download reads chunks until the accumulator is full. Offsets advance by
// the bytes actually received, never by the requested size.
func (s *Session) download(ctx context.Context) error {
	offset := uint32(0)
	for !s.acc.Complete() {
		select {
		case <-ctx.Done():
			return s.fail(ctx.Err())
		default:
		}

		request := s.chunk
		if remaining := s.acc.Remaining(); remaining < request {
			// Round the final request up to the hardware's multiple-of-4
			// granularity; the camera stops at the end of the frame.
			request = (remaining + 3) &^ 3
		}

		data, err := s.cam.ReadChunk(offset, request)
		if err != nil {
			return s.fail(err)
		}
		if len(data) == 0 {
			return s.fail(fmt.Errorf("chunk read at offset %d returned no data", offset))
		}
		if len(data) > s.acc.Remaining() {
			// The camera sent more than the frame it announced; that is a
			// fatal mismatch, not something to truncate.
			return s.fail(fmt.Errorf("%w: %d bytes at offset %d, %d expected",
				ErrOverflow, len(data), offset, s.acc.Remaining()))
		}
		if err := s.acc.Append(data); err != nil {
			return s.fail(err)
		}
		offset += uint32(len(data))
	}
	return nil
}

func (s *Session) fail(err error) error {
	failure := &Failure{State: s.state, Err: err}
	s.state = Failed
	debug.Error(failure)
	return failure
}

package serial

import (
	"encoding/binary"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/protocol"
)

// Sim is an in-memory VC0706: it parses command frames written to the port
// and queues protocol replies for the driver to read. Used for development
// without the hardware and for exercising the full stack in tests.
//
// The zero value is not usable; create instances with NewSim or NewSimImage.
type Sim struct {
	mu     sync.Mutex
	in     []byte // host-to-camera bytes awaiting a complete command
	out    []byte // camera-to-host bytes awaiting Read
	image  []byte
	frozen bool
	motion bool
	closed bool

	// Fault injection knobs for tests. All default to the honest behavior.
	DropReplies bool  // swallow commands without answering (provokes timeouts)
	CorruptSync bool  // clobber the sync byte of every reply
	ReplySerial *byte // answer with this serial number instead of the echoed one
	ShortFinal  bool  // report a frame length larger than the actual image
}

const simVersion = "VC0703 1.00"

// NewSim creates a simulated camera holding a small deterministic JPEG.
// The image length is deliberately not a multiple of common chunk sizes so
// downloads end with a partial chunk.
func NewSim() *Sim {
	return NewSimImage(makeTestJPEG(1837))
}

// NewSimImage creates a simulated camera that serves the given image.
func NewSimImage(image []byte) *Sim {
	return &Sim{image: image}
}

// ImageLen returns the size of the image the simulator serves.
func (s *Sim) ImageLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.image)
}

// TriggerMotion queues an unsolicited motion-detected frame, as the real
// camera does when motion detection is armed.
func (s *Sim) TriggerMotion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.motion {
		s.push(protocol.EncodeReply(0x00, protocol.CmdCommMotionDetected, protocol.StatusOK, nil))
	}
}

func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = append(s.in, p...)
	s.dispatch()
	return len(p), nil
}

func (s *Sim) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.out) == 0 {
		return 0, nil
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *Sim) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = nil
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.in = nil
	s.out = nil
	return nil
}

// dispatch consumes complete command frames from the input buffer.
// Caller holds s.mu.
func (s *Sim) dispatch() {
	for {
		if len(s.in) < protocol.CommandHeaderLen {
			return
		}
		need := protocol.CommandHeaderLen + int(s.in[3])
		if len(s.in) < need {
			return
		}
		serial, cmd, args, n, err := protocol.ParseCommand(s.in[:need])
		if err != nil {
			// Garbage on the wire: drop one byte and resync.
			s.in = s.in[1:]
			continue
		}
		s.in = s.in[n:]
		s.handle(serial, cmd, args)
	}
}

func (s *Sim) handle(serial byte, cmd protocol.Command, args []byte) {
	debug.Frame("sim rx", append([]byte{byte(cmd)}, args...))

	switch cmd {
	case protocol.CmdSystemReset:
		s.frozen = false
		s.motion = false
		s.reply(serial, cmd, protocol.StatusOK, nil)
		// Init banner printed by the real firmware after the ack.
		s.push([]byte("VC0703 1.00\r\nInit end\r\n"))

	case protocol.CmdGenVersion:
		s.reply(serial, cmd, protocol.StatusOK, []byte(simVersion))

	case protocol.CmdSetPort, protocol.CmdWriteData, protocol.CmdDownsizeCtrl:
		s.reply(serial, cmd, protocol.StatusOK, nil)

	case protocol.CmdFBufCtrl:
		if len(args) != 1 {
			s.reply(serial, cmd, protocol.StatusDataLengthError, nil)
			return
		}
		switch args[0] {
		case protocol.CtrlStopCurrentFrame, protocol.CtrlStopNextFrame:
			s.frozen = true
		case protocol.CtrlResumeFrame:
			s.frozen = false
		}
		s.reply(serial, cmd, protocol.StatusOK, nil)

	case protocol.CmdGetFBufLen:
		length := uint32(len(s.image))
		if s.ShortFinal {
			length += 512
		}
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, length)
		s.reply(serial, cmd, protocol.StatusOK, payload)

	case protocol.CmdReadFBuf:
		s.handleRead(serial, args)

	case protocol.CmdCommMotionCtrl:
		if len(args) == 2 {
			s.motion = args[1] == 0x01
		}
		s.reply(serial, cmd, protocol.StatusOK, nil)

	case protocol.CmdCommMotionStatus:
		state := byte(0x00)
		if s.motion {
			state = 0x01
		}
		s.reply(serial, cmd, protocol.StatusOK, []byte{state})

	default:
		s.reply(serial, cmd, protocol.StatusNotReceived, nil)
	}
}

func (s *Sim) handleRead(serial byte, args []byte) {
	if len(args) != 12 {
		s.reply(serial, protocol.CmdReadFBuf, protocol.StatusDataLengthError, nil)
		return
	}
	if !s.frozen {
		s.reply(serial, protocol.CmdReadFBuf, protocol.StatusCommandUnavailable, nil)
		return
	}
	offset := binary.BigEndian.Uint32(args[2:6])
	length := binary.BigEndian.Uint32(args[6:10])
	if offset > uint32(len(s.image)) {
		offset = uint32(len(s.image))
	}
	end := offset + length
	if end > uint32(len(s.image)) {
		end = uint32(len(s.image))
	}
	data := s.image[offset:end]

	bracket := protocol.ChunkBracket(s.serialFor(serial))
	frame := make([]byte, 0, 2*len(bracket)+len(data))
	frame = append(frame, bracket...)
	frame = append(frame, data...)
	frame = append(frame, bracket...)
	s.pushRaw(frame)
}

func (s *Sim) reply(serial byte, cmd protocol.Command, status byte, payload []byte) {
	s.pushRaw(protocol.EncodeReply(s.serialFor(serial), cmd, status, payload))
}

func (s *Sim) serialFor(echoed byte) byte {
	if s.ReplySerial != nil {
		return *s.ReplySerial
	}
	return echoed
}

func (s *Sim) pushRaw(frame []byte) {
	if s.DropReplies {
		return
	}
	if s.CorruptSync && len(frame) > 0 {
		frame[0] = 0x00
	}
	s.push(frame)
}

func (s *Sim) push(b []byte) {
	s.out = append(s.out, b...)
}

// makeTestJPEG builds a deterministic byte sequence with JPEG start/end
// markers, good enough for download plumbing (not a decodable picture).
func makeTestJPEG(size int) []byte {
	if size < 4 {
		size = 4
	}
	img := make([]byte, size)
	img[0], img[1] = 0xFF, 0xD8
	for i := 2; i < size-2; i++ {
		img[i] = byte(i * 31)
	}
	img[size-2], img[size-1] = 0xFF, 0xD9
	return img
}

package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/serial"
	"github.com/cjeanneret/SnapGo/internal/protocol"
)

// VC0706 drives the VC0706 serial TTL camera module over a byte transport.
// Every operation is one command/response round trip; the port is drained
// before each command so stale bytes cannot be mistaken for the reply.
//
// The port belongs to one VC0706 at a time. Nothing here is goroutine-safe;
// the protocol is strictly request/response.
type VC0706 struct {
	port        serial.Port
	serial      byte
	readTimeout time.Duration
	resetDelay  time.Duration
	chunkDelay  uint16 // inter-byte delay for frame reads, 0.01 ms units
}

// Options tunes a VC0706. Zero values select defaults.
type Options struct {
	Serial      byte          // protocol serial number, usually 0x00
	ReadTimeout time.Duration // deadline for one reply (default 500ms)
	ResetDelay  time.Duration // settle time after a reset ack (default 1s)
}

const (
	defaultReadTimeout = 500 * time.Millisecond
	defaultResetDelay  = time.Second
	defaultChunkDelay  = 10 // 0.1 ms
)

// NewVC0706 wraps port. It does not touch the hardware; call Reset (or run
// a capture session, which resets first) before other operations.
func NewVC0706(port serial.Port, opts Options) *VC0706 {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = defaultResetDelay
	}
	return &VC0706{
		port:        port,
		serial:      opts.Serial,
		readTimeout: opts.ReadTimeout,
		resetDelay:  opts.ResetDelay,
		chunkDelay:  defaultChunkDelay,
	}
}

// send drains stale input and writes one command frame.
func (c *VC0706) send(cmd protocol.Command, args []byte) error {
	if err := c.port.Drain(); err != nil {
		return fmt.Errorf("drain before command 0x%02x: %w", byte(cmd), err)
	}
	frame, err := protocol.EncodeCommand(c.serial, cmd, args)
	if err != nil {
		return err
	}
	debug.Frame("send", frame)
	if _, err := c.port.Write(frame); err != nil {
		return fmt.Errorf("write command 0x%02x: %w", byte(cmd), err)
	}
	return nil
}

// recv reads and validates the reply to cmd: a 5-byte header followed by
// the payload the header declares.
func (c *VC0706) recv(cmd protocol.Command) (protocol.Reply, error) {
	raw := make([]byte, protocol.ReplyHeaderLen)
	if _, err := serial.ReadFull(c.port, raw, c.readTimeout); err != nil {
		return protocol.Reply{}, fmt.Errorf("reply to command 0x%02x: %w", byte(cmd), err)
	}
	if n := int(raw[4]); n > 0 {
		payload := make([]byte, n)
		if _, err := serial.ReadFull(c.port, payload, c.readTimeout); err != nil {
			return protocol.Reply{}, fmt.Errorf("reply payload for command 0x%02x: %w", byte(cmd), err)
		}
		raw = append(raw, payload...)
	}
	debug.Frame("recv", raw)
	return protocol.DecodeReply(raw, c.serial, cmd)
}

func (c *VC0706) run(cmd protocol.Command, args []byte) (protocol.Reply, error) {
	if err := c.send(cmd, args); err != nil {
		return protocol.Reply{}, err
	}
	return c.recv(cmd)
}

// Reset reboots the camera, waits for it to settle, and discards the ASCII
// init banner the firmware prints after the ack.
func (c *VC0706) Reset() error {
	debug.Live("Camera: reset")
	if _, err := c.run(protocol.CmdSystemReset, nil); err != nil {
		return err
	}
	time.Sleep(c.resetDelay)
	return c.port.Drain()
}

// Version returns the firmware version string, e.g. "VC0703 1.00".
func (c *VC0706) Version() (string, error) {
	reply, err := c.run(protocol.CmdGenVersion, nil)
	if err != nil {
		return "", err
	}
	return string(reply.Payload), nil
}

// SetImageSize writes the resolution register. The new size takes effect
// after the next reset.
func (c *VC0706) SetImageSize(size byte) error {
	debug.Verbose("Camera: set image size 0x%02x", size)
	_, err := c.run(protocol.CmdWriteData, protocol.ImageSizeArgs(size))
	return err
}

// SetCompression writes the JPEG compression ratio register (0x00 best
// quality, 0xFF smallest output).
func (c *VC0706) SetCompression(ratio byte) error {
	debug.Verbose("Camera: set compression 0x%02x", ratio)
	_, err := c.run(protocol.CmdWriteData, protocol.CompressionArgs(ratio))
	return err
}

// SetBaudRate switches the camera UART to one of the supported rates.
// The host port keeps its old rate; the caller must reopen it afterwards.
func (c *VC0706) SetBaudRate(baud int) error {
	args, err := protocol.SetPortArgs(baud)
	if err != nil {
		return err
	}
	debug.Verbose("Camera: set baud rate %d", baud)
	_, err = c.run(protocol.CmdSetPort, args)
	return err
}

// Freeze stops the current frame so it can be read out.
func (c *VC0706) Freeze() error {
	debug.Verbose("Camera: freeze frame buffer")
	_, err := c.run(protocol.CmdFBufCtrl, []byte{protocol.CtrlStopCurrentFrame})
	return err
}

// Resume puts the camera back into live mode after a readout.
func (c *VC0706) Resume() error {
	debug.Verbose("Camera: resume frame buffer")
	_, err := c.run(protocol.CmdFBufCtrl, []byte{protocol.CtrlResumeFrame})
	return err
}

// FrameLength reports the byte length of the frozen frame.
func (c *VC0706) FrameLength() (uint32, error) {
	reply, err := c.run(protocol.CmdGetFBufLen, []byte{protocol.CtrlStopCurrentFrame})
	if err != nil {
		return 0, err
	}
	return protocol.ParseFrameLength(reply.Payload)
}

// ReadChunk downloads up to n bytes of the frozen frame starting at offset.
// n must be a positive multiple of 4 (hardware constraint). The camera may
// deliver fewer bytes than requested near the end of the frame; the chunk
// is still valid as long as its reply footer checks out, and the caller
// must advance its offset by the count actually returned.
func (c *VC0706) ReadChunk(offset uint32, n int) ([]byte, error) {
	if n <= 0 || n%4 != 0 {
		return nil, fmt.Errorf("chunk size %d must be a positive multiple of 4", n)
	}
	args := protocol.ReadFBufArgs(offset, uint32(n), c.chunkDelay)
	if err := c.send(protocol.CmdReadFBuf, args); err != nil {
		return nil, err
	}

	raw := make([]byte, n+2*protocol.ReplyHeaderLen)
	got, err := serial.ReadFull(c.port, raw, c.readTimeout)
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) && got >= protocol.ReplyHeaderLen {
			// Short delivery: valid if header and footer still bracket it.
			if got >= 2*protocol.ReplyHeaderLen {
				if data, perr := protocol.ParseChunk(raw[:got], c.serial); perr == nil {
					debug.Chunk(offset, len(data))
					return data, nil
				}
			}
			// A bare header may be a status refusal (e.g. the frame is not
			// frozen); report that instead of the read timeout.
			if _, derr := protocol.DecodeReply(raw[:protocol.ReplyHeaderLen], c.serial, protocol.CmdReadFBuf); derr != nil {
				var status protocol.StatusError
				if errors.As(derr, &status) {
					return nil, fmt.Errorf("chunk at offset %d: %w", offset, derr)
				}
			}
		}
		return nil, fmt.Errorf("chunk at offset %d: %w", offset, err)
	}

	data, err := protocol.ParseChunk(raw, c.serial)
	if err != nil {
		return nil, fmt.Errorf("chunk at offset %d: %w", offset, err)
	}
	debug.Chunk(offset, len(data))
	return data, nil
}

// SetMotionDetect arms or disarms motion detection over the comm interface.
func (c *VC0706) SetMotionDetect(enabled bool) error {
	flag := byte(0x00)
	if enabled {
		flag = 0x01
	}
	debug.Verbose("Camera: motion detection %v", enabled)
	_, err := c.run(protocol.CmdCommMotionCtrl, []byte{0x01, flag})
	return err
}

// MotionDetected polls for an unsolicited motion frame. It returns false
// without error when nothing has arrived within the poll window.
func (c *VC0706) MotionDetected() (bool, error) {
	raw := make([]byte, protocol.ReplyHeaderLen)
	if _, err := serial.ReadFull(c.port, raw, 50*time.Millisecond); err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	if _, err := protocol.DecodeReply(raw, c.serial, protocol.CmdCommMotionDetected); err != nil {
		return false, fmt.Errorf("motion frame: %w", err)
	}
	debug.Live("Camera: motion detected")
	return true, nil
}

package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire layout, from the VC0706 datasheet:
//
//	send:  0x56 + serial(1) + command(1) + data length(1) + data(0-16)
//	reply: 0x76 + serial(1) + command(1) + status(1) + data length(1) + data
//
// The protocol carries no checksum; integrity rests on the sync byte, the
// echoed serial number and command code, and (for frame buffer reads) the
// reply footer that brackets the image data.

const (
	// CommandHeaderLen is the fixed prefix of a send frame.
	CommandHeaderLen = 4
	// ReplyHeaderLen is the fixed prefix of a reply frame.
	ReplyHeaderLen = 5
	// MaxArgsLen is the largest data block a send frame may carry.
	MaxArgsLen = 16
)

// Reply is a decoded camera response.
type Reply struct {
	Serial  byte
	Cmd     Command
	Status  byte
	Payload []byte
}

// EncodeCommand builds a send frame for cmd with the given data bytes.
// The data length byte is derived from args; args must not exceed MaxArgsLen.
func EncodeCommand(serial byte, cmd Command, args []byte) ([]byte, error) {
	if len(args) > MaxArgsLen {
		return nil, fmt.Errorf("command 0x%02x: %d data bytes exceeds maximum %d", byte(cmd), len(args), MaxArgsLen)
	}
	frame := make([]byte, 0, CommandHeaderLen+len(args))
	frame = append(frame, SyncSend, serial, byte(cmd), byte(len(args)))
	frame = append(frame, args...)
	return frame, nil
}

// ParseCommand decodes a send frame, returning the serial number, command,
// data bytes, and the number of bytes consumed. Used by the simulated
// camera and by round-trip tests.
func ParseCommand(raw []byte) (serial byte, cmd Command, args []byte, n int, err error) {
	if len(raw) < CommandHeaderLen {
		return 0, 0, nil, 0, fmt.Errorf("%w: %d bytes is shorter than a command header", ErrFraming, len(raw))
	}
	if raw[0] != SyncSend {
		return 0, 0, nil, 0, fmt.Errorf("%w: bad sync byte 0x%02x", ErrFraming, raw[0])
	}
	dataLen := int(raw[3])
	if len(raw) < CommandHeaderLen+dataLen {
		return 0, 0, nil, 0, fmt.Errorf("%w: declared %d data bytes, only %d available",
			ErrFraming, dataLen, len(raw)-CommandHeaderLen)
	}
	args = raw[CommandHeaderLen : CommandHeaderLen+dataLen]
	return raw[1], Command(raw[2]), args, CommandHeaderLen + dataLen, nil
}

// EncodeReply builds a reply frame. Only the simulated camera sends replies;
// the driver side decodes them.
func EncodeReply(serial byte, cmd Command, status byte, payload []byte) []byte {
	frame := make([]byte, 0, ReplyHeaderLen+len(payload))
	frame = append(frame, SyncReply, serial, byte(cmd), status, byte(len(payload)))
	frame = append(frame, payload...)
	return frame
}

// DecodeReply validates a raw reply against the command it should answer.
// Sync and length problems surface as ErrFraming, a reply for a different
// serial number or command as ErrMismatch, and a non-zero status byte as a
// StatusError. The returned payload aliases raw.
func DecodeReply(raw []byte, serial byte, cmd Command) (Reply, error) {
	if len(raw) < ReplyHeaderLen {
		return Reply{}, fmt.Errorf("%w: %d bytes is shorter than a reply header", ErrFraming, len(raw))
	}
	if raw[0] != SyncReply {
		return Reply{}, fmt.Errorf("%w: bad sync byte 0x%02x", ErrFraming, raw[0])
	}
	if raw[1] != serial {
		return Reply{}, fmt.Errorf("%w: serial number 0x%02x, expected 0x%02x", ErrMismatch, raw[1], serial)
	}
	if Command(raw[2]) != cmd {
		return Reply{}, fmt.Errorf("%w: answers command 0x%02x, expected 0x%02x", ErrMismatch, raw[2], byte(cmd))
	}
	if raw[3] != StatusOK {
		return Reply{}, StatusError(raw[3])
	}
	dataLen := int(raw[4])
	if len(raw) < ReplyHeaderLen+dataLen {
		return Reply{}, fmt.Errorf("%w: declared %d payload bytes, only %d available",
			ErrFraming, dataLen, len(raw)-ReplyHeaderLen)
	}
	return Reply{
		Serial:  raw[1],
		Cmd:     Command(raw[2]),
		Status:  raw[3],
		Payload: raw[ReplyHeaderLen : ReplyHeaderLen+dataLen],
	}, nil
}

// ChunkBracket returns the 5-byte header/footer that surrounds the image
// data in a CmdReadFBuf reply. Its data length byte is zero even though
// image bytes follow the header on the wire.
func ChunkBracket(serial byte) []byte {
	return EncodeReply(serial, CmdReadFBuf, StatusOK, nil)
}

// ParseChunk extracts n image bytes from a raw CmdReadFBuf reply of the form
// header(5) + data(n) + footer(5), verifying both brackets. The camera may
// legitimately return fewer bytes than requested; n is the count actually
// present, computed by the caller from the raw length.
func ParseChunk(raw []byte, serial byte) ([]byte, error) {
	if len(raw) < 2*ReplyHeaderLen {
		return nil, fmt.Errorf("%w: chunk reply of %d bytes cannot hold both brackets", ErrFraming, len(raw))
	}
	header := raw[:ReplyHeaderLen]
	footer := raw[len(raw)-ReplyHeaderLen:]
	if _, err := DecodeReply(header, serial, CmdReadFBuf); err != nil {
		return nil, fmt.Errorf("chunk header: %w", err)
	}
	if _, err := DecodeReply(footer, serial, CmdReadFBuf); err != nil {
		return nil, fmt.Errorf("chunk footer: %w", err)
	}
	return raw[ReplyHeaderLen : len(raw)-ReplyHeaderLen], nil
}

// ParseFrameLength decodes the 4-byte big-endian length payload of a
// CmdGetFBufLen reply.
func ParseFrameLength(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: frame length payload is %d bytes, expected 4", ErrFraming, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// ReadFBufArgs builds the 12-byte argument block of a CmdReadFBuf command:
// frame buffer type, transfer mode, 4-byte offset, 4-byte length, and the
// inter-byte delay in 0.01 ms units.
func ReadFBufArgs(offset, length uint32, delay uint16) []byte {
	args := make([]byte, 12)
	args[0] = CtrlStopCurrentFrame // current frame buffer
	args[1] = TransferModeMCU
	binary.BigEndian.PutUint32(args[2:6], offset)
	binary.BigEndian.PutUint32(args[6:10], length)
	binary.BigEndian.PutUint16(args[10:12], delay)
	return args
}

// SetPortArgs builds the CmdSetPort argument block for one of the supported
// baud rates.
func SetPortArgs(baud int) ([]byte, error) {
	divider, ok := baudDividers[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}
	return []byte{0x01, byte(divider >> 8), byte(divider)}, nil
}

// ImageSizeArgs builds the CmdWriteData argument block that sets chip
// register 0x19 to the given image size code.
func ImageSizeArgs(size byte) []byte {
	return []byte{0x04, 0x01, 0x00, 0x19, size}
}

// CompressionArgs builds the CmdWriteData argument block that sets the JPEG
// compression ratio register (chip register 0x12 0x04).
func CompressionArgs(ratio byte) []byte {
	return []byte{0x00, 0x01, 0x12, 0x04, ratio}
}

// ParseImageSize maps a human-readable resolution to its protocol code.
func ParseImageSize(s string) (byte, error) {
	switch s {
	case "640x480":
		return Size640x480, nil
	case "320x240":
		return Size320x240, nil
	case "160x120":
		return Size160x120, nil
	default:
		return 0, fmt.Errorf("unsupported image size %q (use 640x480, 320x240 or 160x120)", s)
	}
}

// SupportedBauds lists the baud rates the camera accepts, for validation
// and error messages.
func SupportedBauds() []int {
	return []int{9600, 19200, 38400, 57600, 115200}
}

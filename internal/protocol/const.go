package protocol

// Command is one of the VC0706 protocol opcodes. The command set is fixed
// by the chip; there is no open-ended dispatch.
type Command byte

const (
	CmdGenVersion         Command = 0x11
	CmdSetPort            Command = 0x24
	CmdSystemReset        Command = 0x26
	CmdReadData           Command = 0x30
	CmdWriteData          Command = 0x31
	CmdReadFBuf           Command = 0x32
	CmdGetFBufLen         Command = 0x34
	CmdFBufCtrl           Command = 0x36
	CmdCommMotionCtrl     Command = 0x37
	CmdCommMotionStatus   Command = 0x38
	CmdCommMotionDetected Command = 0x39
	CmdDownsizeCtrl       Command = 0x54
	CmdDownsizeStatus     Command = 0x55
)

const (
	// SyncSend starts every host-to-camera frame.
	SyncSend = 0x56
	// SyncReply starts every camera-to-host frame.
	SyncReply = 0x76
)

// Reply status codes (byte 3 of a reply frame).
const (
	StatusOK byte = iota
	StatusNotReceived
	StatusDataLengthError
	StatusDataFormatError
	StatusCommandUnavailable
	StatusCommandFailed
)

// Frame buffer control flags for CmdFBufCtrl.
const (
	CtrlStopCurrentFrame byte = 0x00
	CtrlStopNextFrame    byte = 0x01
	CtrlStepFrame        byte = 0x02
	CtrlResumeFrame      byte = 0x03
)

// TransferModeMCU selects MCU-paced transfer for frame buffer reads.
const TransferModeMCU = 0x0A

// Image size codes written to chip register 0x19.
const (
	Size640x480 byte = 0x00
	Size320x240 byte = 0x11
	Size160x120 byte = 0x22
)

// Baud rate divider values for CmdSetPort.
var baudDividers = map[int]uint16{
	9600:   0xAEC8,
	19200:  0x56E4,
	38400:  0x2AF2,
	57600:  0x1C1C,
	115200: 0x0DA6,
}

var statusText = map[byte]string{
	StatusOK:                 "ok",
	StatusNotReceived:        "command not received",
	StatusDataLengthError:    "data length error",
	StatusDataFormatError:    "data format error",
	StatusCommandUnavailable: "command cannot execute now",
	StatusCommandFailed:      "command executed incorrectly",
}

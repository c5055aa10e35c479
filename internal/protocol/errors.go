package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming indicates a reply that does not parse as a protocol frame
	// (wrong sync byte, truncated header, or inconsistent declared length).
	ErrFraming = errors.New("malformed reply frame")

	// ErrMismatch indicates a structurally valid reply that answers a
	// different command or serial number than the one in flight.
	ErrMismatch = errors.New("reply does not match command")
)

// StatusError is a reply whose status byte reports a camera-side failure.
type StatusError byte

func (e StatusError) Error() string {
	if text, ok := statusText[byte(e)]; ok {
		return fmt.Sprintf("camera status 0x%02x: %s", byte(e), text)
	}
	return fmt.Sprintf("camera status 0x%02x: unknown code", byte(e))
}

package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrTimeout indicates that a read did not complete within its deadline.
// Partial data may have been received; ReadFull reports how much.
var ErrTimeout = errors.New("serial read timeout")

// Port is the abstract byte transport to the camera. This allows plugging
// in a real UART implementation or a simulated camera for development on PC.
//
// Read follows the usual short-read contract: it may return fewer bytes
// than requested, and returns (0, nil) when nothing has arrived within the
// port's poll interval. Use ReadFull to wait for an exact byte count.
type Port interface {
	io.ReadWriteCloser

	// Drain discards any buffered input, such as the ASCII banner the
	// camera prints after a reset or a stale half-read reply.
	Drain() error
}

// pollInterval is the pause between empty reads while ReadFull waits for
// more bytes.
const pollInterval = 2 * time.Millisecond

// NewPort creates a camera port based on the chosen mode.
// If mock is true, returns a simulated VC0706 (for dev/test).
// If mock is false, opens the real UART device.
func NewPort(device string, baud int, mock bool) (Port, error) {
	if mock {
		debug.Info("Using simulated VC0706 port (development mode)")
		return NewSim(), nil
	}
	return Open(device, baud)
}

// ReadFull reads exactly len(buf) bytes from p, accumulating partial reads,
// and gives up once timeout has elapsed. It returns the number of bytes
// actually received; on deadline the error wraps ErrTimeout so callers can
// classify it with errors.Is.
func ReadFull(p Port, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(buf) {
		n, err := p.Read(buf[total:])
		total += n
		if err != nil && err != io.EOF {
			return total, fmt.Errorf("serial read: %w", err)
		}
		if total == len(buf) {
			break
		}
		if time.Now().After(deadline) {
			return total, fmt.Errorf("%w: %d/%d bytes after %v", ErrTimeout, total, len(buf), timeout)
		}
		if n == 0 {
			time.Sleep(pollInterval)
		}
	}
	debug.Serial("read", total)
	return total, nil
}

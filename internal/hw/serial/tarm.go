package serial

import (
	"fmt"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	tarm "github.com/tarm/serial"
)

// uartPort is the real implementation on top of a TTL UART device
// (e.g. /dev/serial0 on a Raspberry Pi), 8-N-1 framing.
type uartPort struct {
	port *tarm.Port
}

// uartPollTimeout is the per-read timeout configured on the OS port. Short
// on purpose: ReadFull loops over these polls until its own deadline.
const uartPollTimeout = 20 * time.Millisecond

// Open opens the UART device at the given baud rate.
func Open(device string, baud int) (Port, error) {
	debug.Info("Opening serial port %s at %d baud", device, baud)

	port, err := tarm.OpenPort(&tarm.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: uartPollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return &uartPort{port: port}, nil
}

func (u *uartPort) Read(p []byte) (int, error) {
	n, err := u.port.Read(p)
	if n > 0 {
		debug.Serial("uart read", n)
	}
	return n, err
}

func (u *uartPort) Write(p []byte) (int, error) {
	debug.Serial("uart write", len(p))
	return u.port.Write(p)
}

// Drain discards OS-buffered input and output.
func (u *uartPort) Drain() error {
	debug.Trace("uart drain")
	return u.port.Flush()
}

func (u *uartPort) Close() error {
	debug.Trace("uart close")
	return u.port.Close()
}

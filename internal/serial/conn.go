package serial

import (
	"io"
	"strings"
	"time"

	"github.com/juju/errors"
	"go.bug.st/serial"
)

// DefaultMonitorBaud is the rate the firmware logs at.
const DefaultMonitorBaud = 115200

// Conn is an open serial port. Read returns (0, nil) when no data arrived
// within the read timeout.
type Conn interface {
	io.Reader
	io.Closer
}

// Opener opens a named port at a baud rate.
type Opener func(name string, baud int) (Conn, error)

// Open opens a serial port with 8N1 framing and the given read timeout.
func Open(name string, baud int, readTimeout time.Duration) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s", name)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, errors.Annotatef(err, "setting read timeout on %s", name)
	}
	return port, nil
}

// LineBuffer accumulates raw serial bytes and hands back complete lines
// with line endings stripped.
type LineBuffer struct {
	pending strings.Builder
}

// Feed appends data and returns the lines it completed.
func (b *LineBuffer) Feed(data []byte) []string {
	var lines []string
	for _, c := range data {
		if c == '\n' {
			lines = append(lines, strings.TrimRight(b.pending.String(), "\r"))
			b.pending.Reset()
			continue
		}
		b.pending.WriteByte(c)
	}
	return lines
}

// Flush returns any partial line and clears the buffer.
func (b *LineBuffer) Flush() string {
	s := strings.TrimRight(b.pending.String(), "\r")
	b.pending.Reset()
	return s
}

// TimeoutOpener returns an Opener that opens ports with the given read
// timeout.
func TimeoutOpener(readTimeout time.Duration) Opener {
	return func(name string, baud int) (Conn, error) {
		return Open(name, baud, readTimeout)
	}
}

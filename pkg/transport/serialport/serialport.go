// Package serialport implements p2p.Transport over a real serial device,
// the concrete byte transport a physical robot's P2P endpoint runs over.
package serialport

import (
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// Burst pacing constants for a 115200-baud serial link: the UART's FIFO
// can absorb a burst of this many bytes before backpressure is needed,
// and each byte is then paced at this many nanoseconds, about three times
// the ~86.8us a byte takes to clock out at 115200 baud, leaving margin for
// the peer's own processing. The constants do not change with the baud
// rate passed to Open.
const (
	BurstMaxLength                   = 42
	BurstIngestionNanosecondsPerByte = 250000
)

// readTimeout bounds how long Read blocks waiting for the OS driver to
// deliver bytes, so it returns 0 promptly on an idle link rather than
// blocking forever.
const readTimeout = 20 * time.Millisecond

// Port wraps a go.bug.st/serial port as a p2p.Transport. Read never
// blocks past readTimeout, satisfying p2p.ByteReader's non-blocking
// contract, so callers can drive Port from a dedicated goroutine the way
// the packet stream's Run loops expect to be driven continuously and
// still notice a cancelled context promptly between calls.
type Port struct {
	port serial.Port
}

// Open opens name (e.g. "/dev/ttyUSB0") at baud, 8 data bits, no parity,
// one stop bit -- the framing the original firmware's UART is configured
// for.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return &Port{port: p}, nil
}

// Close closes the underlying serial port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Read implements p2p.ByteReader. It returns 0 both when readTimeout
// elapses with nothing available and when the underlying read fails; a
// read error is logged, since the stream state machines have no channel
// to propagate a hard transport failure and instead rely on their caller
// to notice the port misbehaving (e.g. via a supervising Runner).
func (p *Port) Read(buf []byte) int {
	n, err := p.port.Read(buf)
	if err != nil {
		glog.Warningf("serialport: read error: %v", err)
		return 0
	}
	return n
}

// Write implements p2p.ByteWriter.
func (p *Port) Write(buf []byte) int {
	n, err := p.port.Write(buf)
	if err != nil {
		glog.Warningf("serialport: write error: %v", err)
		return 0
	}
	return n
}

// BurstMaxLength implements p2p.ByteWriter.
func (p *Port) BurstMaxLength() int { return BurstMaxLength }

// BurstIngestionNanosecondsPerByte implements p2p.ByteWriter.
func (p *Port) BurstIngestionNanosecondsPerByte() int64 { return BurstIngestionNanosecondsPerByte }

package serialmux

import (
	"io"
	"time"
)

// TestableSerialPort implements SerialPorter with a controllable record
// source so that subscribers can be exercised without real hardware.
type TestableSerialPort struct {
	// ReadData is sent to subscribers on the interval
	ReadData []byte
	// Interval between emitted records
	Interval time.Duration
	// Writes captures everything written through SendCommand
	Writes io.Writer

	closed  chan struct{}
	pending []byte
}

// NewTestableSerialPort creates a mock serial port that repeats the provided
// record on the given interval until closed.
func NewTestableSerialPort(record []byte, interval time.Duration, writes io.Writer) *TestableSerialPort {
	if writes == nil {
		writes = io.Discard
	}
	return &TestableSerialPort{
		ReadData: record,
		Interval: interval,
		Writes:   writes,
		closed:   make(chan struct{}),
	}
}

// Read emits the configured record once per interval. Partial reads carry
// over to the next call so that small destination buffers still see every
// byte of the record.
func (p *TestableSerialPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case <-p.closed:
			return 0, io.EOF
		case <-time.After(p.Interval):
		}
		p.pending = append(p.pending, p.ReadData...)
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return p.Writes.Write(b)
}

func (p *TestableSerialPort) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

// NewMockSerialMux creates a SerialMux backed by a TestableSerialPort that
// replays the given record on the interval. Useful for development without a
// detector attached.
func NewMockSerialMux(record []byte, interval time.Duration) *SerialMux[*TestableSerialPort] {
	port := NewTestableSerialPort(record, interval, io.Discard)
	return NewSerialMux[*TestableSerialPort](port)
}

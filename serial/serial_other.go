//go:build !linux

package serial

import (
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// Port wraps a go.bug.st/serial port with the Linux driver's semantics.
type Port struct {
	port      bugst.Port
	config    Config
	done      chan struct{}
	closeOnce sync.Once
}

// Open opens a serial port using the provided Config.
func Open(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Port{
		port:   port,
		config: cfg,
		done:   make(chan struct{}),
	}, nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string {
	return p.config.Device
}

// Read reads whatever is available into b, returning ErrTimeout if nothing
// arrived within ReadTimeout.
func (p *Port) Read(b []byte) (int, error) {
	if p.isClosed() {
		return 0, ErrClosed
	}
	n, err := p.port.Read(b)
	if err != nil {
		if p.isClosed() {
			return n, ErrClosed
		}
		return n, err
	}
	// go.bug.st/serial reports a read timeout as (0, nil)
	if n == 0 && len(b) > 0 {
		return 0, ErrTimeout
	}
	return n, nil
}

// Write writes all of b, giving up once WriteTimeout has elapsed.
func (p *Port) Write(b []byte) (int, error) {
	deadline := time.Now().Add(p.config.WriteTimeout)
	written := 0
	for written < len(b) {
		if p.isClosed() {
			return written, ErrClosed
		}
		if time.Now().After(deadline) {
			return written, ErrTimeout
		}
		n, err := p.port.Write(b[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Flush blocks until all written data has been transmitted.
func (p *Port) Flush() error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.port.Drain()
}

// Discard drops both the unread input and the untransmitted output.
func (p *Port) Discard() error {
	if p.isClosed() {
		return ErrClosed
	}
	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	return p.port.ResetOutputBuffer()
}

// SetDTR asserts or clears the DTR control line.
func (p *Port) SetDTR(on bool) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.port.SetDTR(on)
}

// DSR reports whether the DSR status line is active.
func (p *Port) DSR() (bool, error) {
	if p.isClosed() {
		return false, ErrClosed
	}
	bits, err := p.port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	return bits.DSR, nil
}

// Close closes the serial port. Safe to call multiple times.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.port.Close()
	})
	return err
}

func (p *Port) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

package serial

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	DefaultBaudRate     = 115200
	DefaultReadTimeout  = 10 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second
)

var (
	// ErrTimeout is returned by Read when no byte arrived within ReadTimeout
	// and by Write when the port did not accept data within WriteTimeout.
	ErrTimeout = fmt.Errorf("serial: timeout: %w", os.ErrDeadlineExceeded)

	// ErrClosed is returned by operations on a port that has been closed.
	ErrClosed = errors.New("serial: port closed")
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device       string
	BaudRate     int           // default 115200
	ReadTimeout  time.Duration // default 10ms
	WriteTimeout time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

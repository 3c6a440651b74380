package sc64

import (
	"time"

	"github.com/rs/zerolog"
)

// Backend is one transport to the device.
type Backend interface {
	// SendCommand writes one complete command frame.
	SendCommand(cmd *Command) error

	// ProcessIncomingData reads frames until a Response completes, until one
	// Packet has been queued when want is DataTypePacket, or until no more
	// data is available when want is not DataTypeResponse. Every packet read
	// along the way is appended to packets.
	ProcessIncomingData(want DataType, packets *PacketQueue) (*Response, error)

	Close() error
}

const (
	DefaultReadTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultResetInterval = 10 * time.Millisecond
	DefaultResetRetries  = 100
	DefaultBaudRate      = 115200
)

type options struct {
	logger        zerolog.Logger
	metrics       *Metrics
	readTimeout   time.Duration
	writeTimeout  time.Duration
	pollInterval  time.Duration
	resetInterval time.Duration
	resetRetries  int
	baudRate      int
}

// Option configures a Link or a Backend.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:        zerolog.Nop(),
		readTimeout:   DefaultReadTimeout,
		writeTimeout:  DefaultWriteTimeout,
		pollInterval:  DefaultPollInterval,
		resetInterval: DefaultResetInterval,
		resetRetries:  DefaultResetRetries,
		baudRate:      DefaultBaudRate,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Frames are logged at trace level.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records link activity in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReadTimeout bounds how long reading a single frame field may take.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds how long writing a command frame may take.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithPollInterval sets how long one transport read waits before reporting
// that nothing is available.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithReset tunes the serial reset handshake: the pause between status
// polls and how many times a poll is retried.
func WithReset(interval time.Duration, retries int) Option {
	return func(o *options) {
		if interval > 0 {
			o.resetInterval = interval
		}
		if retries >= 0 {
			o.resetRetries = retries
		}
	}
}

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baudRate = baud
		}
	}
}

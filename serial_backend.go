package sc64

import (
	"fmt"
	"io"
	"time"

	"github.com/luhtfiimanal/go-sc64/serial"
)

// Port is the serial port a SerialBackend drives. Read must give up after a
// short interval and report a deadline error when nothing arrived.
type Port interface {
	io.ReadWriter
	Flush() error
	Discard() error
	SetDTR(on bool) error
	DSR() (bool, error)
	Close() error
}

// SerialBackend speaks the token based serial protocol.
type SerialBackend struct {
	port   Port
	reader frameReader
	opts   options
}

// OpenSerial opens device and resets the SC64 behind it.
func OpenSerial(device string, opts ...Option) (*SerialBackend, error) {
	o := newOptions(opts)
	port, err := serial.Open(serial.Config{
		Device:       device,
		BaudRate:     o.baudRate,
		ReadTimeout:  o.pollInterval,
		WriteTimeout: o.writeTimeout,
	})
	if err != nil {
		return nil, newError("SerialPort error", err)
	}
	backend, err := NewSerialBackend(port, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return backend, nil
}

// NewSerialBackend takes ownership of port and performs the reset
// handshake. No command can be sent before it completes.
func NewSerialBackend(port Port, opts ...Option) (*SerialBackend, error) {
	b := &SerialBackend{
		port: port,
		opts: newOptions(opts),
	}
	b.reader = frameReader{r: port, name: "serial", timeout: b.opts.readTimeout}
	if err := b.reset(); err != nil {
		return nil, err
	}
	b.opts.logger.Debug().Msg("serial device reset")
	return b, nil
}

// reset raises DTR and waits for the device to acknowledge with DSR, then
// drops DTR and waits for DSR to clear.
func (b *SerialBackend) reset() error {
	if err := b.port.SetDTR(true); err != nil {
		return ioError(err)
	}
	for n := 0; n <= b.opts.resetRetries; n++ {
		if err := b.port.Discard(); err != nil {
			return ioError(err)
		}
		time.Sleep(b.opts.resetInterval)
		dsr, err := b.port.DSR()
		if err != nil {
			return ioError(err)
		}
		if dsr {
			break
		}
		if n == b.opts.resetRetries {
			return ErrResetOn
		}
	}

	if err := b.port.SetDTR(false); err != nil {
		return ioError(err)
	}
	for n := 0; n <= b.opts.resetRetries; n++ {
		time.Sleep(b.opts.resetInterval)
		dsr, err := b.port.DSR()
		if err != nil {
			return ioError(err)
		}
		if !dsr {
			break
		}
		if n == b.opts.resetRetries {
			return ErrResetOff
		}
	}
	return nil
}

// SendCommand writes cmd and waits until it has been transmitted.
func (b *SerialBackend) SendCommand(cmd *Command) error {
	frame := AppendSerialCommand(make([]byte, 0, serialCommandHeaderLen+len(cmd.Data)), cmd)
	if _, err := b.port.Write(frame); err != nil {
		return ioError(err)
	}
	if err := b.port.Flush(); err != nil {
		return ioError(err)
	}
	b.opts.metrics.frameSent(DataTypeCommand)
	b.opts.logger.Trace().Uint8("id", cmd.ID).Int("length", len(cmd.Data)).Msg("serial command sent")
	return nil
}

// ProcessIncomingData reads CMP, ERR and PKT frames as described by Backend.
func (b *SerialBackend) ProcessIncomingData(want DataType, packets *PacketQueue) (*Response, error) {
	block := want == DataTypeResponse
	for {
		header, ok, err := b.reader.readHeader(block)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		var isPacket, isError bool
		switch string(header[0:3]) {
		case serialTokenComplete:
		case serialTokenPacket:
			isPacket = true
		case serialTokenError:
			isError = true
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownToken, header[0:3])
		}
		id := header[3]

		data, err := b.reader.readPayload()
		if err != nil {
			return nil, err
		}

		if !isPacket {
			b.opts.metrics.frameReceived(DataTypeResponse)
			b.opts.logger.Trace().Uint8("id", id).Bool("error", isError).Int("length", len(data)).Msg("serial response received")
			return &Response{ID: id, Data: data, Error: isError}, nil
		}

		packets.Push(Packet{ID: id, Data: data})
		b.opts.metrics.frameReceived(DataTypePacket)
		b.opts.logger.Trace().Uint8("id", id).Int("length", len(data)).Msg("serial packet received")
		if want == DataTypePacket {
			return nil, nil
		}
	}
}

// Close releases the serial port.
func (b *SerialBackend) Close() error {
	return b.port.Close()
}

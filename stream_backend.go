package sc64

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// StreamBackend speaks the tagged stream protocol over a network
// connection, usually to a bridge that owns the actual serial device.
type StreamBackend struct {
	conn   net.Conn
	reader frameReader
	opts   options
}

// DialStream connects to a bridge at address (host:port). There is no
// handshake: the connection is usable as soon as it is established.
func DialStream(ctx context.Context, address string, opts ...Option) (*StreamBackend, error) {
	o := newOptions(opts)
	dialer := net.Dialer{Timeout: o.writeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, newError(fmt.Sprintf("couldn't connect to [%s]", address), err)
	}
	return NewStreamBackend(conn, opts...), nil
}

// NewStreamBackend takes ownership of conn.
func NewStreamBackend(conn net.Conn, opts ...Option) *StreamBackend {
	o := newOptions(opts)
	return &StreamBackend{
		conn:   conn,
		reader: newStreamReader(conn, o),
		opts:   o,
	}
}

// SendCommand writes cmd as a single frame.
func (b *StreamBackend) SendCommand(cmd *Command) error {
	frame := AppendStreamCommand(make([]byte, 0, streamCommandHeaderLen+len(cmd.Data)), cmd)
	if err := writeFrame(b.conn, b.opts.writeTimeout, frame); err != nil {
		return err
	}
	b.opts.metrics.frameSent(DataTypeCommand)
	b.opts.logger.Trace().Uint8("id", cmd.ID).Int("length", len(cmd.Data)).Msg("stream command sent")
	return nil
}

// ProcessIncomingData reads tagged frames as described by Backend. Keep-alives
// are consumed silently.
func (b *StreamBackend) ProcessIncomingData(want DataType, packets *PacketQueue) (*Response, error) {
	block := want == DataTypeResponse
	for {
		header, ok, err := b.reader.readHeader(block)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		kind, err := ParseDataType(binary.BigEndian.Uint32(header[:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedDataType, err)
		}

		switch kind {
		case DataTypeResponse:
			var info [2]byte
			if err := b.reader.readExact(info[:]); err != nil {
				return nil, err
			}
			data, err := b.reader.readPayload()
			if err != nil {
				return nil, err
			}
			b.opts.metrics.frameReceived(DataTypeResponse)
			b.opts.logger.Trace().Uint8("id", info[0]).Bool("error", info[1] != 0).Int("length", len(data)).Msg("stream response received")
			return &Response{ID: info[0], Error: info[1] != 0, Data: data}, nil

		case DataTypePacket:
			var info [1]byte
			if err := b.reader.readExact(info[:]); err != nil {
				return nil, err
			}
			data, err := b.reader.readPayload()
			if err != nil {
				return nil, err
			}
			packets.Push(Packet{ID: info[0], Data: data})
			b.opts.metrics.frameReceived(DataTypePacket)
			b.opts.logger.Trace().Uint8("id", info[0]).Int("length", len(data)).Msg("stream packet received")
			if want == DataTypePacket {
				return nil, nil
			}

		case DataTypeKeepAlive:
			b.opts.metrics.frameReceived(DataTypeKeepAlive)

		default:
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedDataType, kind)
		}
	}
}

// Close closes the connection.
func (b *StreamBackend) Close() error {
	return b.conn.Close()
}

// StreamDevice is the device end of a stream connection. A bridge uses it
// to accept commands from a remote host and to send responses, packets
// and keep-alives back.
type StreamDevice struct {
	conn   net.Conn
	reader frameReader
	opts   options
}

// NewStreamDevice takes ownership of conn.
func NewStreamDevice(conn net.Conn, opts ...Option) *StreamDevice {
	o := newOptions(opts)
	return &StreamDevice{
		conn:   conn,
		reader: newStreamReader(conn, o),
		opts:   o,
	}
}

// ReceiveCommand reads the next command frame. When block is false it
// returns nil if no frame has started arriving. Keep-alives are skipped.
func (d *StreamDevice) ReceiveCommand(block bool) (*Command, error) {
	for {
		header, ok, err := d.reader.readHeader(block)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		kind, err := ParseDataType(binary.BigEndian.Uint32(header[:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedDataType, err)
		}

		switch kind {
		case DataTypeCommand:
			var info [9]byte
			if err := d.reader.readExact(info[:]); err != nil {
				return nil, err
			}
			data, err := d.reader.readPayload()
			if err != nil {
				return nil, err
			}
			return &Command{
				ID: info[0],
				Args: [2]uint32{
					binary.BigEndian.Uint32(info[1:5]),
					binary.BigEndian.Uint32(info[5:9]),
				},
				Data: data,
			}, nil

		case DataTypeKeepAlive:

		default:
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedDataType, kind)
		}
	}
}

// SendResponse writes r as a single frame.
func (d *StreamDevice) SendResponse(r *Response) error {
	return writeFrame(d.conn, d.opts.writeTimeout, AppendStreamResponse(nil, r))
}

// SendPacket writes p as a single frame.
func (d *StreamDevice) SendPacket(p *Packet) error {
	return writeFrame(d.conn, d.opts.writeTimeout, AppendStreamPacket(nil, p))
}

// SendKeepAlive tells the host the connection is still alive.
func (d *StreamDevice) SendKeepAlive() error {
	return writeFrame(d.conn, d.opts.writeTimeout, AppendStreamKeepAlive(nil))
}

// Close closes the connection.
func (d *StreamDevice) Close() error {
	return d.conn.Close()
}

func newStreamReader(conn net.Conn, o options) frameReader {
	return frameReader{
		r:       bufio.NewReader(deadlineReader{conn: conn, interval: o.pollInterval}),
		name:    "stream",
		timeout: o.readTimeout,
	}
}

// deadlineReader turns every read into a poll bounded by interval.
type deadlineReader struct {
	conn     net.Conn
	interval time.Duration
}

func (d deadlineReader) Read(b []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.interval)); err != nil {
		return 0, err
	}
	return d.conn.Read(b)
}

func writeFrame(conn net.Conn, timeout time.Duration, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return ioError(err)
	}
	if _, err := conn.Write(frame); err != nil {
		return ioError(err)
	}
	return nil
}

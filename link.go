package sc64

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Link executes commands on the device and collects the packets it sends.
type Link struct {
	backend Backend
	packets PacketQueue
	id      uuid.UUID
	log     zerolog.Logger
	metrics *Metrics
}

// New returns a Link that owns backend.
func New(backend Backend, opts ...Option) *Link {
	o := newOptions(opts)
	id := uuid.New()
	return &Link{
		backend: backend,
		id:      id,
		log:     o.logger.With().Str("link", id.String()).Logger(),
		metrics: o.metrics,
	}
}

// NewLocal opens a Link to a device attached to the serial port device.
func NewLocal(device string, opts ...Option) (*Link, error) {
	opts = withLinkLogger(opts, "serial", device)
	backend, err := OpenSerial(device, opts...)
	if err != nil {
		return nil, err
	}
	return New(backend, opts...), nil
}

// NewRemote opens a Link to a device exposed by a bridge at address.
func NewRemote(ctx context.Context, address string, opts ...Option) (*Link, error) {
	opts = withLinkLogger(opts, "stream", address)
	backend, err := DialStream(ctx, address, opts...)
	if err != nil {
		return nil, err
	}
	return New(backend, opts...), nil
}

func withLinkLogger(opts []Option, transport, endpoint string) []Option {
	o := newOptions(opts)
	logger := o.logger.With().Str("transport", transport).Str("endpoint", endpoint).Logger()
	return append(opts, WithLogger(logger))
}

// ID identifies the link in logs.
func (l *Link) ID() uuid.UUID {
	return l.id
}

// ExecuteCommand sends cmd and returns the response payload. A response
// flagged as an error fails with ErrCommandFailed.
func (l *Link) ExecuteCommand(cmd *Command) ([]byte, error) {
	return l.ExecuteCommandRaw(cmd, false, false)
}

// ExecuteCommandRaw sends cmd. With noResponse set it returns right after
// sending. Otherwise it waits for the response, which must carry cmd's ID.
// With ignoreError set an error flagged response is returned as is.
func (l *Link) ExecuteCommandRaw(cmd *Command, noResponse, ignoreError bool) ([]byte, error) {
	if err := l.backend.SendCommand(cmd); err != nil {
		l.metrics.commandError("send")
		return nil, err
	}
	if noResponse {
		return []byte{}, nil
	}
	response, err := l.receiveResponse()
	if err != nil {
		l.metrics.commandError("receive")
		return nil, err
	}
	if response.ID != cmd.ID {
		l.metrics.commandError("id_mismatch")
		l.log.Warn().Uint8("sent", cmd.ID).Uint8("received", response.ID).Msg("command response id mismatch")
		return nil, ErrIDMismatch
	}
	if response.Error && !ignoreError {
		l.metrics.commandError("device")
		return nil, ErrCommandFailed
	}
	return response.Data, nil
}

func (l *Link) receiveResponse() (*Response, error) {
	response, err := l.backend.ProcessIncomingData(DataTypeResponse, &l.packets)
	l.metrics.setQueueDepth(l.packets.Len())
	if err != nil {
		return nil, newError("command response", err)
	}
	if response == nil {
		return nil, ErrNoResponse
	}
	return response, nil
}

// ReceivePacket returns the oldest queued packet. With an empty queue it
// polls the transport once without blocking and returns nil if no packet is
// available.
func (l *Link) ReceivePacket() (*Packet, error) {
	if l.packets.Len() == 0 {
		response, err := l.backend.ProcessIncomingData(DataTypePacket, &l.packets)
		if err != nil {
			return nil, err
		}
		if response != nil {
			l.log.Error().Uint8("id", response.ID).Msg("response outside of a command")
			return nil, ErrUnexpectedResponse
		}
	}
	packet, ok := l.packets.Pop()
	l.metrics.setQueueDepth(l.packets.Len())
	if !ok {
		return nil, nil
	}
	return &packet, nil
}

// PendingPackets returns the number of packets waiting in the queue.
func (l *Link) PendingPackets() int {
	return l.packets.Len()
}

// Close releases the backend. Queued packets are dropped.
func (l *Link) Close() error {
	l.log.Debug().Int("dropped", l.packets.Len()).Msg("link closed")
	l.packets = PacketQueue{}
	l.metrics.setQueueDepth(0)
	return l.backend.Close()
}

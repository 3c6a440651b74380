package sc64

import "fmt"

// DataType tags every frame on the stream transport.
type DataType uint32

const (
	DataTypeCommand   DataType = 1
	DataTypeResponse  DataType = 2
	DataTypePacket    DataType = 3
	DataTypeKeepAlive DataType = 0xCAFEBEEF
)

// ParseDataType decodes a wire tag. Any value outside the four known kinds
// is rejected.
func ParseDataType(v uint32) (DataType, error) {
	switch t := DataType(v); t {
	case DataTypeCommand, DataTypeResponse, DataTypePacket, DataTypeKeepAlive:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: 0x%08X", ErrUnknownDataType, v)
	}
}

func (t DataType) String() string {
	switch t {
	case DataTypeCommand:
		return "command"
	case DataTypeResponse:
		return "response"
	case DataTypePacket:
		return "packet"
	case DataTypeKeepAlive:
		return "keepalive"
	default:
		return fmt.Sprintf("unknown(0x%08X)", uint32(t))
	}
}

// Command is a request for the device. It must not be modified after it
// has been handed to a Link.
type Command struct {
	ID   uint8
	Args [2]uint32
	Data []byte
}

// Response is the device's reply to exactly one Command.
type Response struct {
	ID    uint8
	Data  []byte
	Error bool
}

// Packet is data the device sends on its own.
type Packet struct {
	ID   uint8
	Data []byte
}

// PacketQueue is a FIFO of packets in arrival order. The zero value is an
// empty queue.
type PacketQueue struct {
	items []Packet
}

// Push appends p to the back of the queue.
func (q *PacketQueue) Push(p Packet) {
	q.items = append(q.items, p)
}

// Pop removes and returns the oldest packet.
func (q *PacketQueue) Pop() (Packet, bool) {
	if len(q.items) == 0 {
		return Packet{}, false
	}
	p := q.items[0]
	q.items[0] = Packet{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return p, true
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int {
	return len(q.items)
}

package sc64

import (
	"encoding/binary"
	"fmt"
)

// Serial transport tokens.
const (
	serialTokenCommand  = "CMD"
	serialTokenComplete = "CMP"
	serialTokenPacket   = "PKT"
	serialTokenError    = "ERR"
)

const (
	serialCommandHeaderLen = 3 + 1 + 4 + 4
	streamCommandHeaderLen = 4 + 1 + 4 + 4 + 4
)

// AppendSerialCommand appends the serial encoding of cmd to b:
// "CMD", id, arg0, arg1 (big endian) followed by the raw payload.
func AppendSerialCommand(b []byte, cmd *Command) []byte {
	b = append(b, serialTokenCommand...)
	b = append(b, cmd.ID)
	b = binary.BigEndian.AppendUint32(b, cmd.Args[0])
	b = binary.BigEndian.AppendUint32(b, cmd.Args[1])
	return append(b, cmd.Data...)
}

// ParseSerialCommand decodes one complete serial command frame. Everything
// after the arguments is the payload.
func ParseSerialCommand(frame []byte) (Command, error) {
	if len(frame) < serialCommandHeaderLen {
		return Command{}, fmt.Errorf("%w: serial command frame is %d bytes", ErrUnexpectedEOF, len(frame))
	}
	if string(frame[0:3]) != serialTokenCommand {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownToken, frame[0:3])
	}
	cmd := Command{
		ID: frame[3],
		Args: [2]uint32{
			binary.BigEndian.Uint32(frame[4:8]),
			binary.BigEndian.Uint32(frame[8:12]),
		},
	}
	cmd.Data = append([]byte{}, frame[serialCommandHeaderLen:]...)
	return cmd, nil
}

// AppendSerialResponse appends a device-side serial response frame to b.
func AppendSerialResponse(b []byte, r *Response) []byte {
	token := serialTokenComplete
	if r.Error {
		token = serialTokenError
	}
	return appendSerialFrame(b, token, r.ID, r.Data)
}

// AppendSerialPacket appends a device-side serial packet frame to b.
func AppendSerialPacket(b []byte, p *Packet) []byte {
	return appendSerialFrame(b, serialTokenPacket, p.ID, p.Data)
}

func appendSerialFrame(b []byte, token string, id uint8, data []byte) []byte {
	b = append(b, token...)
	b = append(b, id)
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

// AppendStreamCommand appends the stream encoding of cmd to b:
// tag, id, arg0, arg1, payload length and payload.
func AppendStreamCommand(b []byte, cmd *Command) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(DataTypeCommand))
	b = append(b, cmd.ID)
	b = binary.BigEndian.AppendUint32(b, cmd.Args[0])
	b = binary.BigEndian.AppendUint32(b, cmd.Args[1])
	b = binary.BigEndian.AppendUint32(b, uint32(len(cmd.Data)))
	return append(b, cmd.Data...)
}

// AppendStreamResponse appends a stream response frame to b.
func AppendStreamResponse(b []byte, r *Response) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(DataTypeResponse))
	b = append(b, r.ID, boolByte(r.Error))
	b = binary.BigEndian.AppendUint32(b, uint32(len(r.Data)))
	return append(b, r.Data...)
}

// AppendStreamPacket appends a stream packet frame to b.
func AppendStreamPacket(b []byte, p *Packet) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(DataTypePacket))
	b = append(b, p.ID)
	b = binary.BigEndian.AppendUint32(b, uint32(len(p.Data)))
	return append(b, p.Data...)
}

// AppendStreamKeepAlive appends a keep-alive frame, which is just the tag.
func AppendStreamKeepAlive(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(DataTypeKeepAlive))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

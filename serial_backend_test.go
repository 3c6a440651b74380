package sc64

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory serial port. Reads return os.ErrDeadlineExceeded
// when nothing is buffered, like the real port after its poll interval.
type fakePort struct {
	mu       sync.Mutex
	rx       bytes.Buffer // device -> host
	tx       bytes.Buffer // host -> device
	chunk    int          // max bytes per Read, 0 = unlimited
	dtr      bool
	dsr      func(dtr bool) bool
	dsrPolls int
	discards int
	flushes  int
	closed   bool
	readErr  error
	writeErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.rx.Len() == 0 {
		err := p.readErr
		p.mu.Unlock()
		if err != nil {
			return 0, err
		}
		time.Sleep(time.Millisecond)
		return 0, os.ErrDeadlineExceeded
	}
	defer p.mu.Unlock()
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	return p.rx.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.tx.Write(b)
}

func (p *fakePort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *fakePort) Discard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discards++
	p.rx.Reset()
	return nil
}

func (p *fakePort) SetDTR(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dtr = on
	return nil
}

func (p *fakePort) DSR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dsrPolls++
	if p.dsr != nil {
		return p.dsr(p.dtr), nil
	}
	return p.dtr, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) feed(frames ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range frames {
		p.rx.Write(f)
	}
}

func testSerialOptions(extra ...Option) []Option {
	return append([]Option{
		WithReset(time.Microsecond, DefaultResetRetries),
		WithReadTimeout(500 * time.Millisecond),
	}, extra...)
}

func newTestSerial(t *testing.T, port *fakePort, extra ...Option) *SerialBackend {
	t.Helper()
	backend, err := NewSerialBackend(port, testSerialOptions(extra...)...)
	require.NoError(t, err)
	return backend
}

func TestSerialReset_Acknowledged(t *testing.T) {
	port := &fakePort{}
	newTestSerial(t, port)

	require.False(t, port.dtr)
	require.Equal(t, 2, port.dsrPolls)
	require.Equal(t, 1, port.discards)
}

func TestSerialReset_NeverOn(t *testing.T) {
	port := &fakePort{dsr: func(bool) bool { return false }}

	_, err := NewSerialBackend(port, testSerialOptions()...)
	require.ErrorIs(t, err, ErrResetOn)
	require.NotErrorIs(t, err, ErrResetOff)
	require.Equal(t, DefaultResetRetries+1, port.dsrPolls)
	require.Equal(t, DefaultResetRetries+1, port.discards)
}

func TestSerialReset_NeverOff(t *testing.T) {
	port := &fakePort{dsr: func(bool) bool { return true }}

	_, err := NewSerialBackend(port, testSerialOptions()...)
	require.ErrorIs(t, err, ErrResetOff)
	require.NotErrorIs(t, err, ErrResetOn)
	require.Equal(t, 1+DefaultResetRetries+1, port.dsrPolls)
	require.Equal(t, 1, port.discards)
}

func TestSerialReset_SlowAcknowledge(t *testing.T) {
	polls := 0
	port := &fakePort{}
	port.dsr = func(dtr bool) bool {
		polls++
		return dtr && polls > 5
	}
	newTestSerial(t, port)
	require.Equal(t, 6, port.discards)
}

func TestSerialSendCommand(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)

	cmd := &Command{ID: 'm', Args: [2]uint32{0x10000000, 4}, Data: []byte{1, 2, 3, 4}}
	require.NoError(t, backend.SendCommand(cmd))
	require.Equal(t, AppendSerialCommand(nil, cmd), port.tx.Bytes())
	require.Equal(t, 1, port.flushes)

	got, err := ParseSerialCommand(port.tx.Bytes())
	require.NoError(t, err)
	require.Equal(t, *cmd, got)
}

func TestSerialSendCommand_WriteError(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.writeErr = errors.New("cable pulled")

	err := backend.SendCommand(&Command{ID: 'v'})
	require.Error(t, err)
	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, "IO error", linkErr.Description)
	require.Zero(t, port.flushes)
}

func TestSerialProcess_Response(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.feed(AppendSerialResponse(nil, &Response{ID: 'v', Data: []byte("SCv2")}))

	var queue PacketQueue
	resp, err := backend.ProcessIncomingData(DataTypeResponse, &queue)
	require.NoError(t, err)
	require.Equal(t, &Response{ID: 'v', Data: []byte("SCv2")}, resp)
	require.Zero(t, queue.Len())
}

func TestSerialProcess_ErrorResponse(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.feed(AppendSerialResponse(nil, &Response{ID: 'v', Error: true, Data: []byte{1}}))

	var queue PacketQueue
	resp, err := backend.ProcessIncomingData(DataTypeResponse, &queue)
	require.NoError(t, err)
	require.True(t, resp.Error)
	require.Equal(t, []byte{1}, resp.Data)
}

func TestSerialProcess_PacketsBeforeResponse(t *testing.T) {
	port := &fakePort{chunk: 3}
	backend := newTestSerial(t, port)
	port.feed(
		AppendSerialPacket(nil, &Packet{ID: 'B', Data: []byte("first")}),
		AppendSerialPacket(nil, &Packet{ID: 'D', Data: nil}),
		AppendSerialResponse(nil, &Response{ID: 'c', Data: []byte{7}}),
	)

	var queue PacketQueue
	resp, err := backend.ProcessIncomingData(DataTypeResponse, &queue)
	require.NoError(t, err)
	require.Equal(t, uint8('c'), resp.ID)
	require.Equal(t, 2, queue.Len())

	first, _ := queue.Pop()
	require.Equal(t, uint8('B'), first.ID)
	require.Equal(t, []byte("first"), first.Data)
	second, _ := queue.Pop()
	require.Equal(t, uint8('D'), second.ID)
	require.Empty(t, second.Data)
}

func TestSerialProcess_StopsAfterOnePacket(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.feed(
		AppendSerialPacket(nil, &Packet{ID: 1}),
		AppendSerialPacket(nil, &Packet{ID: 2}),
	)

	var queue PacketQueue
	resp, err := backend.ProcessIncomingData(DataTypePacket, &queue)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, 1, queue.Len())

	resp, err = backend.ProcessIncomingData(DataTypePacket, &queue)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, 2, queue.Len())
}

func TestSerialProcess_NothingAvailable(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)

	var queue PacketQueue
	start := time.Now()
	resp, err := backend.ProcessIncomingData(DataTypePacket, &queue)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Zero(t, queue.Len())
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSerialProcess_NonBlockingDrainsPackets(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.feed(
		AppendSerialPacket(nil, &Packet{ID: 1}),
		AppendSerialPacket(nil, &Packet{ID: 2}),
	)

	var queue PacketQueue
	resp, err := backend.ProcessIncomingData(DataTypeKeepAlive, &queue)
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, 2, queue.Len())
}

func TestSerialProcess_UnknownToken(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.feed([]byte("XYZ\x01\x00\x00\x00\x00"))

	var queue PacketQueue
	_, err := backend.ProcessIncomingData(DataTypeResponse, &queue)
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestSerialProcess_ReadTimeout(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port, WithReadTimeout(50*time.Millisecond))
	// header and half of the length field
	port.feed([]byte{'C', 'M', 'P', 1, 0, 0})

	var queue PacketQueue
	start := time.Now()
	_, err := backend.ProcessIncomingData(DataTypePacket, &queue)
	require.ErrorIs(t, err, ErrReadTimeout)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Contains(t, err.Error(), "serial")
}

func TestSerialProcess_BlockingHeaderTimeout(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port, WithReadTimeout(30*time.Millisecond))

	var queue PacketQueue
	_, err := backend.ProcessIncomingData(DataTypeResponse, &queue)
	require.ErrorIs(t, err, ErrReadTimeout)
}

func TestSerialProcess_FatalReadError(t *testing.T) {
	port := &fakePort{}
	backend := newTestSerial(t, port)
	port.readErr = errors.New("input/output error")

	var queue PacketQueue
	_, err := backend.ProcessIncomingData(DataTypePacket, &queue)
	require.Error(t, err)
	require.Contains(t, err.Error(), "input/output error")
}

func TestSerialLink_ExecuteCommand(t *testing.T) {
	port := &fakePort{}
	link := New(newTestSerial(t, port))
	port.feed(
		AppendSerialPacket(nil, &Packet{ID: 'U', Data: []byte("log")}),
		AppendSerialResponse(nil, &Response{ID: 'i', Data: []byte{0xDE, 0xAD}}),
	)

	data, err := link.ExecuteCommand(&Command{ID: 'i'})
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD}, data)
	require.Equal(t, 1, link.PendingPackets())

	packet, err := link.ReceivePacket()
	require.NoError(t, err)
	require.Equal(t, &Packet{ID: 'U', Data: []byte("log")}, packet)

	packet, err = link.ReceivePacket()
	require.NoError(t, err)
	require.Nil(t, packet)

	require.NoError(t, link.Close())
	require.True(t, port.closed)
}

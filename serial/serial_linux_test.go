//go:build linux

package serial

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPair(t *testing.T) (*os.File, *Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := Open(Config{
		Device:   slave.Name(),
		BaudRate: 115200,
	})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, port
}

// readFull keeps reading until want bytes arrived or the deadline passed.
func readFull(t *testing.T, port *Port, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, want)
	deadline := time.Now().Add(time.Second)
	for len(out) < want && time.Now().Before(deadline) {
		n, err := port.Read(buf[:want-len(out)])
		if errors.Is(err, ErrTimeout) {
			continue
		}
		require.NoError(t, err)
		out = append(out, buf[:n]...)
	}
	return out
}

func TestPort_Defaults(t *testing.T) {
	cfg := Config{Device: "/dev/null"}.withDefaults()
	require.Equal(t, DefaultBaudRate, cfg.BaudRate)
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

func TestPort_BasicRead(t *testing.T) {
	master, port := openPair(t)

	_, err := master.Write([]byte("hello"))
	require.NoError(t, err)

	require.Equal(t, []byte("hello"), readFull(t, port, 5))
}

func TestPort_ReadTimeout(t *testing.T) {
	_, port := openPair(t)

	start := time.Now()
	n, err := port.Read(make([]byte, 4))
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPort_Write(t *testing.T) {
	master, port := openPair(t)

	payload := []byte{'C', 'M', 'D', 0x01, 0x00, 0xFF}
	n, err := port.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, port.Flush())

	buf := make([]byte, len(payload))
	got := 0
	for got < len(buf) {
		m, err := master.Read(buf[got:])
		require.NoError(t, err)
		got += m
	}
	require.Equal(t, payload, buf)
}

func TestPort_Discard(t *testing.T) {
	_, port := openPair(t)
	require.NoError(t, port.Discard())
}

// requireModemResult accepts success or the errno a tty without modem
// lines (such as a pty) reports for the modem ioctls.
func requireModemResult(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	require.Truef(t, errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL),
		"unexpected modem ioctl error: %v", err)
}

func TestPort_ModemLines(t *testing.T) {
	_, port := openPair(t)

	requireModemResult(t, port.SetDTR(true))
	requireModemResult(t, port.SetDTR(false))

	dsr, err := port.DSR()
	requireModemResult(t, err)
	if err != nil {
		require.False(t, dsr)
	}

	// The port stays usable whatever the modem ioctls returned
	require.NoError(t, port.Discard())
	require.NoError(t, port.Flush())
}

func TestPort_Killability(t *testing.T) {
	_, port := openPair(t)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 8)
		for {
			_, err := port.Read(buf)
			if errors.Is(err, ErrTimeout) {
				continue
			}
			done <- err
			return
		}
	}()

	// Give the goroutine a chance to block
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for Read to return after Close")
	}

	// Should be a no-op due to closeOnce
	require.NoError(t, port.Close())

	_, err := port.Write([]byte{1})
	require.ErrorIs(t, err, ErrClosed)
	_, err = port.DSR()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, port.SetDTR(true), ErrClosed)
}

func TestPort_ErrorPropagation(t *testing.T) {
	master, port := openPair(t)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		_, err = port.Read(make([]byte, 8))
		if !errors.Is(err, ErrTimeout) {
			break
		}
	}
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTimeout)
}

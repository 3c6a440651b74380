// Package serial provides a minimal serial port driver for talking to
// USB-attached embedded devices with short, poll-based reads.
//
// On Linux the port is driven through raw termios ioctls and poll(2), without
// any buffering between the caller and the file descriptor. Other platforms
// use go.bug.st/serial behind the same API.
//
// Features:
//   - Raw 8N1 mode at a fixed baud rate
//   - Reads that give up after a short ReadTimeout and report ErrTimeout,
//     so callers can poll without stalling
//   - Writes bounded by WriteTimeout
//   - DTR control and DSR status for reset handshakes
//   - Close unblocks pending reads (self-pipe on Linux)
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	buf := make([]byte, 64)
//	n, err := port.Read(buf)
//	if errors.Is(err, serial.ErrTimeout) {
//	    // nothing arrived yet
//	}
package serial

package sc64

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"syscall"
	"time"
)

// frameReader reads fixed-size fields from a transport that gives up on
// reads after a short poll interval.
type frameReader struct {
	r       io.Reader
	name    string
	timeout time.Duration
}

// readData fills buf completely. When block is false and nothing at all has
// arrived yet it returns false instead of waiting. Once the first byte of a
// field has been read the field is always read to completion or fails.
func (f *frameReader) readData(buf []byte, block bool) (bool, error) {
	start := time.Now()
	position := 0
	for position < len(buf) {
		if time.Since(start) > f.timeout {
			return false, newError(f.name, ErrReadTimeout)
		}
		n, err := f.r.Read(buf[position:])
		position += n
		switch {
		case err == nil && n > 0:
		case err == nil, isTransient(err):
			// (0, nil) is how some serial drivers report a read timeout
			if !block && position == 0 {
				return false, nil
			}
		case errors.Is(err, io.EOF):
			if position == len(buf) {
				return true, nil
			}
			return false, newError(f.name, ErrUnexpectedEOF)
		default:
			return false, ioError(err)
		}
	}
	return true, nil
}

func (f *frameReader) readExact(buf []byte) error {
	ok, err := f.readData(buf, true)
	if err != nil {
		return err
	}
	if !ok {
		return newError(f.name, ErrUnexpectedEOF)
	}
	return nil
}

func (f *frameReader) readHeader(block bool) ([4]byte, bool, error) {
	var header [4]byte
	ok, err := f.readData(header[:], block)
	return header, ok, err
}

func (f *frameReader) readUint32() (uint32, error) {
	var buf [4]byte
	if err := f.readExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// readPayload reads a big endian length followed by that many bytes.
func (f *frameReader) readPayload() ([]byte, error) {
	length, err := f.readUint32()
	if err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if err := f.readExact(data); err != nil {
		return nil, err
	}
	return data, nil
}

// isTransient reports whether err only means "no data right now". Anything
// else, including a closed connection, is a real failure.
func isTransient(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN)
}

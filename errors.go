package sc64

import "errors"

// Link failures. Returned errors wrap one of these where applicable, so
// callers can match them with errors.Is.
var (
	ErrReadTimeout        = errors.New("read timeout")
	ErrUnexpectedEOF      = errors.New("unexpected end of data")
	ErrUnknownToken       = errors.New("unknown response token")
	ErrUnknownDataType    = errors.New("unknown data type")
	ErrUnexpectedDataType = errors.New("unexpected payload data type received")
	ErrUnexpectedResponse = errors.New("unexpected command response in data stream")
	ErrIDMismatch         = errors.New("command response ID didn't match")
	ErrCommandFailed      = errors.New("command response error")
	ErrNoResponse         = errors.New("no response was received")
	ErrResetOn            = errors.New("couldn't reset SC64 device (on)")
	ErrResetOff           = errors.New("couldn't reset SC64 device (off)")
	ErrNoDevices          = errors.New("no SC64 devices found")
)

// Error is a failure with a human readable description, optionally caused
// by a lower level error.
type Error struct {
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Description
	}
	return e.Description + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(description string, err error) *Error {
	return &Error{Description: description, Err: err}
}

func ioError(err error) *Error {
	return newError("IO error", err)
}

package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the user declined microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means the capture device could not be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrNotRecording means stop was requested with no active capture.
	ErrNotRecording = errors.New("not recording")
	// ErrDeviceFault means the device failed while capturing.
	ErrDeviceFault = errors.New("capture device fault")
	// ErrAlreadyRecording rejects a start while a capture is open.
	ErrAlreadyRecording = errors.New("already recording")
)

// Error classifies a failure with one of the sentinel kinds above while
// keeping the underlying cause reachable through errors.Is and errors.As.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

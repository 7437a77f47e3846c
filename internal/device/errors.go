package device

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the capture core.
type ErrorCode string

// Error codes.
const (
	CodeDevice        ErrorCode = "DEVICE"
	CodeCapability    ErrorCode = "CAPABILITY"
	CodeNegotiation   ErrorCode = "NEGOTIATION"
	CodeIO            ErrorCode = "IO"
	CodeFrameTooLarge ErrorCode = "FRAME_TOO_LARGE"
)

// Error is a classified failure. errors.Is matches it against the sentinel
// of its code, so callers can test errors.Is(err, device.ErrIO).
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Sentinels for errors.Is.
var (
	ErrDevice        = &Error{Code: CodeDevice}
	ErrCapability    = &Error{Code: CodeCapability}
	ErrNegotiation   = &Error{Code: CodeNegotiation}
	ErrIO            = &Error{Code: CodeIO}
	ErrFrameTooLarge = &Error{Code: CodeFrameTooLarge}
)

var (
	// ErrNotReady is returned by Dequeue when no buffer has completed.
	ErrNotReady = errors.New("no buffer ready")
	// ErrTimeout is returned by Wait when the readiness timeout expires.
	ErrTimeout = errors.New("timed out waiting for device")
	// ErrUnsupported is returned by Open on platforms without V4L2.
	ErrUnsupported = errors.New("v4l2 is not supported on this platform")
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("device closed")
)

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return string(e.Code)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// DeviceError reports a failure to open, query or allocate on a device.
func DeviceError(cause error, format string, args ...any) *Error {
	return NewError(CodeDevice, fmt.Sprintf(format, args...), cause)
}

// CapabilityError reports a device that lacks a required capability.
func CapabilityError(format string, args ...any) *Error {
	return NewError(CodeCapability, fmt.Sprintf(format, args...), nil)
}

// NegotiationError reports a rejected format or frame rate.
func NegotiationError(cause error, format string, args ...any) *Error {
	return NewError(CodeNegotiation, fmt.Sprintf(format, args...), cause)
}

// IOError reports a failed queue, dequeue or stream operation.
func IOError(cause error, format string, args ...any) *Error {
	return NewError(CodeIO, fmt.Sprintf(format, args...), cause)
}

// FrameTooLargeError reports a captured frame that does not fit the encoder
// input buffer.
func FrameTooLargeError(used, capacity int) *Error {
	return NewError(CodeFrameTooLarge,
		fmt.Sprintf("captured frame of %d bytes exceeds encoder input capacity of %d bytes", used, capacity), nil)
}

package stream

import (
	"errors"
	"fmt"
)

// Common errors for video transports
var (
	// ErrNotConfigured indicates Open was called before the stream settings were set
	ErrNotConfigured = errors.New("stream not configured")

	// ErrSocket indicates a socket could not be created, bound or joined
	ErrSocket = errors.New("socket error")

	// ErrTimeout indicates no complete frame arrived before the deadline
	ErrTimeout = errors.New("receive timed out")

	// ErrNotOpen indicates the transport has no open socket
	ErrNotOpen = errors.New("stream not open")

	// ErrBufferSize indicates a frame buffer that does not match the stream geometry
	ErrBufferSize = errors.New("frame buffer size mismatch")
)

// OpError represents a socket error with the operation and address involved.
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("stream %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is reports every OpError as a socket error.
func (e *OpError) Is(target error) bool {
	return target == ErrSocket
}

// NewSocketError creates an OpError for a failed socket operation.
func NewSocketError(op, addr string, err error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}

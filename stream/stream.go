package stream

import (
	"context"
	"time"

	"github.com/opd-ai/mediax/colourspace"
)

// State is a transport lifecycle state.
type State uint8

const (
	Closed State = iota
	Open
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Frame is one reassembled video frame.
type Frame struct {
	Height   uint32
	Width    uint32
	Encoding colourspace.Type
	Sequence uint32
	Data     []byte
}

// FrameCallback is invoked from the reception goroutine for every completed
// frame. The frame data is a copy owned by the callee.
type FrameCallback func(Frame)

// Transport is the lifecycle shared by payloaders and depayloaders.
type Transport interface {
	SetStreamInfo(info Info) error
	Info() Info
	State() State
	Open() error
	Start() error
	Stop() error
	Close() error
}

// Payloader sends frames.
type Payloader interface {
	Transport

	// Transmit sends one frame. When blocking is false the frame is queued and
	// Transmit returns once it has been accepted.
	Transmit(buf []byte, blocking bool) error
}

// Depayloader receives frames.
type Depayloader interface {
	Transport

	// Receive returns the next complete frame, or ErrTimeout when none arrived
	// within timeout. A timeout <= 0 checks once without waiting.
	Receive(timeout time.Duration) (Frame, error)

	// ReceiveContext waits for the next complete frame until ctx is done.
	ReceiveContext(ctx context.Context) (Frame, error)

	RegisterCallback(cb FrameCallback)
	UnregisterCallback()
}

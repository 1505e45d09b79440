package stream

import (
	"fmt"
	"net"
	"strconv"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/limits"
)

// Info describes one video stream. It is produced by whoever configures a
// transport, or parsed from a SAP announcement, and is treated as a value:
// transports and the announcer keep their own copy.
type Info struct {
	SessionName string
	Hostname    string
	Port        uint16
	Height      uint32
	Width       uint32
	Framerate   uint32
	Encoding    colourspace.Type
	Deleted     bool
}

// Address returns host:port for the stream destination.
func (i Info) Address() string {
	return net.JoinHostPort(i.Hostname, strconv.Itoa(int(i.Port)))
}

// Stride returns the number of bytes in one scan line.
func (i Info) Stride() (int, error) {
	bpp, err := i.Encoding.BytesPerPixel()
	if err != nil {
		return 0, err
	}
	return int(i.Width) * bpp, nil
}

// FrameSize returns height*width*bytesPerPixel for the stream.
func (i Info) FrameSize() (int, error) {
	return i.Encoding.FrameSize(i.Height, i.Width)
}

// IsMulticast reports whether the stream destination is a multicast group.
func (i Info) IsMulticast() bool {
	ip := net.ParseIP(i.Hostname)
	return ip != nil && ip.IsMulticast()
}

// Validate checks the stream can be carried one scan line per packet.
func (i Info) Validate() error {
	if i.Port == 0 {
		return fmt.Errorf("%w: port unset", ErrNotConfigured)
	}
	stride, err := i.Stride()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return limits.ValidateFrameGeometry(i.Height, stride)
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s %dx%d@%d %s", i.SessionName, i.Address(), i.Width, i.Height, i.Framerate, i.Encoding)
}

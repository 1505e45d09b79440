package uncompressed

import (
	"errors"
	"fmt"

	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// errOutOfBounds indicates a line header pointing outside the packet or frame.
var errOutOfBounds = errors.New("line outside frame")

// assembler writes scan lines into a working frame and publishes it when the
// marker bit arrives. It is not safe for concurrent use.
type assembler struct {
	info      stream.Info
	bpp       int
	stride    int
	work      []byte
	published []byte
	ready     bool
	sequence  uint32
}

// resize allocates buffers for info. Both buffers are cleared.
func (a *assembler) resize(info stream.Info) error {
	size, err := info.FrameSize()
	if err != nil {
		return err
	}
	bpp, _ := info.Encoding.BytesPerPixel()
	a.info = info
	a.bpp = bpp
	a.stride = int(info.Width) * bpp
	a.work = make([]byte, size)
	a.published = make([]byte, size)
	a.ready = false
	return nil
}

// push decodes one datagram. It reports whether the packet completed a frame.
func (a *assembler) push(packet []byte) (bool, error) {
	hdr, cursor, err := rtp.DecodeHeader(packet)
	if err != nil {
		return false, err
	}
	if a.work == nil {
		return false, fmt.Errorf("%w: no frame buffer", errOutOfBounds)
	}

	for _, l := range hdr.Lines {
		// Line numbers start at 1; some senders number from 0 and those lines are skipped.
		if l.LineNumber == 0 {
			break
		}
		length := int(l.Length)
		dst := l.PixelOffset()*a.bpp + int(l.LineNumber-1)*a.stride
		if cursor+length > len(packet) {
			return false, fmt.Errorf("%w: line %d needs %d bytes, packet has %d", errOutOfBounds, l.LineNumber, length, len(packet)-cursor)
		}
		if dst+length > len(a.work) {
			return false, fmt.Errorf("%w: line %d offset %d length %d, frame is %d bytes", errOutOfBounds, l.LineNumber, dst, length, len(a.work))
		}
		copy(a.work[dst:dst+length], packet[cursor:cursor+length])
		cursor += length
	}

	if !hdr.RTP.Marker {
		return false, nil
	}

	a.work, a.published = a.published, a.work
	copy(a.work, a.published)
	a.ready = true
	if a.info.Height != 0 {
		a.sequence = hdr.Sequence() / a.info.Height
	}
	return true, nil
}

// frame returns a copy of the last published frame.
func (a *assembler) frame() stream.Frame {
	data := make([]byte, len(a.published))
	copy(data, a.published)
	return stream.Frame{
		Height:   a.info.Height,
		Width:    a.info.Width,
		Encoding: a.info.Encoding,
		Sequence: a.sequence,
		Data:     data,
	}
}

// take returns the published frame and clears the ready flag.
func (a *assembler) take() (stream.Frame, bool) {
	if !a.ready {
		return stream.Frame{}, false
	}
	a.ready = false
	return a.frame(), true
}

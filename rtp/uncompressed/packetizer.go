package uncompressed

import (
	"fmt"

	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// packetizer splits frames into one datagram per scan line. The sequence
// counter runs across frames. It is not safe for concurrent use.
type packetizer struct {
	sequence uint32
	source   uint32
	buf      []byte
}

// packets builds every datagram of frame and hands each to send, in line
// order. The slice passed to send is reused between calls. It stops at the
// first send error.
func (p *packetizer) packets(info stream.Info, frame []byte, timestamp uint32, send func([]byte) error) error {
	stride, err := info.Stride()
	if err != nil {
		return err
	}
	bpp, _ := info.Encoding.BytesPerPixel()
	if need := stride * int(info.Height); len(frame) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", stream.ErrBufferSize, len(frame), need)
	}
	if len(p.buf) < rtp.HeaderSize+stride {
		p.buf = make([]byte, rtp.HeaderSize+stride)
	}

	for line := uint32(1); line <= info.Height; line++ {
		hdr := rtp.EncodeHeader(uint16(line), line == info.Height, timestamp, p.source, p.sequence, info.Width, bpp)
		p.sequence++
		n, err := hdr.MarshalTo(p.buf)
		if err != nil {
			return err
		}
		row := int(line-1) * stride
		n += copy(p.buf[n:], frame[row:row+stride])
		if err := send(p.buf[:n]); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return nil
}

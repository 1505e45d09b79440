package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
)

const (
	// Version is the RTP protocol version.
	Version = 2

	// PayloadType is the dynamic payload type used for raw video.
	PayloadType = 96

	// ClockRate is the RTP clock for video.
	ClockRate = 90000

	// DefaultSource is the synchronisation source used when none is configured.
	DefaultSource = 0x12345678

	// ContinuationBit marks a line header followed by another line header.
	ContinuationBit = 0x8000

	// HeaderSize is the size of every packet header the payloader emits.
	HeaderSize = 12 + 2 + 2*lineHeaderSize

	lineHeaderSize = 6
	offsetMask     = 0x7FFF
)

// LineHeader describes one run of pixels inside a packet.
type LineHeader struct {
	Length     uint16
	LineNumber uint16
	Offset     uint16 // pixel offset within the line, bit 15 is ContinuationBit
}

// Continues reports whether another line header follows this one.
func (l LineHeader) Continues() bool {
	return l.Offset&ContinuationBit != 0
}

// PixelOffset returns the offset in pixels with the continuation bit removed.
func (l LineHeader) PixelOffset() int {
	return int(l.Offset & offsetMask)
}

// Header is the RTP header plus the raw video payload header.
type Header struct {
	RTP              rtp.Header
	ExtendedSequence uint16
	Lines            []LineHeader
}

// EncodeHeader builds the header of the packet carrying scan line line (1-based)
// of a frame. sequence is the full 32 bit packet counter; its low half goes in
// the RTP header and its high half in the extended sequence number.
func EncodeHeader(line uint16, last bool, timestamp, source, sequence uint32, width uint32, bytesPerPixel int) Header {
	return Header{
		RTP: rtp.Header{
			Version:        Version,
			Marker:         last,
			PayloadType:    PayloadType,
			SequenceNumber: uint16(sequence),
			Timestamp:      timestamp,
			SSRC:           source,
		},
		ExtendedSequence: uint16(sequence >> 16),
		Lines: []LineHeader{
			{Length: uint16(int(width) * bytesPerPixel), LineNumber: line, Offset: ContinuationBit},
			{},
		},
	}
}

// Sequence returns the full 32 bit sequence number.
func (h Header) Sequence() uint32 {
	return uint32(h.ExtendedSequence)<<16 | uint32(h.RTP.SequenceNumber)
}

// Valid reports whether the header belongs to the raw video profile.
func (h Header) Valid() bool {
	return h.RTP.Version == Version && h.RTP.PayloadType == PayloadType
}

// MarshalSize returns the encoded size of the header.
func (h Header) MarshalSize() int {
	return h.RTP.MarshalSize() + 2 + lineHeaderSize*len(h.Lines)
}

// MarshalTo writes the header into buf and returns the number of bytes written.
func (h Header) MarshalTo(buf []byte) (int, error) {
	if len(buf) < h.MarshalSize() {
		return 0, fmt.Errorf("%w: buffer of %d bytes cannot hold %d byte header", ErrMalformedPacket, len(buf), h.MarshalSize())
	}
	n, err := h.RTP.MarshalTo(buf)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint16(buf[n:], h.ExtendedSequence)
	n += 2
	for _, l := range h.Lines {
		binary.BigEndian.PutUint16(buf[n:], l.Length)
		binary.BigEndian.PutUint16(buf[n+2:], l.LineNumber)
		binary.BigEndian.PutUint16(buf[n+4:], l.Offset)
		n += lineHeaderSize
	}
	return n, nil
}

// Marshal returns the encoded header.
func (h Header) Marshal() ([]byte, error) {
	buf := make([]byte, h.MarshalSize())
	n, err := h.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// DecodeHeader parses the headers at the start of packet and returns them with
// the offset of the first payload byte. Packets of another payload type or RTP
// version return ErrForeignPacket; truncated raw video headers return
// ErrMalformedPacket.
func DecodeHeader(packet []byte) (Header, int, error) {
	var h Header
	n, err := h.RTP.Unmarshal(packet)
	if err != nil {
		return Header{}, 0, fmt.Errorf("%w: %v", ErrForeignPacket, err)
	}
	if !h.Valid() {
		return Header{}, 0, fmt.Errorf("%w: version %d payload type %d", ErrForeignPacket, h.RTP.Version, h.RTP.PayloadType)
	}

	if len(packet) < n+2 {
		return Header{}, 0, fmt.Errorf("%w: no extended sequence number", ErrMalformedPacket)
	}
	h.ExtendedSequence = binary.BigEndian.Uint16(packet[n:])
	n += 2

	for {
		if len(packet) < n+lineHeaderSize {
			return Header{}, 0, fmt.Errorf("%w: line header %d truncated", ErrMalformedPacket, len(h.Lines))
		}
		l := LineHeader{
			Length:     binary.BigEndian.Uint16(packet[n:]),
			LineNumber: binary.BigEndian.Uint16(packet[n+2:]),
			Offset:     binary.BigEndian.Uint16(packet[n+4:]),
		}
		h.Lines = append(h.Lines, l)
		n += lineHeaderSize
		if !l.Continues() {
			break
		}
	}
	return h, n, nil
}

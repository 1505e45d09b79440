// Package limits provides centralized size limits for the raw-video RTP profile
// and the SAP/SDP announcements. This ensures consistent validation across the
// payloader, depayloader and SAP components.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxUDPDatagram is the largest payload a single IPv4 UDP datagram can carry
	// (65535 - 8 byte UDP header - 20 byte IP header)
	MaxUDPDatagram = 65507

	// RTPHeaderSize is the fixed RTP header without CSRC entries or extensions
	RTPHeaderSize = 12

	// PayloadHeaderSize is the extended sequence number plus one line header and
	// the terminating line header used for single-line packets
	PayloadHeaderSize = 2 + 2*LineHeaderSize

	// LineHeaderSize is the length, line number and offset words of a line header
	LineHeaderSize = 6

	// MaxLineLength is the largest scan line the 16-bit length field can describe
	MaxLineLength = 0xFFFF

	// MaxLineNumber is the largest line number that fits the 15 usable bits of a
	// line header
	MaxLineNumber = 0x7FFF

	// MaxSAPPacket is the buffer used for a single SAP announcement
	MaxSAPPacket = 4096
)

var (
	// ErrLineEmpty indicates a stream with zero width or height
	ErrLineEmpty = errors.New("empty scan line")

	// ErrLineTooLong indicates a scan line that does not fit in one packet
	ErrLineTooLong = errors.New("scan line too long")

	// ErrFrameTooLarge indicates a frame with more lines than the wire can number
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrAnnouncementTooLarge indicates an SDP body that does not fit in one SAP packet
	ErrAnnouncementTooLarge = errors.New("announcement too large")
)

// MaxLinePayload is the largest line payload that fits a single-line packet.
func MaxLinePayload() int {
	max := MaxUDPDatagram - RTPHeaderSize - PayloadHeaderSize
	if max > MaxLineLength {
		max = MaxLineLength
	}
	return max
}

// ValidateLineLength validates the byte length of one scan line against what a
// single packet can carry.
// Returns an error with context including the actual and maximum sizes.
func ValidateLineLength(length int) error {
	if length <= 0 {
		return ErrLineEmpty
	}
	if max := MaxLinePayload(); length > max {
		return fmt.Errorf("%w: line size %d exceeds limit %d", ErrLineTooLong, length, max)
	}
	return nil
}

// ValidateFrameGeometry validates a frame's height and stride (bytes per line)
// so every line can be numbered and carried by one packet.
func ValidateFrameGeometry(height uint32, stride int) error {
	if height == 0 {
		return ErrLineEmpty
	}
	if height > MaxLineNumber {
		return fmt.Errorf("%w: %d lines exceeds limit %d", ErrFrameTooLarge, height, MaxLineNumber)
	}
	return ValidateLineLength(stride)
}

// ValidateAnnouncement validates an encoded SAP packet against MaxSAPPacket.
func ValidateAnnouncement(packet []byte) error {
	if len(packet) > MaxSAPPacket {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrAnnouncementTooLarge, len(packet), MaxSAPPacket)
	}
	return nil
}

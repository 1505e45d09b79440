package rtp

import "errors"

var (
	// ErrForeignPacket indicates an RTP packet that is not raw video. These are
	// expected on shared groups and are dropped without complaint.
	ErrForeignPacket = errors.New("not a raw video packet")

	// ErrMalformedPacket indicates a raw video packet whose headers cannot be decoded
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrTimestampOverflow indicates a 90 kHz timestamp that no longer fits 32 bits
	ErrTimestampOverflow = errors.New("timestamp overflow")
)

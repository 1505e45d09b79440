package rtp

import (
	"encoding/binary"
	"math/bits"
)

// IsLittleEndian reports whether the host stores integers least significant
// byte first.
var IsLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// SwapEndian16 reverses the bytes of every 16 bit word in place.
func SwapEndian16(words []uint16) {
	for i, w := range words {
		words[i] = bits.ReverseBytes16(w)
	}
}

// SwapEndian32 reverses the bytes of every 32 bit word in place.
func SwapEndian32(words []uint32) {
	for i, w := range words {
		words[i] = bits.ReverseBytes32(w)
	}
}

// ToNetwork16 converts a host order value to network order. It is its own
// inverse.
func ToNetwork16(v uint16) uint16 {
	if IsLittleEndian {
		return bits.ReverseBytes16(v)
	}
	return v
}

// ToNetwork32 converts a host order value to network order. It is its own
// inverse.
func ToNetwork32(v uint32) uint32 {
	if IsLittleEndian {
		return bits.ReverseBytes32(v)
	}
	return v
}

// Package colourspace maps pixel encodings to their storage sizes and to the
// sampling strings carried in SDP stream descriptions.
package colourspace

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUndefined indicates a colourspace with no defined pixel size.
var ErrUndefined = errors.New("colourspace undefined")

// Type identifies the encoding of the pixels in a frame buffer.
type Type uint8

const (
	Undefined Type = iota
	RGBA
	RGB24
	YUV422
	YUV420P
	Mono16
	Mono8
	NV12
	H264Part4
	H264Part10
	H265
	JPEG2000
	AV1
)

var typeNames = map[Type]string{
	RGBA:       "RGBA",
	RGB24:      "RGB24",
	YUV422:     "YUV422",
	YUV420P:    "YUV420P",
	Mono16:     "MONO16",
	Mono8:      "MONO8",
	NV12:       "NV12",
	H264Part4:  "H264Part4",
	H264Part10: "H264Part10",
	H265:       "H265",
	JPEG2000:   "JPEG2000",
	AV1:        "AV1",
}

// String returns the canonical name of the colourspace.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Parse converts a canonical name back to a Type. "H264" is accepted as an
// alias for H264Part10. Unknown names return Undefined.
func Parse(name string) Type {
	if name == "H264" {
		return H264Part10
	}
	for t, n := range typeNames {
		if n == name {
			return t
		}
	}
	return Undefined
}

// BitsPerPixel returns the number of bits used to store one pixel. For planar
// formats the value is averaged over the planes. Compressed encodings report
// 24 so buffers sized from them hold a decoded RGB frame.
func (t Type) BitsPerPixel() int {
	switch t {
	case RGBA:
		return 32
	case RGB24:
		return 24
	case YUV422, Mono16:
		return 16
	case YUV420P, NV12:
		return 12
	case Mono8:
		return 8
	case H264Part4, H264Part10, H265, JPEG2000, AV1:
		return 24
	default:
		return 0
	}
}

// BytesPerPixel returns the pixel size rounded up to whole bytes, or
// ErrUndefined when the colourspace has no defined size.
func (t Type) BytesPerPixel() (int, error) {
	bits := t.BitsPerPixel()
	if bits == 0 {
		return 0, fmt.Errorf("%w: %d", ErrUndefined, uint8(t))
	}
	return (bits + 7) / 8, nil
}

// IsCompressed reports whether the encoding is a compressed codec rather than
// raw pixels.
func (t Type) IsCompressed() bool {
	switch t {
	case H264Part4, H264Part10, H265, JPEG2000, AV1:
		return true
	}
	return false
}

// FrameSize returns height*width*BytesPerPixel for the colourspace.
func (t Type) FrameSize(height, width uint32) (int, error) {
	bpp, err := t.BytesPerPixel()
	if err != nil {
		return 0, err
	}
	return int(height) * int(width) * bpp, nil
}

// SdpSampling returns the value of the SDP fmtp "sampling" parameter.
func (t Type) SdpSampling() string {
	switch t {
	case RGB24:
		return "RGB"
	case RGBA:
		return "RGBA"
	case YUV422:
		return "YCbCr-4:2:2"
	case YUV420P, NV12:
		return "YCbCr-4:2:0"
	case Mono8, Mono16:
		return "Mono"
	default:
		return "unknown"
	}
}

// SdpDepth returns the value of the SDP fmtp "depth" parameter.
func (t Type) SdpDepth() int {
	if t == Mono16 {
		return 16
	}
	return 8
}

// SdpColorimetry returns the SDP fmtp "colorimetry" parameter, empty when the
// encoding carries none.
func (t Type) SdpColorimetry() string {
	switch t {
	case RGB24, RGBA:
		return "BT709-2"
	case YUV422, YUV420P, NV12:
		return "BT601-5"
	default:
		return ""
	}
}

// RtpEncodingName returns the encoding name used in the SDP rtpmap attribute.
func (t Type) RtpEncodingName() string {
	switch t {
	case H264Part4, H264Part10:
		return "H264"
	case H265:
		return "H265"
	case AV1:
		return "AV1"
	case JPEG2000:
		return "jpeg2000"
	case Undefined:
		return "unknown"
	default:
		return "raw"
	}
}

// SamplingToColourspace converts an SDP sampling string and bit depth into a
// Type. Matching is case-insensitive; "GRAYSCALE" is accepted for "Mono".
func SamplingToColourspace(sampling string, depth int) Type {
	switch strings.ToLower(sampling) {
	case "rgb":
		return RGB24
	case "rgba":
		return RGBA
	case "ycbcr-4:2:2":
		return YUV422
	case "ycbcr-4:2:0":
		return YUV420P
	case "mono", "grayscale":
		if depth == 16 {
			return Mono16
		}
		if depth == 8 || depth == 0 {
			return Mono8
		}
	case "h264":
		return H264Part10
	case "h265":
		return H265
	case "av1":
		return AV1
	case "jpeg2000":
		return JPEG2000
	}
	return Undefined
}

// Package limits provides centralized size constants and validation functions
// for the raw-video RTP profile and the SAP announcements.
//
// # Size Hierarchy
//
//   - MaxUDPDatagram (65507 bytes): the largest IPv4 UDP payload. Receive buffers are
//     sized to this so a scan line wider than the link MTU still arrives intact after
//     IP reassembly.
//
//   - MaxLineLength (65535 bytes): the 16-bit length field of a line header. Together with
//     the RTP and payload headers this caps the stride of a stream.
//
//   - MaxLineNumber (32767): line numbers share their word layout with the offset field,
//     whose top bit is the continuation flag.
//
//   - MaxSAPPacket (4096 bytes): the buffer for one SAP/SDP announcement.
//
// # Validation Functions
//
//	if err := limits.ValidateFrameGeometry(height, width*bytesPerPixel); err != nil {
//	    // ErrLineEmpty, ErrLineTooLong or ErrFrameTooLarge
//	}
package limits

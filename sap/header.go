package sap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// DefaultAddress is the SAP multicast group for global scope sessions.
	DefaultAddress = "224.2.127.254"

	// DefaultPort is the well-known SAP port.
	DefaultPort = 9875

	// MIMEType is the payload type string carried ahead of the SDP body.
	MIMEType = "application/sdp"

	headerSize = 8

	flagVersion1   = 0x20
	flagDeletion   = 0x04
	flagEncrypted  = 0x02
	flagCompressed = 0x01
)

// Header is the fixed part of a SAP packet.
type Header struct {
	Deletion   bool
	AuthLength uint8 // in 32 bit words
	Hash       uint16
	Source     net.IP
}

// MarshalTo writes the 8 byte header into buf.
func (h Header) MarshalTo(buf []byte) int {
	buf[0] = flagVersion1
	if h.Deletion {
		buf[0] |= flagDeletion
	}
	buf[1] = h.AuthLength
	binary.BigEndian.PutUint16(buf[2:4], h.Hash)
	copy(buf[4:8], net.IPv4zero.To4())
	if ip := h.Source.To4(); ip != nil {
		copy(buf[4:8], ip)
	}
	return headerSize
}

// parsePacket splits a SAP packet into its header and SDP text. The
// authentication data and the optional payload type are skipped.
func parsePacket(packet []byte) (Header, []byte, error) {
	if len(packet) < headerSize {
		return Header{}, nil, fmt.Errorf("%w: %d byte packet", ErrMalformedAnnouncement, len(packet))
	}
	flags := packet[0]
	if flags&(flagEncrypted|flagCompressed) != 0 {
		return Header{}, nil, fmt.Errorf("%w: encrypted or compressed payload", ErrMalformedAnnouncement)
	}

	h := Header{
		Deletion:   flags&flagDeletion != 0,
		AuthLength: packet[1],
		Hash:       binary.BigEndian.Uint16(packet[2:4]),
		Source:     net.IPv4(packet[4], packet[5], packet[6], packet[7]),
	}

	body := packet[headerSize:]
	auth := int(h.AuthLength) * 4
	if auth > len(body) {
		return Header{}, nil, fmt.Errorf("%w: authentication data truncated", ErrMalformedAnnouncement)
	}
	body = body[auth:]

	if !bytes.HasPrefix(body, []byte("v=")) {
		if i := bytes.IndexByte(body, 0); i >= 0 {
			if mime := string(body[:i]); mime != MIMEType {
				return Header{}, nil, fmt.Errorf("%w: payload type %q", ErrMalformedAnnouncement, mime)
			}
			body = body[i+1:]
		}
	}
	i := bytes.Index(body, []byte("v="))
	if i < 0 {
		return Header{}, nil, fmt.Errorf("%w: no SDP body", ErrMalformedAnnouncement)
	}
	return h, body[i:], nil
}

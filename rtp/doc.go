// Package rtp implements the wire format of the DEF-STAN 00-82 raw video RTP
// profile.
//
// Every packet carries a standard 12 byte RTP header followed by a payload
// header made of a 16 bit extended sequence number and a list of 6 byte line
// headers:
//
//	 0                   1                   2                   3
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Extended Sequence Number    |            Length             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|F|          Line No            |C|           Offset            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// Line numbers are 1-based on the wire. The C bit of the offset word is set
// when another line header follows. The payloader sends one scan line per
// packet, terminated by an all zero line header, so pixel data starts at byte
// 26 of every datagram.
//
// The fixed RTP header is encoded with github.com/pion/rtp. All multi-byte
// fields are big-endian on the wire.
package rtp

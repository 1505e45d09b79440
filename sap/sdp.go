package sap

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pion/sdp/v3"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/limits"
	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

const sessionID = 3394362021

// Announcement is one parsed SAP packet.
type Announcement struct {
	ProtocolVersion int
	Source          string // originator address from o=
	SessionName     string
	Address         string // stream destination from c=
	Port            uint16
	Height          uint32
	Width           uint32
	Framerate       uint32
	Sampling        string
	Depth           int
	Deleted         bool
	Attributes      map[string]string
	SDP             string
}

// StreamInfo converts the announcement to a stream description.
func (a Announcement) StreamInfo() stream.Info {
	return stream.Info{
		SessionName: a.SessionName,
		Hostname:    a.Address,
		Port:        a.Port,
		Height:      a.Height,
		Width:       a.Width,
		Framerate:   a.Framerate,
		Encoding:    colourspace.SamplingToColourspace(a.Sampling, a.Depth),
		Deleted:     a.Deleted,
	}
}

// BuildAnnouncement encodes a SAP packet announcing info, or withdrawing it
// when deletion is set. source is the originating address written in both the
// SAP header and the SDP origin.
func BuildAnnouncement(info stream.Info, source net.IP, deletion bool) ([]byte, error) {
	body, err := BuildSDP(info, source)
	if err != nil {
		return nil, err
	}

	h := Header{
		Deletion: deletion,
		Hash:     messageHash(body),
		Source:   source,
	}
	packet := make([]byte, headerSize, headerSize+len(MIMEType)+1+len(body))
	h.MarshalTo(packet)
	packet = append(packet, MIMEType...)
	packet = append(packet, 0)
	packet = append(packet, body...)

	if err := limits.ValidateAnnouncement(packet); err != nil {
		return nil, err
	}
	return packet, nil
}

// messageHash folds the 64 bit digest of the SDP body into the 16 bit SAP
// message identifier hash.
func messageHash(body []byte) uint16 {
	d := xxhash.Sum64(body)
	return uint16(d ^ d>>16 ^ d>>32 ^ d>>48)
}

// BuildSDP returns the SDP description of info.
func BuildSDP(info stream.Info, source net.IP) ([]byte, error) {
	origin := "0.0.0.0"
	if ip := source.To4(); ip != nil {
		origin = ip.String()
	}
	dest := info.Hostname
	if dest == "" {
		dest = "0.0.0.0"
	}

	conn := &sdp.Address{Address: dest}
	if info.IsMulticast() {
		ttl := DefaultTTL
		conn.TTL = &ttl
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: origin,
		},
		SessionName: sdp.SessionName(info.SessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     conn,
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: int(info.Port)},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.Itoa(rtp.PayloadType)},
			},
			Attributes: mediaAttributes(info),
		}},
	}
	return desc.Marshal()
}

func mediaAttributes(info stream.Info) []sdp.Attribute {
	enc := info.Encoding
	pt := strconv.Itoa(rtp.PayloadType)

	fmtp := fmt.Sprintf("%s sampling=%s; width=%d; height=%d; depth=%d; ",
		pt, enc.SdpSampling(), info.Width, info.Height, enc.SdpDepth())
	if c := enc.SdpColorimetry(); c != "" {
		fmtp += "colorimetry=" + c + "; "
	}
	fmtp += "progressive"

	attrs := []sdp.Attribute{
		sdp.NewAttribute("rtpmap", fmt.Sprintf("%s %s/%d", pt, enc.RtpEncodingName(), rtp.ClockRate)),
		sdp.NewAttribute("fmtp", fmtp),
		sdp.NewAttribute("framerate", strconv.Itoa(int(info.Framerate))),
	}
	if enc == colourspace.Mono16 {
		attrs = append(attrs,
			sdp.NewAttribute("active-pixel-depth", "16"),
			sdp.NewAttribute("number-pixel-flags", "2"),
			sdp.NewAttribute("pixel-flags", "saturated,ignored"),
		)
	}
	return attrs
}

// ParseAnnouncement decodes a SAP packet. The height, width and framerate
// attributes are required; a packet missing any of them, or carrying a
// non-numeric value, returns ErrMalformedAnnouncement.
func ParseAnnouncement(packet []byte) (Announcement, error) {
	h, body, err := parsePacket(packet)
	if err != nil {
		return Announcement{}, err
	}

	a := Announcement{
		Source:     h.Source.String(),
		Deleted:    h.Deletion,
		SDP:        strings.TrimRight(string(body), "\x00"),
		Attributes: make(map[string]string),
	}

	for _, line := range strings.Split(a.SDP, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := line[2:]
		switch line[0] {
		case 'v':
			a.ProtocolVersion, _ = strconv.Atoi(strings.TrimSpace(value))
		case 'o':
			if fields := strings.Fields(value); len(fields) > 0 {
				a.Source = stripSuffix(fields[len(fields)-1])
			}
		case 's':
			a.SessionName = strings.TrimSpace(value)
		case 'c':
			if _, addr, ok := strings.Cut(value, "IP4 "); ok {
				a.Address = stripSuffix(strings.TrimSpace(addr))
			}
		case 'm':
			fields := strings.Fields(value)
			if len(fields) < 2 {
				return Announcement{}, fmt.Errorf("%w: media line %q", ErrMalformedAnnouncement, value)
			}
			port, err := strconv.ParseUint(stripSuffix(fields[1]), 10, 16)
			if err != nil {
				return Announcement{}, fmt.Errorf("%w: port %q", ErrMalformedAnnouncement, fields[1])
			}
			a.Port = uint16(port)
		case 'a':
			parseAttribute(a.Attributes, value)
		}
	}

	for _, fmtp := range []string{"fmtp:103", "fmtp:96"} {
		if v, ok := a.Attributes[fmtp]; ok {
			parseParameters(a.Attributes, v)
		}
	}
	splitKeys(a.Attributes)

	if a.Height, err = requiredUint(a.Attributes, "height"); err != nil {
		return Announcement{}, err
	}
	if a.Width, err = requiredUint(a.Attributes, "width"); err != nil {
		return Announcement{}, err
	}
	if a.Framerate, err = requiredUint(a.Attributes, "framerate"); err != nil {
		return Announcement{}, err
	}
	a.Depth, _ = strconv.Atoi(a.Attributes["depth"])
	a.Sampling = sampling(a.Attributes)
	return a, nil
}

// parseAttribute stores an a= line. "key:value rest" becomes key:value -> rest;
// a line without parameters is stored whole with an empty value.
func parseAttribute(attrs map[string]string, line string) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "=") {
		attrs[line] = ""
		return
	}
	key, value, _ := strings.Cut(line, " ")
	attrs[key] = value
}

// parseParameters stores "key=value; key=value; flag" format parameters.
func parseParameters(attrs map[string]string, params string) {
	for _, field := range strings.Fields(params) {
		field = strings.TrimSuffix(field, ";")
		if field == "" {
			continue
		}
		key, value, _ := strings.Cut(field, "=")
		attrs[key] = strings.ReplaceAll(value, ";", "")
	}
}

// splitKeys adds key -> value for every "key:value" key, e.g. framerate:25.
func splitKeys(attrs map[string]string) {
	split := make(map[string]string)
	for key := range attrs {
		if k, v, ok := strings.Cut(key, ":"); ok {
			split[k] = v
		}
	}
	for k, v := range split {
		attrs[k] = v
	}
}

func requiredUint(attrs map[string]string, key string) (uint32, error) {
	v, ok := attrs[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedAnnouncement, key)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedAnnouncement, key, v)
	}
	return uint32(n), nil
}

// sampling returns the sampling parameter, falling back to the encoding
// name for compressed streams.
func sampling(attrs map[string]string) string {
	if s := attrs["sampling"]; s != "" {
		return s
	}
	if attrs["profile-level-id"] != "" {
		return "H264"
	}
	if _, enc, ok := strings.Cut(attrs["rtpmap"], " "); ok {
		name, _, _ := strings.Cut(enc, "/")
		return name
	}
	return ""
}

func stripSuffix(addr string) string {
	addr, _, _ = strings.Cut(addr, "/")
	return addr
}

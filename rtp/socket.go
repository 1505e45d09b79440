package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// MaxDatagram is the receive buffer size used for every packet read.
const MaxDatagram = 65507

// ReadTimeout bounds a single socket read so reception loops notice a stop
// request promptly.
const ReadTimeout = 20 * time.Millisecond

// ListenConfig returns a net.ListenConfig that optionally sets SO_REUSEADDR and
// SO_REUSEPORT, letting several receivers share a multicast port.
func ListenConfig(reuse bool) *net.ListenConfig {
	lc := &net.ListenConfig{}
	if reuse {
		lc.Control = reuseControl
	}
	return lc
}

// Listen binds a UDP socket to port on all interfaces and joins group when it
// is a multicast address.
func Listen(ctx context.Context, group string, port uint16, reuse bool) (net.PacketConn, error) {
	addr := fmt.Sprintf(":%d", port)
	conn, err := ListenConfig(reuse).ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}

	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return conn, nil
	}
	if err := JoinGroup(conn, ip); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// JoinGroup joins the multicast group on every multicast capable interface.
// It succeeds when at least one join succeeds.
func JoinGroup(conn net.PacketConn, group net.IP) error {
	pc := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		return pc.JoinGroup(nil, &net.UDPAddr{IP: group})
	}

	joined := 0
	var lastErr error
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			lastErr = err
			continue
		}
		joined++
	}
	if joined == 0 {
		if err := pc.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
			if lastErr != nil {
				return fmt.Errorf("join %s: %w", group, lastErr)
			}
			return fmt.Errorf("join %s: %w", group, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "JoinGroup",
		"group":      group.String(),
		"interfaces": joined,
	}).Debug("Joined multicast group")
	return nil
}

// SetMulticastOptions sets the TTL and loopback used for multicast sends.
func SetMulticastOptions(conn net.PacketConn, ttl int, loopback bool) error {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ttl); err != nil {
		return fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := pc.SetMulticastLoopback(loopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}
	return nil
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

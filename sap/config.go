package sap

import (
	"net"
	"strconv"
	"time"

	"github.com/opd-ai/mediax/metrics"
)

const (
	// DefaultInterval is the period between announcements of the same stream.
	DefaultInterval = time.Second

	// DefaultReadTimeout bounds a listener socket read.
	DefaultReadTimeout = 20 * time.Millisecond

	// DefaultTTL is the multicast TTL of SAP packets.
	DefaultTTL = 15
)

// Config configures an Announcer or Listener. The zero value uses the
// well-known SAP group and port.
type Config struct {
	Address     string
	Port        uint16
	Interval    time.Duration
	ReadTimeout time.Duration
	TTL         int
	Interfaces  InterfaceLister
	Metrics     *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Interfaces == nil {
		c.Interfaces = SystemInterfaces
	}
	return c
}

func (c Config) groupAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

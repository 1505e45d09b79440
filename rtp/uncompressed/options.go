package uncompressed

import (
	"time"

	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/rtp"
)

const (
	// DefaultQueueDepth is the number of frames a payloader accepts ahead of the
	// one being sent.
	DefaultQueueDepth = 2

	// DefaultMulticastTTL is the TTL of multicast video packets.
	DefaultMulticastTTL = 15

	// DefaultPollInterval is how often Receive checks for a completed frame.
	DefaultPollInterval = 2 * time.Millisecond
)

// Options configures a Payloader or Depayloader. The zero value is usable.
type Options struct {
	// Clock drives RTP timestamps. Defaults to the system clock.
	Clock rtp.Clock
	// Metrics records packet and frame counters. May be nil.
	Metrics *metrics.Metrics
	// QueueDepth bounds the frames waiting for the payloader worker.
	QueueDepth int
	// MulticastTTL is applied when the destination is a multicast group.
	MulticastTTL int
	// Source is the RTP synchronisation source. Zero picks a random one.
	Source uint32
	// PollInterval is the Receive polling period.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = rtp.SystemClock{}
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.MulticastTTL <= 0 {
		o.MulticastTTL = DefaultMulticastTTL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

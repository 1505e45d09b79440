package rtp

import (
	"fmt"
	"math"
	"time"
)

// Clock supplies the current time. It allows injecting a fake clock for
// deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the monotonic system clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Timestamper converts elapsed time into 90 kHz RTP ticks measured from the
// moment it was created.
type Timestamper struct {
	clock  Clock
	origin time.Time
}

// NewTimestamper creates a Timestamper whose origin is the current time of c.
// A nil clock uses SystemClock.
func NewTimestamper(c Clock) *Timestamper {
	if c == nil {
		c = SystemClock{}
	}
	return &Timestamper{clock: c, origin: c.Now()}
}

// Timestamp returns the ticks elapsed since the origin, or ErrTimestampOverflow
// once the count no longer fits the 32 bit wire field.
func (t *Timestamper) Timestamp() (uint32, error) {
	elapsed := t.clock.Now().Sub(t.origin)
	if elapsed < 0 {
		elapsed = 0
	}
	ticks := uint64(elapsed/time.Microsecond) * 9 / 100
	if ticks > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d ticks after %s", ErrTimestampOverflow, ticks, elapsed)
	}
	return uint32(ticks), nil
}

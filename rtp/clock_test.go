package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTimestamper(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ts := NewTimestamper(clock)

	got, err := ts.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)

	clock.Advance(time.Second)
	got, err = ts.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, uint32(ClockRate), got)

	clock.Advance(40 * time.Millisecond)
	got, err = ts.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, uint32(ClockRate+3600), got)
}

func TestTimestamperOverflow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	ts := NewTimestamper(clock)

	// 2^32 ticks at 90 kHz is a little over 13 hours 15 minutes.
	clock.Advance(13 * time.Hour)
	_, err := ts.Timestamp()
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = ts.Timestamp()
	assert.ErrorIs(t, err, ErrTimestampOverflow)
}

func TestTimestamperClockBackwards(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	ts := NewTimestamper(clock)
	clock.Advance(-time.Second)

	got, err := ts.Timestamp()
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestNewTimestamperDefaultClock(t *testing.T) {
	ts := NewTimestamper(nil)
	_, err := ts.Timestamp()
	assert.NoError(t, err)
}

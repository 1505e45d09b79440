package uncompressed

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/mediax/colourspace"
	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// freePort returns a UDP port that was free a moment ago.
func freePort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func startDepayloader(t *testing.T, info stream.Info, opts Options) *Depayloader {
	t.Helper()
	d := NewDepayloader(opts)
	require.NoError(t, d.SetStreamInfo(info))
	require.NoError(t, d.Open())
	require.NoError(t, d.Start())
	t.Cleanup(func() { d.Close() })
	return d
}

func openPayloader(t *testing.T, info stream.Info, opts Options) *Payloader {
	t.Helper()
	p := NewPayloader(opts)
	require.NoError(t, p.SetStreamInfo(info))
	require.NoError(t, p.Open())
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSolidRedLoopback(t *testing.T) {
	info := stream.Info{
		SessionName: "t1",
		Hostname:    "127.0.0.1",
		Port:        freePort(t),
		Height:      4,
		Width:       4,
		Framerate:   25,
		Encoding:    colourspace.RGB24,
	}
	d := startDepayloader(t, info, Options{})
	p := openPayloader(t, info, Options{})

	red := make([]byte, 4*4*3)
	require.NoError(t, colourspace.Solid(red, 4, 4, colourspace.RGB{R: 255}, colourspace.RGB24))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, p.Transmit(red, true))
		frame, err := d.Receive(100 * time.Millisecond)
		if err == nil {
			require.Len(t, frame.Data, 48)
			assert.Equal(t, red, frame.Data)
			assert.Equal(t, uint32(4), frame.Height)
			assert.Equal(t, colourspace.RGB24, frame.Encoding)
			return
		}
		require.ErrorIs(t, err, stream.ErrTimeout)
	}
	t.Fatal("no frame received within 2 seconds")
}

func TestReceiveTimeoutBounds(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)
	d := startDepayloader(t, info, Options{})

	const margin = 250 * time.Millisecond
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "zero", timeout: 0},
		{name: "negative", timeout: -time.Second},
		{name: "50ms", timeout: 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := d.Receive(tt.timeout)
			elapsed := time.Since(start)

			assert.ErrorIs(t, err, stream.ErrTimeout)
			if tt.timeout > 0 {
				assert.GreaterOrEqual(t, elapsed, tt.timeout)
			}
			assert.Less(t, elapsed, max(tt.timeout, 0)+margin)
		})
	}
}

func TestReceiveContextCancelled(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)
	d := startDepayloader(t, info, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := d.ReceiveContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallbackAndMetrics(t *testing.T) {
	info := infoFor(8, 8, colourspace.Mono16)
	info.Port = freePort(t)
	m := metrics.New()
	d := startDepayloader(t, info, Options{Metrics: m})
	p := openPayloader(t, info, Options{Metrics: m})

	var (
		mu     sync.Mutex
		frames []stream.Frame
	)
	d.RegisterCallback(func(f stream.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	buf := make([]byte, 8*8*2)
	require.NoError(t, colourspace.Checkered(buf, 8, 8, colourspace.Mono16))

	assert.Eventually(t, func() bool {
		_ = p.Transmit(buf, false)
		mu.Lock()
		defer mu.Unlock()
		return len(frames) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	got := frames[0]
	mu.Unlock()
	assert.Equal(t, buf, got.Data)

	d.UnregisterCallback()
	assert.Equal(t, stream.Started, d.State())
	assert.Greater(t, p.SequenceNumber(), uint32(0))
}

func TestNonBlockingTransmitsDoNotInterleave(t *testing.T) {
	info := infoFor(16, 4, colourspace.Mono8)
	info.Port = freePort(t)

	conn, err := net.ListenPacket("udp4", info.Address())
	require.NoError(t, err)
	defer conn.Close()

	p := openPayloader(t, info, Options{Source: 42})
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Transmit(make([]byte, 64), false))
	}

	buf := make([]byte, rtp.MaxDatagram)
	want := uint32(0)
	markers := 0
	for markers < 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := conn.ReadFrom(buf)
		require.NoError(t, err)

		h, offset, err := rtp.DecodeHeader(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, rtp.HeaderSize, offset)
		assert.Equal(t, 4+rtp.HeaderSize, n)
		assert.Equal(t, uint32(42), h.RTP.SSRC)
		assert.Equal(t, want, h.Sequence())
		assert.Equal(t, uint16(want%16+1), h.Lines[0].LineNumber)
		if h.RTP.Marker {
			markers++
		}
		want++
	}
}

func TestLifecycleErrors(t *testing.T) {
	d := NewDepayloader(Options{})
	assert.ErrorIs(t, d.Open(), stream.ErrNotConfigured)
	assert.ErrorIs(t, d.Start(), stream.ErrNotOpen)
	_, err := d.Receive(0)
	assert.ErrorIs(t, err, stream.ErrNotConfigured)
	assert.False(t, d.SettingsValid())
	assert.Equal(t, stream.Closed, d.State())

	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = 0
	require.NoError(t, d.SetStreamInfo(info))
	assert.ErrorIs(t, d.Open(), stream.ErrNotConfigured)

	tooWide := infoFor(4, 40000, colourspace.RGBA)
	assert.Error(t, d.SetStreamInfo(tooWide))
	assert.False(t, d.SettingsValid())

	p := NewPayloader(Options{})
	assert.ErrorIs(t, p.Open(), stream.ErrNotConfigured)
	assert.ErrorIs(t, p.Transmit(make([]byte, 48), true), stream.ErrNotOpen)
	assert.ErrorIs(t, p.Start(), stream.ErrNotOpen)
}

func TestDepayloaderLifecycle(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)

	d := NewDepayloader(Options{})
	require.NoError(t, d.SetStreamInfo(info))
	assert.True(t, d.SettingsValid())
	assert.Equal(t, info, d.Info())

	require.NoError(t, d.Open())
	require.NoError(t, d.Open())
	assert.Equal(t, stream.Open, d.State())

	require.NoError(t, d.Start())
	require.NoError(t, d.Start())
	assert.Equal(t, stream.Started, d.State())

	require.NoError(t, d.Stop())
	assert.Equal(t, stream.Stopped, d.State())
	require.NoError(t, d.Start())

	require.NoError(t, d.Close())
	assert.Equal(t, stream.Closed, d.State())
	assert.True(t, d.SettingsValid())

	// Re-open after close.
	require.NoError(t, d.Open())
	require.NoError(t, d.Close())
}

func TestReceiveOpensClosedDepayloader(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)
	d := NewDepayloader(Options{})
	require.NoError(t, d.SetStreamInfo(info))
	defer d.Close()

	_, err := d.Receive(0)
	assert.ErrorIs(t, err, stream.ErrTimeout)
	assert.Equal(t, stream.Open, d.State())
}

func TestPayloaderTransmitErrors(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)

	clock := &stepClock{now: time.Unix(0, 0)}
	p := openPayloader(t, info, Options{Clock: clock})

	assert.ErrorIs(t, p.Transmit(make([]byte, 47), true), stream.ErrBufferSize)

	require.NoError(t, p.Transmit(make([]byte, 48), true))
	assert.Equal(t, uint32(4), p.SequenceNumber())

	clock.advance(14 * time.Hour)
	assert.ErrorIs(t, p.Transmit(make([]byte, 48), true), rtp.ErrTimestampOverflow)
	assert.Equal(t, uint32(4), p.SequenceNumber())

	// Re-opening rebases the clock.
	require.NoError(t, p.Close())
	require.NoError(t, p.Open())
	assert.NoError(t, p.Transmit(make([]byte, 48), true))
}

func TestPayloaderStateTransitions(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)
	p := NewPayloader(Options{})
	require.NoError(t, p.SetStreamInfo(info))
	assert.True(t, p.SettingsValid())
	assert.Equal(t, info, p.Info())

	require.NoError(t, p.Open())
	assert.Equal(t, stream.Open, p.State())
	require.NoError(t, p.Start())
	assert.Equal(t, stream.Started, p.State())
	require.NoError(t, p.Stop())
	assert.Equal(t, stream.Stopped, p.State())
	require.NoError(t, p.Close())
	assert.Equal(t, stream.Closed, p.State())
	require.NoError(t, p.Close())
}

// framesSent reads the frames-sent counter from the registry.
func framesSent(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "mediax_rtp_frames_sent_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestCloseSendsEveryAcceptedFrame(t *testing.T) {
	info := infoFor(4, 4, colourspace.RGB24)
	info.Port = freePort(t)
	sink, err := net.ListenPacket("udp4", info.Address())
	require.NoError(t, err)
	defer sink.Close()

	m := metrics.New()
	p := NewPayloader(Options{Metrics: m, QueueDepth: 4})
	require.NoError(t, p.SetStreamInfo(info))
	require.NoError(t, p.Open())

	var accepted, unexpected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		blocking := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame := make([]byte, 48)
			for j := 0; j < 200; j++ {
				err := p.Transmit(frame, blocking)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, stream.ErrNotOpen):
					return
				default:
					unexpected.Add(1)
					return
				}
			}
		}()
	}

	require.Eventually(t, func() bool { return accepted.Load() >= 8 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Close())
	wg.Wait()

	assert.Zero(t, unexpected.Load())
	assert.Equal(t, float64(accepted.Load()), framesSent(t, m))
	assert.ErrorIs(t, p.Transmit(make([]byte, 48), false), stream.ErrNotOpen)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

package uncompressed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// Depayloader receives a raw video stream and reassembles frames.
type Depayloader struct {
	opts Options

	// lifeMu serialises Open, Start, Stop and Close.
	lifeMu   sync.Mutex
	conn     net.PacketConn
	stopChan chan struct{}
	wg       sync.WaitGroup

	// mu guards everything below, including the assembler buffers written by
	// the reception goroutine.
	mu       sync.Mutex
	info     stream.Info
	port     stream.Port
	state    stream.State
	asm      assembler
	callback stream.FrameCallback
}

var _ stream.Depayloader = (*Depayloader)(nil)

// NewDepayloader creates a closed depayloader.
func NewDepayloader(opts Options) *Depayloader {
	return &Depayloader{opts: opts.withDefaults()}
}

// SetStreamInfo stores the stream description and resizes the frame buffers.
// It may be called before or after Open.
func (d *Depayloader) SetStreamInfo(info stream.Info) error {
	logrus.WithFields(logrus.Fields{
		"function": "Depayloader.SetStreamInfo",
		"stream":   info.String(),
	}).Debug("Configuring depayloader")

	d.mu.Lock()
	defer d.mu.Unlock()

	d.info = info
	d.port.Configure(info)
	if !d.port.SettingsValid() {
		return nil
	}
	if err := info.Validate(); err != nil {
		d.port.Configure(stream.Info{})
		return err
	}
	return d.asm.resize(info)
}

// Info returns the current stream description.
func (d *Depayloader) Info() stream.Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// State returns the lifecycle state.
func (d *Depayloader) State() stream.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SettingsValid reports whether the depayloader has enough settings to open.
func (d *Depayloader) SettingsValid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.SettingsValid()
}

// SequenceNumber returns the frame sequence number of the last complete frame.
func (d *Depayloader) SequenceNumber() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asm.sequence
}

// RegisterCallback sets a function called for every completed frame while the
// depayloader is started. It replaces any previous callback.
func (d *Depayloader) RegisterCallback(cb stream.FrameCallback) {
	d.mu.Lock()
	d.callback = cb
	d.mu.Unlock()
}

// UnregisterCallback removes the frame callback.
func (d *Depayloader) UnregisterCallback() {
	d.RegisterCallback(nil)
}

// Open binds the ingress socket and joins the multicast group when the stream
// address is one. Socket failures match stream.ErrSocket.
func (d *Depayloader) Open() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	return d.open()
}

func (d *Depayloader) open() error {
	if d.conn != nil {
		return nil
	}

	d.mu.Lock()
	info := d.info
	valid := d.port.SettingsValid()
	d.mu.Unlock()

	if info.Port == 0 || !valid {
		logrus.WithFields(logrus.Fields{
			"function": "Depayloader.Open",
			"stream":   info.String(),
		}).Error("No port or stream settings, nothing to open")
		return fmt.Errorf("open depayloader: %w", stream.ErrNotConfigured)
	}

	conn, err := rtp.Listen(context.Background(), info.Hostname, info.Port, true)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Depayloader.Open",
			"address":  info.Address(),
		}).WithError(err).Error("Failed to open ingress socket")
		return stream.NewSocketError("listen", info.Address(), err)
	}

	d.conn = conn
	d.mu.Lock()
	d.port.Open = true
	d.state = stream.Open
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Depayloader.Open",
		"address":   info.Address(),
		"multicast": info.IsMulticast(),
	}).Info("Depayloader opened")
	return nil
}

// Start launches the reception goroutine. It is a no-op when already started.
func (d *Depayloader) Start() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.conn == nil {
		return fmt.Errorf("start depayloader: %w", stream.ErrNotOpen)
	}
	if d.stopChan != nil {
		return nil
	}

	d.stopChan = make(chan struct{})
	d.wg.Add(1)
	go d.receiveLoop(d.conn, d.stopChan)

	d.mu.Lock()
	d.state = stream.Started
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Depayloader.Start",
	}).Info("Depayloader started")
	return nil
}

// Stop signals the reception goroutine and waits for it to exit. The socket
// stays open so Start can resume cheaply.
func (d *Depayloader) Stop() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	d.stop()
	return nil
}

func (d *Depayloader) stop() {
	if d.stopChan == nil {
		return
	}
	close(d.stopChan)
	d.wg.Wait()
	d.stopChan = nil

	d.mu.Lock()
	d.state = stream.Stopped
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Depayloader.Stop",
	}).Info("Depayloader stopped")
}

// Close stops reception and releases the socket. Stream settings are kept for
// a later Open.
func (d *Depayloader) Close() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	d.stop()
	var err error
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}

	d.mu.Lock()
	d.port.Open = false
	d.state = stream.Closed
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Depayloader.Close",
	}).Info("Depayloader closed")
	return err
}

// Receive returns the next complete frame. When no frame is ready it polls
// until timeout elapses and then returns stream.ErrTimeout. A timeout <= 0
// checks once and does not wait; use ReceiveContext to wait indefinitely.
//
// A closed depayloader with valid settings is opened, as a convenience for
// callers that only receive.
func (d *Depayloader) Receive(timeout time.Duration) (stream.Frame, error) {
	if err := d.ensureOpen(); err != nil {
		return stream.Frame{}, err
	}

	deadline := time.Now().Add(timeout)
	for {
		if frame, ok := d.take(); ok {
			return frame, nil
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return stream.Frame{}, stream.ErrTimeout
		}
		time.Sleep(d.opts.PollInterval)
	}
}

// ReceiveContext waits for the next complete frame until ctx is done.
func (d *Depayloader) ReceiveContext(ctx context.Context) (stream.Frame, error) {
	if err := d.ensureOpen(); err != nil {
		return stream.Frame{}, err
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		if frame, ok := d.take(); ok {
			return frame, nil
		}
		select {
		case <-ctx.Done():
			return stream.Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Depayloader) ensureOpen() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	if d.conn != nil {
		return nil
	}
	return d.open()
}

func (d *Depayloader) take() (stream.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asm.take()
}

// receiveLoop reads datagrams until stopChan is closed.
func (d *Depayloader) receiveLoop(conn net.PacketConn, stopChan <-chan struct{}) {
	defer d.wg.Done()

	buf := make([]byte, rtp.MaxDatagram)
	for {
		select {
		case <-stopChan:
			return
		default:
		}

		n, err := d.readPacketData(conn, buf)
		if err != nil {
			if d.handleReadError(err) {
				return
			}
			continue
		}
		d.processPacket(buf[:n])
	}
}

func (d *Depayloader) readPacketData(conn net.PacketConn, buf []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(rtp.ReadTimeout)); err != nil {
		return 0, err
	}
	n, _, err := conn.ReadFrom(buf)
	return n, err
}

// handleReadError reports whether the loop must exit.
func (d *Depayloader) handleReadError(err error) bool {
	if rtp.IsTimeout(err) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	logrus.WithFields(logrus.Fields{
		"function": "Depayloader.receiveLoop",
	}).WithError(err).Warn("Read error")
	time.Sleep(rtp.ReadTimeout)
	return false
}

// processPacket reassembles one datagram and dispatches a completed frame.
func (d *Depayloader) processPacket(packet []byte) {
	d.opts.Metrics.IncPacketsReceived()

	d.mu.Lock()
	complete, err := d.asm.push(packet)
	var (
		cb    stream.FrameCallback
		frame stream.Frame
	)
	if complete && d.callback != nil && d.state == stream.Started {
		cb = d.callback
		frame = d.asm.frame()
	}
	d.mu.Unlock()

	if err != nil {
		d.opts.Metrics.IncPacketsDropped(dropReason(err))
		logrus.WithFields(logrus.Fields{
			"function": "Depayloader.processPacket",
			"size":     len(packet),
		}).WithError(err).Debug("Dropped packet")
		return
	}
	if !complete {
		return
	}

	d.opts.Metrics.IncFramesReceived()
	if cb != nil {
		cb(frame)
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, rtp.ErrForeignPacket):
		return metrics.DropForeign
	case errors.Is(err, errOutOfBounds):
		return metrics.DropBounds
	default:
		return metrics.DropMalformed
	}
}

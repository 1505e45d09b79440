package uncompressed

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// Payloader sends frames as a raw video stream. Frames are sent by a single
// worker goroutine so the packets of two frames never interleave.
type Payloader struct {
	opts Options

	// lifeMu serialises Open, Start, Stop and Close.
	lifeMu   sync.Mutex
	conn     net.PacketConn
	dest     net.Addr
	stamper  *rtp.Timestamper
	queue    chan *transmitJob
	stopChan chan struct{}
	wg       sync.WaitGroup

	// enqueueMu is read-held by Transmit from its open check to the enqueue
	// and write-held by Close while closing stopChan, so no frame is queued
	// after the worker has been told to exit.
	enqueueMu sync.RWMutex

	mu    sync.Mutex
	info  stream.Info
	port  stream.Port
	state stream.State

	packer   packetizer
	sequence atomic.Uint32
}

type transmitJob struct {
	info      stream.Info
	frame     []byte
	timestamp uint32
	done      chan error
}

var _ stream.Payloader = (*Payloader)(nil)

// NewPayloader creates a closed payloader.
func NewPayloader(opts Options) *Payloader {
	opts = opts.withDefaults()
	source := opts.Source
	if source == 0 {
		source = randomSource()
	}
	return &Payloader{
		opts:   opts,
		packer: packetizer{source: source},
	}
}

func randomSource() uint32 {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return rtp.DefaultSource
	}
	return binary.BigEndian.Uint32(b[:])
}

// SetStreamInfo stores the stream description. A change takes effect for the
// next Transmit call.
func (p *Payloader) SetStreamInfo(info stream.Info) error {
	logrus.WithFields(logrus.Fields{
		"function": "Payloader.SetStreamInfo",
		"stream":   info.String(),
	}).Debug("Configuring payloader")

	p.mu.Lock()
	defer p.mu.Unlock()

	p.info = info
	p.port.Configure(info)
	if !p.port.SettingsValid() {
		return nil
	}
	if err := info.Validate(); err != nil {
		p.port.Configure(stream.Info{})
		return err
	}
	return nil
}

// Info returns the current stream description.
func (p *Payloader) Info() stream.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// State returns the lifecycle state.
func (p *Payloader) State() stream.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SettingsValid reports whether the payloader has enough settings to open.
func (p *Payloader) SettingsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.SettingsValid()
}

// SequenceNumber returns the sequence number the next packet will carry.
func (p *Payloader) SequenceNumber() uint32 {
	return p.sequence.Load()
}

// Open creates the egress socket, resolves the destination and starts the
// transmit worker. The RTP clock origin is reset on every Open.
func (p *Payloader) Open() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.conn != nil {
		return nil
	}

	p.mu.Lock()
	info := p.info
	valid := p.port.SettingsValid()
	p.mu.Unlock()

	if info.Port == 0 || !valid {
		logrus.WithFields(logrus.Fields{
			"function": "Payloader.Open",
			"stream":   info.String(),
		}).Error("No port or stream settings, nothing to open")
		return fmt.Errorf("open payloader: %w", stream.ErrNotConfigured)
	}

	dest, err := net.ResolveUDPAddr("udp4", info.Address())
	if err != nil {
		return stream.NewSocketError("resolve", info.Address(), err)
	}
	conn, err := rtp.ListenConfig(false).ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Payloader.Open",
			"address":  info.Address(),
		}).WithError(err).Error("Failed to open egress socket")
		return stream.NewSocketError("listen", info.Address(), err)
	}
	if dest.IP.IsMulticast() {
		if err := rtp.SetMulticastOptions(conn, p.opts.MulticastTTL, true); err != nil {
			conn.Close()
			return stream.NewSocketError("setsockopt", info.Address(), err)
		}
	}

	p.conn = conn
	p.dest = dest
	p.stamper = rtp.NewTimestamper(p.opts.Clock)
	p.queue = make(chan *transmitJob, p.opts.QueueDepth)
	p.stopChan = make(chan struct{})
	p.wg.Add(1)
	go p.transmitLoop(conn, dest, p.queue, p.stopChan)

	p.mu.Lock()
	p.port.Open = true
	p.state = stream.Open
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Payloader.Open",
		"address":   info.Address(),
		"multicast": dest.IP.IsMulticast(),
	}).Info("Payloader opened")
	return nil
}

// Start marks the payloader started. Transmit is accepted in any open state.
func (p *Payloader) Start() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.conn == nil {
		return fmt.Errorf("start payloader: %w", stream.ErrNotOpen)
	}
	p.mu.Lock()
	p.state = stream.Started
	p.mu.Unlock()
	return nil
}

// Stop marks the payloader stopped.
func (p *Payloader) Stop() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.mu.Lock()
	if p.state == stream.Started {
		p.state = stream.Stopped
	}
	p.mu.Unlock()
	return nil
}

// Close stops the worker once every queued frame has been sent, then releases
// the socket.
func (p *Payloader) Close() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.conn == nil {
		return nil
	}
	p.enqueueMu.Lock()
	close(p.stopChan)
	p.enqueueMu.Unlock()
	p.wg.Wait()
	err := p.conn.Close()
	p.conn = nil
	p.queue = nil
	p.stopChan = nil

	p.mu.Lock()
	p.port.Open = false
	p.state = stream.Closed
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Payloader.Close",
	}).Info("Payloader closed")
	return err
}

// Transmit sends one frame. buf must hold height*width*bytesPerPixel bytes and
// is copied before Transmit returns. When blocking is true Transmit waits for
// the whole frame to be sent and returns the send result; otherwise it returns
// once the frame is queued, blocking only while the queue is full.
func (p *Payloader) Transmit(buf []byte, blocking bool) error {
	p.lifeMu.Lock()
	queue, stopChan, stamper := p.queue, p.stopChan, p.stamper
	p.lifeMu.Unlock()

	if queue == nil {
		return fmt.Errorf("transmit: %w", stream.ErrNotOpen)
	}

	info := p.Info()
	size, err := info.FrameSize()
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	if len(buf) < size {
		return fmt.Errorf("transmit: %w: have %d bytes, need %d", stream.ErrBufferSize, len(buf), size)
	}
	timestamp, err := stamper.Timestamp()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Payloader.Transmit",
		}).WithError(err).Error("Frame not sent")
		return fmt.Errorf("transmit: %w", err)
	}

	job := &transmitJob{
		info:      info,
		frame:     append([]byte(nil), buf[:size]...),
		timestamp: timestamp,
		done:      make(chan error, 1),
	}
	if err := p.enqueue(queue, stopChan, job); err != nil {
		return err
	}
	if !blocking {
		return nil
	}
	// The worker drains the queue before exiting, so an accepted job always
	// gets a result.
	return <-job.done
}

// enqueue hands job to the worker unless Close has already stopped it.
func (p *Payloader) enqueue(queue chan<- *transmitJob, stopChan <-chan struct{}, job *transmitJob) error {
	p.enqueueMu.RLock()
	defer p.enqueueMu.RUnlock()

	select {
	case <-stopChan:
		return fmt.Errorf("transmit: %w", stream.ErrNotOpen)
	default:
	}
	// stopChan cannot close while the read lock is held; the worker keeps
	// draining the queue, so this send cannot block forever.
	queue <- job
	return nil
}

// transmitLoop sends queued frames until stopChan is closed, then sends
// whatever is still queued.
func (p *Payloader) transmitLoop(conn net.PacketConn, dest net.Addr, queue <-chan *transmitJob, stopChan <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-stopChan:
			for {
				select {
				case job := <-queue:
					job.done <- p.sendFrame(conn, dest, job)
				default:
					return
				}
			}
		case job := <-queue:
			job.done <- p.sendFrame(conn, dest, job)
		}
	}
}

// sendFrame sends every line of one frame. A failed send aborts the rest of
// the frame; the next frame starts fresh.
func (p *Payloader) sendFrame(conn net.PacketConn, dest net.Addr, job *transmitJob) error {
	sent := 0
	err := p.packer.packets(job.info, job.frame, job.timestamp, func(packet []byte) error {
		n, err := conn.WriteTo(packet, dest)
		if err != nil {
			return err
		}
		if n != len(packet) {
			return fmt.Errorf("short write: %d of %d bytes", n, len(packet))
		}
		sent++
		return nil
	})
	p.sequence.Store(p.packer.sequence)
	p.opts.Metrics.AddPacketsSent(sent)

	if err != nil {
		p.opts.Metrics.IncSendErrors()
		logrus.WithFields(logrus.Fields{
			"function": "Payloader.sendFrame",
			"address":  dest.String(),
			"sent":     sent,
		}).WithError(err).Error("Transmit socket failure, frame aborted")
		return fmt.Errorf("send frame: %w", err)
	}

	p.opts.Metrics.IncFramesSent()
	logrus.WithFields(logrus.Fields{
		"function":  "Payloader.sendFrame",
		"lines":     sent,
		"timestamp": job.timestamp,
	}).Debug("Frame sent")
	return nil
}

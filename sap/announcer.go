package sap

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mediax/metrics"
	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// Announcer periodically multicasts a SAP announcement for every stream it
// holds. Deleted streams stay in the registry, silent, until Restart,
// UndeleteAnnouncement or DeleteAllAnnouncements.
type Announcer struct {
	cfg  Config
	conn net.PacketConn
	dest net.Addr

	mu      sync.Mutex
	streams []stream.Info
	source  net.IP

	// sendMu is held from reading an entry's deleted flag until its packet is
	// on the wire, so a live announce never follows that stream's deletion.
	// Lock order: sendMu before mu.
	sendMu sync.Mutex

	// lifeMu serialises Start, Stop and Close.
	lifeMu   sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAnnouncer creates the SAP egress socket and selects the first
// non-loopback interface as the originating source. Socket failures match
// stream.ErrSocket.
func NewAnnouncer(cfg Config) (*Announcer, error) {
	cfg = cfg.withDefaults()

	conn, err := rtp.ListenConfig(false).ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewAnnouncer",
		}).WithError(err).Error("Failed to create SAP socket")
		return nil, stream.NewSocketError("listen", cfg.groupAddress(), err)
	}
	if ip := net.ParseIP(cfg.Address); ip != nil && ip.IsMulticast() {
		if err := rtp.SetMulticastOptions(conn, cfg.TTL, true); err != nil {
			conn.Close()
			return nil, stream.NewSocketError("setsockopt", cfg.groupAddress(), err)
		}
	}

	a, err := NewAnnouncerWithConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// NewAnnouncerWithConn creates an announcer that sends on conn, which it owns
// from then on.
func NewAnnouncerWithConn(conn net.PacketConn, cfg Config) (*Announcer, error) {
	cfg = cfg.withDefaults()
	dest, err := net.ResolveUDPAddr("udp4", cfg.groupAddress())
	if err != nil {
		return nil, stream.NewSocketError("resolve", cfg.groupAddress(), err)
	}

	a := &Announcer{
		cfg:    cfg,
		conn:   conn,
		dest:   dest,
		source: net.IPv4zero,
	}
	if err := a.SetSourceInterface(0); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewAnnouncerWithConn",
		}).WithError(err).Warn("No source interface, announcing from 0.0.0.0")
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewAnnouncerWithConn",
		"group":    cfg.groupAddress(),
		"source":   a.SourceAddress().String(),
	}).Info("SAP announcer created")
	return a, nil
}

// AddAnnouncement adds a stream, replacing any stream with the same session
// name.
func (a *Announcer) AddAnnouncement(info stream.Info) {
	logrus.WithFields(logrus.Fields{
		"function": "Announcer.AddAnnouncement",
		"stream":   info.String(),
	}).Info("Adding SAP announcement")

	a.mu.Lock()
	replaced := false
	for i := range a.streams {
		if a.streams[i].SessionName == info.SessionName {
			a.streams[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		a.streams = append(a.streams, info)
	}
	a.mu.Unlock()

	a.updateGauge()
}

// DeleteAnnouncement marks a stream deleted and sends one SAP deletion for it.
// Deleting an already deleted stream sends nothing.
func (a *Announcer) DeleteAnnouncement(name string) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	var (
		info  stream.Info
		found bool
		send  bool
	)
	for i := range a.streams {
		if a.streams[i].SessionName == name {
			found = true
			send = !a.streams[i].Deleted
			a.streams[i].Deleted = true
			info = a.streams[i]
			break
		}
	}
	source := a.source
	a.mu.Unlock()

	if !found {
		return ErrStreamNotFound
	}
	if send {
		a.send(info, source, true)
		a.updateGauge()
	}
	return nil
}

// UndeleteAnnouncement resumes announcing a deleted stream.
func (a *Announcer) UndeleteAnnouncement(name string) error {
	a.mu.Lock()
	found := false
	for i := range a.streams {
		if a.streams[i].SessionName == name {
			a.streams[i].Deleted = false
			found = true
			break
		}
	}
	a.mu.Unlock()

	if !found {
		return ErrStreamNotFound
	}
	a.updateGauge()
	return nil
}

// DeleteAll sends a deletion for every live stream and marks them all deleted.
func (a *Announcer) DeleteAll() {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	var live []stream.Info
	for i := range a.streams {
		if !a.streams[i].Deleted {
			a.streams[i].Deleted = true
			live = append(live, a.streams[i])
		}
	}
	source := a.source
	a.mu.Unlock()

	for _, info := range live {
		a.send(info, source, true)
	}
	a.updateGauge()
}

// DeleteAllAnnouncements removes every stream from the registry without
// sending deletions.
func (a *Announcer) DeleteAllAnnouncements() {
	a.mu.Lock()
	a.streams = nil
	a.mu.Unlock()
	a.updateGauge()
}

// Restart clears the deleted flag of every stream. No packets are sent until
// the next broadcast cycle.
func (a *Announcer) Restart() {
	a.mu.Lock()
	for i := range a.streams {
		a.streams[i].Deleted = false
	}
	a.mu.Unlock()
	a.updateGauge()
}

// Streams returns a copy of the registry.
func (a *Announcer) Streams() []stream.Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stream.Info(nil), a.streams...)
}

// ActiveStreamCount returns the number of streams not marked deleted.
func (a *Announcer) ActiveStreamCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.streams {
		if !s.Deleted {
			n++
		}
	}
	return n
}

// SetSourceInterface selects the index-th non-loopback IPv4 address as the
// originating source of every announcement.
func (a *Announcer) SetSourceInterface(index int) error {
	list, err := a.cfg.Interfaces()
	if err != nil {
		return err
	}
	ifa, err := selectInterface(list, index)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.source = ifa.IP
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Announcer.SetSourceInterface",
		"interface": ifa.Name,
		"address":   ifa.IP.String(),
	}).Debug("Selected SAP source interface")
	return nil
}

// SourceAddress returns the originating source address.
func (a *Announcer) SourceAddress() net.IP {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source
}

// ListInterfaces returns the addresses SetSourceInterface can select from,
// logging each with the current selection marked.
func (a *Announcer) ListInterfaces() ([]InterfaceAddr, error) {
	list, err := a.cfg.Interfaces()
	if err != nil {
		return nil, err
	}
	source := a.SourceAddress()
	for i, ifa := range list {
		logrus.WithFields(logrus.Fields{
			"function":  "Announcer.ListInterfaces",
			"index":     i,
			"interface": ifa.Name,
			"address":   ifa.IP.String(),
			"selected":  ifa.IP.Equal(source),
		}).Info("Interface")
	}
	return list, nil
}

// Start launches the broadcast goroutine and returns once it is running. It is
// a no-op when already started.
func (a *Announcer) Start() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	if a.stopChan != nil {
		return
	}
	a.stopChan = make(chan struct{})
	ready := make(chan struct{})
	a.wg.Add(1)
	go a.broadcastLoop(a.stopChan, ready)
	<-ready

	logrus.WithFields(logrus.Fields{
		"function": "Announcer.Start",
		"interval": a.cfg.Interval,
	}).Info("SAP announcer started")
}

// Stop stops the broadcast goroutine and sends deletions for every live
// stream. The streams stay registered, marked deleted, for Restart.
func (a *Announcer) Stop() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()

	if a.stopChan != nil {
		close(a.stopChan)
		a.wg.Wait()
		a.stopChan = nil

		logrus.WithFields(logrus.Fields{
			"function": "Announcer.Stop",
		}).Info("SAP announcer stopped")
	}
	a.DeleteAll()
}

// Close stops the announcer and releases its socket.
func (a *Announcer) Close() error {
	a.Stop()
	return a.conn.Close()
}

// broadcastLoop announces every live stream immediately and then once per
// interval.
func (a *Announcer) broadcastLoop(stopChan <-chan struct{}, ready chan<- struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	close(ready)

	a.announceAll()
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			a.announceAll()
		}
	}
}

func (a *Announcer) announceAll() {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	var live []stream.Info
	for _, s := range a.streams {
		if !s.Deleted {
			live = append(live, s)
		}
	}
	source := a.source
	a.mu.Unlock()

	for _, info := range live {
		a.send(info, source, false)
	}
}

// send builds and sends one SAP packet. Failures are logged; announcing is
// best effort.
func (a *Announcer) send(info stream.Info, source net.IP, deletion bool) {
	kind := metrics.SAPAnnounce
	if deletion {
		kind = metrics.SAPDelete
	}

	packet, err := BuildAnnouncement(info, source, deletion)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Announcer.send",
			"session":  info.SessionName,
			"type":     kind,
		}).WithError(err).Warn("Failed to build SAP packet")
		return
	}
	if _, err := a.conn.WriteTo(packet, a.dest); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Announcer.send",
			"session":  info.SessionName,
			"type":     kind,
			"group":    a.dest.String(),
		}).WithError(err).Warn("Failed to send SAP packet")
		return
	}
	a.cfg.Metrics.IncAnnouncementsSent(kind)

	logrus.WithFields(logrus.Fields{
		"function": "Announcer.send",
		"session":  info.SessionName,
		"type":     kind,
	}).Debug("Sent SAP packet")
}

func (a *Announcer) updateGauge() {
	a.cfg.Metrics.SetActiveStreams(a.ActiveStreamCount())
}

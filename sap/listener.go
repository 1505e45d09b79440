package sap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/mediax/rtp"
	"github.com/opd-ai/mediax/stream"
)

// Callback is invoked from the listener goroutine for every announcement of
// the session it was registered for.
type Callback func(name string, a Announcement)

// Listener receives SAP packets and keeps the latest announcement per session
// name.
type Listener struct {
	cfg  Config
	conn net.PacketConn

	mu            sync.Mutex
	announcements map[string]Announcement
	callbacks     map[string]Callback
	changed       chan struct{}

	// lifeMu serialises Start, Stop and Close.
	lifeMu   sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewListener binds the SAP port and joins the SAP group. Socket failures
// match stream.ErrSocket.
func NewListener(cfg Config) (*Listener, error) {
	cfg = cfg.withDefaults()

	conn, err := rtp.Listen(context.Background(), cfg.Address, cfg.Port, true)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewListener",
			"group":    cfg.groupAddress(),
		}).WithError(err).Error("Failed to open SAP socket")
		return nil, stream.NewSocketError("listen", cfg.groupAddress(), err)
	}
	return NewListenerWithConn(conn, cfg), nil
}

// NewListenerWithConn creates a listener reading from conn, which it owns from
// then on.
func NewListenerWithConn(conn net.PacketConn, cfg Config) *Listener {
	cfg = cfg.withDefaults()
	logrus.WithFields(logrus.Fields{
		"function": "NewListenerWithConn",
		"group":    cfg.groupAddress(),
	}).Info("SAP listener created")

	return &Listener{
		cfg:           cfg,
		conn:          conn,
		announcements: make(map[string]Announcement),
		callbacks:     make(map[string]Callback),
		changed:       make(chan struct{}),
	}
}

// RegisterCallback calls cb for announcements of the named session. A
// callback registered for the empty name is called for every announcement.
func (l *Listener) RegisterCallback(name string, cb Callback) {
	logrus.WithFields(logrus.Fields{
		"function": "Listener.RegisterCallback",
		"session":  name,
	}).Debug("Registering SAP callback")

	l.mu.Lock()
	l.callbacks[name] = cb
	l.mu.Unlock()
}

// UnregisterCallback removes the callback for the named session.
func (l *Listener) UnregisterCallback(name string) {
	l.mu.Lock()
	delete(l.callbacks, name)
	l.mu.Unlock()
}

// GetStreamInformation returns the last announced description of a session.
func (l *Listener) GetStreamInformation(name string) (stream.Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.announcements[name]
	if !ok {
		return stream.Info{}, fmt.Errorf("%w: %q", ErrStreamNotFound, name)
	}
	return a.StreamInfo(), nil
}

// Announcements returns a copy of the latest announcement per session name.
func (l *Listener) Announcements() map[string]Announcement {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Announcement, len(l.announcements))
	for k, v := range l.announcements {
		out[k] = v
	}
	return out
}

// WaitForStream blocks until a live announcement for the named session has
// been received or ctx is done.
func (l *Listener) WaitForStream(ctx context.Context, name string) (stream.Info, error) {
	for {
		l.mu.Lock()
		a, ok := l.announcements[name]
		changed := l.changed
		l.mu.Unlock()

		if ok && !a.Deleted {
			return a.StreamInfo(), nil
		}
		select {
		case <-ctx.Done():
			return stream.Info{}, ctx.Err()
		case <-changed:
		}
	}
}

// Start launches the polling goroutine. It is a no-op when already started.
func (l *Listener) Start() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	if l.stopChan != nil {
		return
	}
	l.stopChan = make(chan struct{})
	l.wg.Add(1)
	go l.receiveLoop(l.stopChan)

	logrus.WithFields(logrus.Fields{
		"function": "Listener.Start",
	}).Info("SAP listener started")
}

// Stop signals the polling goroutine and waits for it to exit.
func (l *Listener) Stop() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	if l.stopChan == nil {
		return
	}
	close(l.stopChan)
	l.wg.Wait()
	l.stopChan = nil

	logrus.WithFields(logrus.Fields{
		"function": "Listener.Stop",
	}).Info("SAP listener stopped")
}

// Close stops the listener and releases its socket.
func (l *Listener) Close() error {
	l.Stop()
	return l.conn.Close()
}

func (l *Listener) receiveLoop(stopChan <-chan struct{}) {
	defer l.wg.Done()

	buf := make([]byte, rtp.MaxDatagram)
	for {
		select {
		case <-stopChan:
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Listener.receiveLoop",
			}).WithError(err).Warn("Failed to set read deadline")
			return
		}
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if rtp.IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "Listener.receiveLoop",
			}).WithError(err).Warn("SAP read error")
			continue
		}
		l.processPacket(buf[:n], addr)
	}
}

// processPacket stores one announcement and runs the matching callbacks.
// Packets that fail to parse are dropped.
func (l *Listener) processPacket(packet []byte, addr net.Addr) {
	a, err := ParseAnnouncement(packet)
	if err != nil {
		l.cfg.Metrics.IncAnnouncementsDropped()
		logrus.WithFields(logrus.Fields{
			"function": "Listener.processPacket",
			"from":     addrString(addr),
		}).WithError(err).Debug("Dropped SAP packet")
		return
	}
	l.cfg.Metrics.IncAnnouncementsReceived()

	l.mu.Lock()
	l.announcements[a.SessionName] = a
	close(l.changed)
	l.changed = make(chan struct{})
	var callbacks []Callback
	if cb, ok := l.callbacks[a.SessionName]; ok {
		callbacks = append(callbacks, cb)
	}
	if cb, ok := l.callbacks[""]; ok && a.SessionName != "" {
		callbacks = append(callbacks, cb)
	}
	live := 0
	for _, s := range l.announcements {
		if !s.Deleted {
			live++
		}
	}
	l.mu.Unlock()

	l.cfg.Metrics.SetActiveStreams(live)
	logrus.WithFields(logrus.Fields{
		"function": "Listener.processPacket",
		"session":  a.SessionName,
		"address":  a.Address,
		"port":     a.Port,
		"deleted":  a.Deleted,
	}).Debug("Stored SAP announcement")

	for _, cb := range callbacks {
		cb(a.SessionName, a)
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

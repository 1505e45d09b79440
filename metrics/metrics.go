// Package metrics holds the Prometheus counters shared by the RTP engines and
// the SAP announcer and listener. A nil *Metrics is valid and records nothing,
// so library users that do not scrape metrics pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons a received RTP packet is dropped.
const (
	DropForeign   = "foreign"
	DropMalformed = "malformed"
	DropBounds    = "bounds"
)

// SAP packet types.
const (
	SAPAnnounce = "announce"
	SAPDelete   = "delete"
)

// Metrics holds Prometheus counters and gauges for the video transports.
type Metrics struct {
	registry              *prometheus.Registry
	packetsReceived       prometheus.Counter
	packetsDropped        *prometheus.CounterVec
	framesReceived        prometheus.Counter
	packetsSent           prometheus.Counter
	framesSent            prometheus.Counter
	sendErrors            prometheus.Counter
	announcementsSent     *prometheus.CounterVec
	announcementsReceived prometheus.Counter
	announcementsDropped  prometheus.Counter
	activeStreams         prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	packetsReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_rtp_packets_received_total",
		Help: "Total number of RTP datagrams read by depayloaders",
	})
	packetsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediax_rtp_packets_dropped_total",
		Help: "Total number of RTP datagrams discarded by depayloaders",
	}, []string{"reason"})
	framesReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_rtp_frames_received_total",
		Help: "Total number of frames completed by a marker bit",
	})
	packetsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_rtp_packets_sent_total",
		Help: "Total number of RTP datagrams sent by payloaders",
	})
	framesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_rtp_frames_sent_total",
		Help: "Total number of frames fully sent by payloaders",
	})
	sendErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_rtp_send_errors_total",
		Help: "Total number of frames aborted by a socket send failure",
	})
	announcementsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediax_sap_announcements_sent_total",
		Help: "Total number of SAP packets sent",
	}, []string{"type"})
	announcementsReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_sap_announcements_received_total",
		Help: "Total number of SAP announcements parsed by listeners",
	})
	announcementsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediax_sap_announcements_dropped_total",
		Help: "Total number of SAP datagrams that failed to parse",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mediax_sap_active_streams",
		Help: "Number of streams currently announced or discovered",
	})

	registry.MustRegister(
		packetsReceived,
		packetsDropped,
		framesReceived,
		packetsSent,
		framesSent,
		sendErrors,
		announcementsSent,
		announcementsReceived,
		announcementsDropped,
		activeStreams,
	)

	return &Metrics{
		registry:              registry,
		packetsReceived:       packetsReceived,
		packetsDropped:        packetsDropped,
		framesReceived:        framesReceived,
		packetsSent:           packetsSent,
		framesSent:            framesSent,
		sendErrors:            sendErrors,
		announcementsSent:     announcementsSent,
		announcementsReceived: announcementsReceived,
		announcementsDropped:  announcementsDropped,
		activeStreams:         activeStreams,
	}
}

// IncPacketsReceived increments the received packet counter.
func (m *Metrics) IncPacketsReceived() {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
}

// IncPacketsDropped increments the dropped packet counter for reason.
func (m *Metrics) IncPacketsDropped(reason string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(reason).Inc()
}

// IncFramesReceived increments the received frame counter.
func (m *Metrics) IncFramesReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// AddPacketsSent adds n to the sent packet counter.
func (m *Metrics) AddPacketsSent(n int) {
	if m == nil {
		return
	}
	m.packetsSent.Add(float64(n))
}

// IncFramesSent increments the sent frame counter.
func (m *Metrics) IncFramesSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

// IncSendErrors increments the send error counter.
func (m *Metrics) IncSendErrors() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// IncAnnouncementsSent increments the SAP sent counter for kind.
func (m *Metrics) IncAnnouncementsSent(kind string) {
	if m == nil {
		return
	}
	m.announcementsSent.WithLabelValues(kind).Inc()
}

// IncAnnouncementsReceived increments the SAP received counter.
func (m *Metrics) IncAnnouncementsReceived() {
	if m == nil {
		return
	}
	m.announcementsReceived.Inc()
}

// IncAnnouncementsDropped increments the SAP dropped counter.
func (m *Metrics) IncAnnouncementsDropped() {
	if m == nil {
		return
	}
	m.announcementsDropped.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	if m == nil {
		return
	}
	m.activeStreams.Set(float64(n))
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

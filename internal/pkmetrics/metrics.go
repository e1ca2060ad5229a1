// Package pkmetrics exposes the pK daemon's Prometheus metrics. Metrics
// are package-level and registered against the default registerer at
// import time via promauto; the admin HTTP surface serves them.
package pkmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsOpened counts every TCP connection ever accepted.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_sessions_opened_total",
		Help: "Total client connections accepted since startup.",
	})

	// SessionsActive tracks currently connected clients.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pk_sessions_active",
		Help: "Number of currently connected client sessions.",
	})

	// PortsOpen tracks currently open ports across all sessions.
	PortsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pk_ports_open",
		Help: "Number of currently open ports across all sessions.",
	})

	// DuplicatePortTotal counts OpenPort requests rejected because the
	// requested port was already claimed.
	DuplicatePortTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_open_port_duplicate_total",
		Help: "Total OpenPort requests rejected due to the port already being claimed.",
	})

	// BadDestinationTotal counts SendMessage frames dropped because their
	// destination port did not exist. The protocol sends no negative ack
	// for these; this counter and a debug log line are the only trace
	// they leave.
	BadDestinationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_router_bad_destination_total",
		Help: "Total messages dropped because their destination port did not exist.",
	})

	// MessagesDelivered counts successful SendMessage -> DeliverMessage
	// forwards.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pk_messages_delivered_total",
		Help: "Total messages successfully forwarded to a destination session.",
	})
)

// OutboundBacklogBytes is a gauge vec keyed by session id, reporting each
// session's unflushed outbound byte count. The outbound buffer itself is
// unbounded, so a stalled peer shows up here rather than as an error.
var OutboundBacklogBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pk_session_outbound_backlog_bytes",
	Help: "Unflushed outbound bytes currently staged for a session.",
}, []string{"session_id"})

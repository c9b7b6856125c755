// Package metrics exposes the broker's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of registered sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_sessions",
		Help:      "Number of registered sessions.",
	})

	// ConnectedClients tracks the number of open WebSocket connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "connected_clients",
		Help:      "Number of open WebSocket connections.",
	})

	// EventsBroadcast counts session events fanned out to subscribers.
	EventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "events_broadcast_total",
		Help:      "Session events delivered to subscribers.",
	})

	// AdapterFailures counts turns that ended in an adapter error.
	AdapterFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "adapter_failures_total",
		Help:      "Work unit turns that failed.",
	})

	// FramesRejected counts inbound frames rejected as malformed or
	// unrecognized.
	FramesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_rejected_total",
		Help:      "Inbound frames rejected by the gateway.",
	})
)

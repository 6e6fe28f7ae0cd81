package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call signaling metrics
var (
	// SignalConnectionsActive tracks the number of currently connected signaling sockets
	SignalConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_connections_active",
		Help: "Number of active signaling WebSocket connections",
	})

	// SignalMessagesRouted counts signaling messages routed through the hub by type
	SignalMessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_messages_routed_total",
		Help: "Total number of signaling messages routed, by message type",
	}, []string{"type"})

	// SignalMessagesDropped counts signaling messages that could not be delivered
	SignalMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_messages_dropped_total",
		Help: "Total number of signaling messages dropped, by reason",
	}, []string{"reason"})

	// CallsInitiated counts call attempts started through the hub
	CallsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calls_initiated_total",
		Help: "Total number of call-initiate messages routed",
	})

	// CallOutcomes counts call attempts by final outcome
	CallOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_outcomes_total",
		Help: "Total number of completed call attempts, by outcome",
	}, []string{"outcome"})

	// ConsultationsRecorded counts post-consultation forms persisted
	ConsultationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consultations_recorded_total",
		Help: "Total number of post-consultation records persisted",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of active charge point WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_connections",
		Help: "The total number of active charge point connections.",
	})

	// FramesReceived counts inbound frames by message type (Call, CallResult, CallError, invalid).
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_frames_received_total",
		Help: "Total number of OCPP-J frames received from charge points.",
	}, []string{"message_type"})

	// CallsDispatched counts inbound Calls by action and outcome (result or CallError code).
	CallsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_calls_dispatched_total",
		Help: "Total number of inbound Calls dispatched, by action and outcome.",
	}, []string{"action", "outcome"})

	// HandlerDuration observes handler execution time per action.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_handler_duration_seconds",
		Help:    "Histogram of inbound Call handler execution times.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"action"})

	// OutboundCalls counts Calls sent to charge points by action and outcome.
	OutboundCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_outbound_calls_total",
		Help: "Total number of outbound Calls, by action and outcome.",
	}, []string{"action", "outcome"})

	// UnsolicitedResponses counts CallResult/CallError frames that matched no pending Call.
	UnsolicitedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_unsolicited_responses_total",
		Help: "Total number of responses that did not match the pending outbound Call.",
	})

	// EventsPublished counts the total number of events published to Kafka, labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_events_published_total",
		Help: "Total number of events published to the message broker.",
	}, []string{"event_type"})

	// CommandsConsumed counts the total number of commands consumed from Kafka, labeled by action.
	CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_commands_consumed_total",
		Help: "Total number of commands consumed from the message broker.",
	}, []string{"action"})
)

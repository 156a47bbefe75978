package ingester

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesReceivedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ingester_frames_received_total",
	Help: "Raw frames read from the upstream stream",
})

var eventsReceivedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingester_events_received_total",
	Help: "Decoded events by kind",
}, []string{"kind"})

var eventsHandledCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingester_events_handled_total",
	Help: "Events handled successfully by kind",
}, []string{"kind"})

var eventsFailedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingester_events_failed_total",
	Help: "Events whose handler returned an error, by kind",
}, []string{"kind"})

var eventsSkippedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingester_events_skipped_total",
	Help: "Events deliberately skipped, by cause",
}, []string{"cause"})

var usersCreatedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ingester_user_stubs_created_total",
	Help: "User stubs lazily created for newly-observed identities",
})

var cursorSeqGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ingester_cursor_seq",
	Help: "Last persisted stream cursor sequence",
})

var connStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ingester_connection_state",
	Help: "Stream connection state (0 disconnected, 1 connecting, 2 connected, 3 stopping)",
})

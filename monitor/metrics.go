package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "termwatch_monitor_messages_processed_total",
	Help: "Total number of channel messages run through term matching",
}, []string{"source"})

var hitsDetected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_hits_total",
	Help: "Total number of banned-term hits detected",
})

var ingestThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "termwatch_monitor_ingest_throttled_total",
	Help: "Push events dropped by the per-account ingest rate guard",
}, []string{"account"})

var streamErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_stream_errors_total",
	Help: "Total number of push event stream breaks",
})

var reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_reconnect_attempts_total",
	Help: "Total number of session reconnect attempts",
})

var reconnectGivenUp = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_reconnect_given_up_total",
	Help: "Total number of accounts abandoned after exhausting reconnects",
})

var connectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "termwatch_monitor_connected_sessions",
	Help: "Number of account sessions currently connected",
})

var pollCycles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_poll_cycles_total",
	Help: "Total number of completed poll sweeps",
})

var pollSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_poll_skipped_total",
	Help: "Poll ticks skipped because the previous sweep was still running",
})

var pollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_monitor_poll_errors_total",
	Help: "Per-channel fetch failures during poll sweeps",
})

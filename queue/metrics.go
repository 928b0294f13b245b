package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_queue_actions_enqueued_total",
	Help: "Total number of report actions admitted to the queue",
})

var actionsDispatched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_queue_actions_dispatched_total",
	Help: "Total number of report actions successfully dispatched",
})

var actionsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "termwatch_queue_actions_failed_total",
	Help: "Total number of report dispatch attempts that returned an error",
})

var actionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "termwatch_queue_actions_dropped_total",
	Help: "Total number of report actions dropped before dispatch",
}, []string{"reason"})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "termwatch_queue_depth",
	Help: "Current number of pending report actions",
})

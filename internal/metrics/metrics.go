// Package metrics содержит счетчики конвейера событий.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsIngested      prometheus.Counter
	EventsDuplicated    prometheus.Counter
	EventsMalformed     prometheus.Counter
	EnrichmentFailures  prometheus.Counter
	DeliveriesSucceeded prometheus.Counter
	DeliveriesRetried   prometheus.Counter
	DeliveriesFailed    prometheus.Counter
	TasksReclaimed      prometheus.Counter
	TasksDrained        prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_ingested_total",
			Help: "Events stored by the bus bridge.",
		}),
		EventsDuplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_duplicated_total",
			Help: "Bus messages skipped as duplicates by producer id.",
		}),
		EventsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_malformed_total",
			Help: "Bus messages discarded because they could not be parsed.",
		}),
		EnrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_enrichment_failures_total",
			Help: "Detector enrichment calls that failed or timed out.",
		}),
		DeliveriesSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_succeeded_total",
			Help: "Delivery tasks completed with a 2xx response.",
		}),
		DeliveriesRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_retried_total",
			Help: "Delivery attempts that failed and were scheduled for retry.",
		}),
		DeliveriesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_failed_total",
			Help: "Delivery tasks that exhausted the retry budget.",
		}),
		TasksReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_tasks_reclaimed_total",
			Help: "Stuck in-flight tasks reset to retrying by the scheduler.",
		}),
		TasksDrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_tasks_drained_total",
			Help: "Tasks terminally closed because their endpoint was disabled or removed.",
		}),
	}
}

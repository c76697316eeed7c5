package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// One observation per recipient attempt.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_deliveries_total",
			Help: "Per-recipient delivery attempts by provider and outcome",
		},
		[]string{"provider", "outcome", "kind"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_send_duration_seconds",
			Help:    "Duration of a single provider send",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"provider"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_dispatch_duration_seconds",
			Help:    "Duration of a full campaign dispatch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"operation"},
	)

	DispatchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_dispatches_in_flight",
			Help: "Dispatches currently running in this process",
		},
	)

	QueuePublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_publish_total",
			Help: "Messages published per topic and result",
		},
		[]string{"topic", "result"},
	)
)

// RecordDelivery records the outcome of one recipient attempt.
func RecordDelivery(provider string, success bool, kind string, took time.Duration) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	DeliveriesTotal.WithLabelValues(provider, outcome, kind).Inc()
	if took > 0 {
		SendDuration.WithLabelValues(provider).Observe(took.Seconds())
	}
}

// TrackDispatch marks a dispatch in flight and returns the function that
// records its duration.
func TrackDispatch(operation string) func() {
	start := time.Now()
	DispatchesInFlight.Inc()
	return func() {
		DispatchesInFlight.Dec()
		DispatchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func RecordPublish(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	QueuePublishTotal.WithLabelValues(topic, result).Inc()
}

package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages handled successfully by the recommendation consumer.",
	}, []string{"topic", "event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "messages_failed_total",
		Help:      "Number of Kafka messages whose handling failed and were committed anyway.",
	}, []string{"topic", "event_type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "messages_rejected_total",
		Help:      "Number of Kafka messages rejected before entering the pipeline.",
	}, []string{"topic", "reason"})

	fetchErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "fetch_errors_total",
		Help:      "Number of failed Kafka fetches.",
	})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Timestamp of the most recent Kafka message processed.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, failedCounter, rejectedCounter, fetchErrorCounter, lastMessageGauge)
}

// RecordProcessed updates counters for successfully handled messages.
func RecordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.Headers["event_type"]).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

// RecordFailed counts a message whose handler returned an error.
func RecordFailed(msg Message) {
	failedCounter.WithLabelValues(msg.Topic, msg.Headers["event_type"]).Inc()
}

// RecordRejected counts a message dropped before the pipeline, e.g. a missing identifier.
func RecordRejected(msg Message, reason string) {
	rejectedCounter.WithLabelValues(msg.Topic, reason).Inc()
}

func recordFetchError() {
	fetchErrorCounter.Inc()
}

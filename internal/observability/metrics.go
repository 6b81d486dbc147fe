// Package observability holds process-wide metrics and tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recommendationPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "persistence",
		Name:      "last_recommendation_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recommendation persisted.",
	})
	recommendationPersistedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "persistence",
		Name:      "recommendations_persisted_total",
		Help:      "Recommendations persisted, partitioned by store driver.",
	}, []string{"driver"})
)

func init() {
	prometheus.MustRegister(recommendationPersistGauge, recommendationPersistedCounter)
}

// RecordRecommendationPersisted updates the persistence watermark gauge.
func RecordRecommendationPersisted(driver string, ts time.Time) {
	recommendationPersistedCounter.WithLabelValues(driver).Inc()
	if ts.IsZero() {
		return
	}
	recommendationPersistGauge.Set(float64(ts.Unix()))
}

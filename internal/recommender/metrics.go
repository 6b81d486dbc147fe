package recommender

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "pipeline",
		Name:      "stage_transitions_total",
		Help:      "Messages reaching each pipeline stage.",
	}, []string{"stage"})

	oracleLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recommendation_service",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Latency of oracle calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"outcome"})

	parseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "parser",
		Name:      "results_total",
		Help:      "Parsed oracle responses by result and degradation reason.",
	}, []string{"result", "reason"})

	duplicateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "pipeline",
		Name:      "duplicates_skipped_total",
		Help:      "Redelivered activities skipped by the redelivery guard.",
	})
)

func init() {
	prometheus.MustRegister(stageCounter, oracleLatency, parseCounter, duplicateCounter)
}

func recordStage(stage string) {
	stageCounter.WithLabelValues(stage).Inc()
}

func observeOracle(elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	oracleLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func recordParse(degraded bool, reason string) {
	result := "ok"
	if degraded {
		result = "degraded"
	}
	parseCounter.WithLabelValues(result, reason).Inc()
}

func recordDuplicate() {
	duplicateCounter.Inc()
}

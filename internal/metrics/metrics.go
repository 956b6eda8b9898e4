package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascade",
		Name:      "generation_attempts_total",
		Help:      "Cascade generation attempts by result (accepted, rejected, failed).",
	}, []string{"result"})

	ValidationViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cascade",
		Name:      "validation_violations_total",
		Help:      "Validator violations by rule category.",
	}, []string{"category"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cascade",
		Name:      "generation_duration_seconds",
		Help:      "Time spent in the text generation call.",
		Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120},
	})

	PollSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolution",
		Name:      "poll_sweeps_total",
		Help:      "Resolution poll sweeps by result (completed, skipped).",
	}, []string{"result"})

	PollFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resolution",
		Name:      "fetch_failures_total",
		Help:      "Market state fetches that failed during a sweep.",
	})

	EventsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolution",
		Name:      "events_resolved_total",
		Help:      "Queue entries moved to resolved, by source (poller, manual).",
	}, []string{"source"})

	PredictionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolution",
		Name:      "predictions_settled_total",
		Help:      "Predictions scored, by correctness.",
	}, []string{"correct"})

	PendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "resolution",
		Name:      "pending_entries",
		Help:      "Pending queue entries seen at the start of the last sweep.",
	})
)

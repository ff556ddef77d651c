package rewrite

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	started       prometheus.Counter
	finished      *prometheus.CounterVec
	queryDuration prometheus.Histogram
}

// newMetrics creates the manager's collectors and registers them with reg. A nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Name: "coderewrite_requests_started_total",
			Help: "Rewrite requests started.",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coderewrite_requests_finished_total",
			Help: "Rewrite requests that reached a terminal state, by state.",
		}, []string{"state"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coderewrite_query_duration_seconds",
			Help:    "Time spent waiting on the model, including failed and timed out queries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}),
	}
}

package processor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync passes by outcome.",
		},
		[]string{"outcome"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Wall time of one sync pass.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(syncsTotal, syncDuration)
}

func recordSync(outcome Outcome, elapsed time.Duration) {
	syncsTotal.WithLabelValues(string(outcome)).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

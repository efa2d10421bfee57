package garmin

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garmin_requests_total",
			Help: "Garmin Connect API requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	duplicateChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garmin_duplicate_checks_total",
			Help: "Duplicate checks by result.",
		},
		[]string{"result"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garmin_uploads_total",
			Help: "Activity uploads by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, duplicateChecksTotal, uploadsTotal)
}

func recordRequest(endpoint string, status int) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func recordDuplicateCheck(result string) {
	duplicateChecksTotal.WithLabelValues(result).Inc()
}

func recordUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

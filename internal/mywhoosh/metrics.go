package mywhoosh

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mywhoosh_requests_total",
			Help: "MyWhoosh API requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	downloadedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mywhoosh_downloaded_bytes_total",
			Help: "Bytes of activity files downloaded from MyWhoosh.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, downloadedBytesTotal)
}

func recordRequest(endpoint string, status int) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func recordDownloadedBytes(size int) {
	downloadedBytesTotal.Add(float64(size))
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	EmailsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maildev_emails_received_total",
			Help: "Total number of emails captured, by source",
		},
		[]string{"source"},
	)

	EmailsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maildev_emails_deleted_total",
			Help: "Total number of emails deleted through the API",
		},
	)
)

// API metrics
var (
	ListingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maildev_listing_requests_total",
			Help: "Total number of email listing requests",
		},
		[]string{"mode"},
	)

	ListingResultSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maildev_listing_result_size",
			Help:    "Number of emails returned by a listing request",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)

	FilterRedirects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maildev_filter_redirects_total",
			Help: "Total number of listing requests redirected to carry the persisted filter",
		},
	)

	Relays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maildev_relays_total",
			Help: "Total number of relay attempts, by result",
		},
		[]string{"result"},
	)
)

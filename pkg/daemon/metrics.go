package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardview_scan_cycles_total",
			Help: "Total number of scan cycles by result",
		},
		[]string{"result"},
	)

	scanFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardview_scan_failures_total",
			Help: "Total number of failed scan cycles by stage",
		},
		[]string{"stage"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardview_scan_duration_seconds",
			Help:    "Duration of one scan cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	scanEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardview_scan_entries_skipped_total",
			Help: "Directory entries dropped as undecodable or over capacity",
		},
	)

	catalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardview_catalog_entries",
			Help: "Number of entries in the published catalog",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "status"},
	)
)

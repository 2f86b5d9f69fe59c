package plugin

import "github.com/prometheus/client_golang/prometheus"

var (
	scansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modeld_plugin_scans_total",
			Help: "Total number of model directory scans.",
		},
	)

	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modeld_plugin_scan_duration_seconds",
			Help:    "Duration of a model directory scan including registration, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	loadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modeld_plugin_load_failures_total",
			Help: "Total number of plugin files that failed to load.",
		},
	)
)

func init() {
	prometheus.MustRegister(scansTotal)
	prometheus.MustRegister(scanDuration)
	prometheus.MustRegister(loadFailuresTotal)
}

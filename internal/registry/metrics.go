package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	registeredVersions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modeld_registry_versions",
			Help: "Number of (model, version) pairs currently registered.",
		},
	)

	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modeld_registry_registrations_total",
			Help: "Registration attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Registration outcome label values.
const (
	outcomeAdded     = "added"
	outcomeUnchanged = "unchanged"
	outcomeRejected  = "rejected"
)

func init() {
	prometheus.MustRegister(registeredVersions)
	prometheus.MustRegister(registrationsTotal)

	for _, o := range []string{outcomeAdded, outcomeUnchanged, outcomeRejected} {
		registrationsTotal.WithLabelValues(o)
	}
}

package incidents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statuspage"

var (
	busPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "bus_published_total",
			Help:      "Incident documents published to the message bus",
		},
		[]string{"routing_key", "status"},
	)

	autoUpdateRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "auto_update_runs_total",
			Help:      "Auto-update pass executions by outcome",
		},
		[]string{"pass", "outcome"},
	)

	autoUpdateAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "auto_update_incidents_total",
			Help:      "Incidents transitioned by the auto-update passes",
		},
		[]string{"pass"},
	)
)

// recordBusPublish records a bus publish attempt.
func recordBusPublish(routingKey, status string) {
	busPublished.WithLabelValues(routingKey, status).Inc()
}

// recordAutoUpdateRun records one pass execution.
func recordAutoUpdateRun(pass, outcome string) {
	autoUpdateRuns.WithLabelValues(pass, outcome).Inc()
}

// recordAutoUpdateAffected records how many incidents a pass transitioned.
func recordAutoUpdateAffected(pass string, count int) {
	autoUpdateAffected.WithLabelValues(pass).Add(float64(count))
}

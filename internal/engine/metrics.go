package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	installsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sm",
			Subsystem: "engine",
			Name:      "installs_total",
			Help:      "Total install pipeline runs",
		},
		[]string{"spec", "outcome"},
	)

	launchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sm",
			Subsystem: "engine",
			Name:      "launches_total",
			Help:      "Total package launches",
		},
		[]string{"spec", "outcome"},
	)

	processExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sm",
			Subsystem: "engine",
			Name:      "process_exits_total",
			Help:      "Supervised process exits by code",
		},
		[]string{"spec", "code"},
	)
)

func init() {
	prometheus.MustRegister(installsTotal, launchesTotal, processExitsTotal)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

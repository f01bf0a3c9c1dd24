package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var stepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "engined",
		Subsystem: "build",
		Name:      "step_duration_seconds",
		Help:      "Duration of build pipeline steps in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	},
	[]string{"step"},
)

func init() {
	prometheus.MustRegister(stepDuration)
}

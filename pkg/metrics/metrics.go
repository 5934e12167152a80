package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	apkscan = "apkscan"

	// Orchestrator metrics
	phaseTransitionsTotal = "phase_transitions_total"
	uploadedBytesTotal    = "uploaded_bytes_total"
	pollRequestsTotal     = "poll_requests_total"
	jobDurationSeconds    = "job_duration_seconds"

	// Labels
	phaseLabel   = "phase"
	outcomeLabel = "outcome"

	// Poll outcomes
	PollOutcomeOK        = "ok"
	PollOutcomeTransient = "transient"
)

/**
* Metrics definition
**/
var phaseTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: apkscan,
		Name:      phaseTransitionsTotal,
		Help:      "number of orchestrator phase transitions partitioned by the phase entered",
	},
	[]string{phaseLabel},
)

var uploadedBytesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: apkscan,
		Name:      uploadedBytesTotal,
		Help:      "number of payload bytes handed to the transport",
	},
)

var pollRequestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: apkscan,
		Name:      pollRequestsTotal,
		Help:      "number of status polls partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var jobDurationSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: apkscan,
		Name:      jobDurationSeconds,
		Help:      "time from submit to a terminal phase",
		Buckets:   []float64{5, 15, 30, 60, 120, 300},
	},
	[]string{outcomeLabel},
)

func IncreasePhaseTransitionMetric(phase string) {
	phaseTransitionsTotalMetric.With(prometheus.Labels{phaseLabel: phase}).Inc()
}

func AddUploadedBytes(n int64) {
	if n <= 0 {
		return
	}
	uploadedBytesTotalMetric.Add(float64(n))
}

func IncreasePollRequestsMetric(outcome string) {
	pollRequestsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func ObserveJobDuration(outcome string, d time.Duration) {
	jobDurationSecondsMetric.With(prometheus.Labels{outcomeLabel: outcome}).Observe(d.Seconds())
}

// Handler exposes the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(phaseTransitionsTotalMetric)
	prometheus.MustRegister(uploadedBytesTotalMetric)
	prometheus.MustRegister(pollRequestsTotalMetric)
	prometheus.MustRegister(jobDurationSecondsMetric)
}

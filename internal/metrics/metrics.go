// Package metrics provides Prometheus instrumentation for the marathon runner
// and the key generator. Neither tool serves HTTP, so the registry is written
// once at exit in the node-exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LaunchesTotal counts engine launches by instance and result.
	LaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marathon_launches_total",
			Help: "Total engine instance launches",
		},
		[]string{"instance", "result"},
	)

	// StepWaitSeconds records the pause configured after each launch.
	StepWaitSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marathon_step_wait_seconds",
			Help: "Configured wait after launching an instance",
		},
		[]string{"instance"},
	)

	// FirstOutputSeconds records the time from launch to the first write to
	// an instance's log file.
	FirstOutputSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marathon_first_output_seconds",
			Help: "Seconds from launch until the instance first wrote to its log",
		},
		[]string{"instance"},
	)

	// OutputBytes records the size of each instance's log at the end of a run.
	OutputBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marathon_output_bytes",
			Help: "Bytes captured in the instance log file",
		},
		[]string{"instance"},
	)

	// TerminationsTotal counts kill attempts by result.
	TerminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marathon_terminations_total",
			Help: "Total forced terminations of engine processes",
		},
		[]string{"result"},
	)

	// TokensTotal counts signed tokens by role and result.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygen_tokens_total",
			Help: "Total tokens signed",
		},
		[]string{"role", "result"},
	)
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		LaunchesTotal,
		StepWaitSeconds,
		FirstOutputSeconds,
		OutputBytes,
		TerminationsTotal,
		TokensTotal,
	}
}

// Init registers all collectors with reg. Must be called once at startup.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(Collectors()...)
}

// WriteTextfile writes every metric gathered from g to path, atomically
// replacing any previous file.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

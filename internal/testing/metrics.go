package testing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects durations and outcomes of a run so they can be exported as a
// node_exporter textfile next to the JSON report.
type Metrics struct {
	registry *prometheus.Registry

	stepDuration     *prometheus.HistogramVec
	scenarioDuration *prometheus.HistogramVec
	scenarios        *prometheus.CounterVec
	retries          *prometheus.CounterVec
	runInfo          *prometheus.GaugeVec
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ccptest",
			Name:      "step_duration_seconds",
			Help:      "Duration of scenario steps.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"scenario", "action", "result"}),
		scenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ccptest",
			Name:      "scenario_duration_seconds",
			Help:      "Duration of scenarios including cleanup.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"scenario", "category", "result"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccptest",
			Name:      "scenarios_total",
			Help:      "Scenarios by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ccptest",
			Name:      "step_retries_total",
			Help:      "Retries spent on steps.",
		}, []string{"scenario", "action"}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ccptest",
			Name:      "run_info",
			Help:      "Identifies the run the metrics belong to.",
		}, []string{"run_id"}),
	}
	m.registry.MustRegister(m.stepDuration, m.scenarioDuration, m.scenarios, m.retries, m.runInfo)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetRunID labels the metrics with the run identifier.
func (m *Metrics) SetRunID(id string) {
	m.runInfo.Reset()
	m.runInfo.WithLabelValues(id).Set(1)
}

// ObserveStep records one step result.
func (m *Metrics) ObserveStep(r TestStepResult) {
	m.stepDuration.WithLabelValues(r.Scenario, r.Step.Action, string(r.Result)).Observe(r.Duration.Seconds())
	if r.RetryCount > 0 {
		m.retries.WithLabelValues(r.Scenario, r.Step.Action).Add(float64(r.RetryCount))
	}
}

// ObserveScenario records one scenario result.
func (m *Metrics) ObserveScenario(r TestScenarioResult) {
	m.scenarioDuration.WithLabelValues(r.Scenario.Name, string(r.Scenario.Category), string(r.Result)).Observe(r.Duration.Seconds())
	m.scenarios.WithLabelValues(string(r.Result)).Inc()
}

// WriteTextfile writes the metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "importcost"

	computationsTotal = "computations_total"
	invalidInputTotal = "invalid_input_total"

	sourceLabel  = "source"
	outcomeLabel = "outcome"
	fieldLabel   = "field"
)

// Computation sources.
const (
	SourceForm   = "form"
	SourceAPI    = "api"
	SourceCLI    = "cli"
	SourceReport = "report"
)

// Computation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
)

// Metrics holds the calculator counters.
type Metrics struct {
	computations *prometheus.CounterVec
	invalidInput *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		computations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      computationsTotal,
				Help:      "number of cost computations partitioned by caller and outcome",
			},
			[]string{sourceLabel, outcomeLabel},
		),
		invalidInput: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      invalidInputTotal,
				Help:      "number of rejected inputs partitioned by offending field",
			},
			[]string{fieldLabel},
		),
	}
	if reg != nil {
		reg.MustRegister(m.computations, m.invalidInput)
	}
	return m
}

// ObserveComputation records one Compute call. field is empty on success.
func (m *Metrics) ObserveComputation(source, field string) {
	if m == nil {
		return
	}
	if field == "" {
		m.computations.With(prometheus.Labels{sourceLabel: source, outcomeLabel: OutcomeOK}).Inc()
		return
	}
	m.computations.With(prometheus.Labels{sourceLabel: source, outcomeLabel: OutcomeInvalid}).Inc()
	m.invalidInput.With(prometheus.Labels{fieldLabel: field}).Inc()
}

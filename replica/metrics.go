package replica

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opchan/core/core"
)

// applyOutcomeTotal counts every apply_message outcome by kind and result,
// grounded on the teacher's x/timeline.service UpdateMetrics pattern of
// lazily-registered, package-level *prometheus.GaugeVec/CounterVec values.
var applyOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "opchan_replica_apply_outcome_total",
	Help: "Total number of apply_message outcomes, by message kind and outcome",
}, []string{"kind", "outcome"})

func init() {
	prometheus.MustRegister(applyOutcomeTotal)
}

func recordApplyOutcome(kind core.Kind, outcome Outcome) {
	applyOutcomeTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

package dock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	goalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartdock",
		Name:      "goals_total",
		Help:      "Dock and undock goals by mode and result.",
	}, []string{"mode", "result"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cartdock",
		Name:      "phase_duration_seconds",
		Help:      "Duration of each goal phase.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"phase"})

	phaseResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartdock",
		Name:      "phase_results_total",
		Help:      "Phase outcomes: ok, preempted, timeout, interlock, rpc, failed.",
	}, []string{"phase", "outcome"})
)

package elevator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// actuations counts lift actuations.
// Labels: direction (raise, lower), result (success, interlock, error, preempted)
var actuations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cartdock",
		Subsystem: "elevator",
		Name:      "actuations_total",
		Help:      "Total number of elevator actuations by direction and result",
	},
	[]string{"direction", "result"},
)

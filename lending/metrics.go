package lending

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lendshelf",
	Subsystem: "lending",
	Name:      "operations_total",
	Help:      "Lending operations by operation and outcome (ok or error kind).",
}, []string{"op", "outcome"})

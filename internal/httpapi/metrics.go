package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors dex's server.go request-counter pattern (dex registers
// its counters against the default Prometheus registry and exposes them on
// /metrics), generalized from "one counter per OIDC request type" to one
// counter per auth flow transition plus search queries and sandbox
// uploads, per spec.md section 6's "Metrics" ambient concern.
var (
	authFlowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diracx",
		Subsystem: "auth",
		Name:      "flow_transitions_total",
		Help:      "Count of auth flow state transitions, by flow and outcome.",
	}, []string{"flow", "outcome"})

	searchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diracx",
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Count of declarative search queries, by entity and outcome.",
	}, []string{"entity", "outcome"})

	sandboxUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diracx",
		Subsystem: "sandbox",
		Name:      "uploads_total",
		Help:      "Count of sandbox upload initiations, by outcome.",
	}, []string{"outcome"})
)

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

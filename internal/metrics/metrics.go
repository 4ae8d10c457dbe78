// Package metrics defines the Prometheus instrumentation for the ledger
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for ledger operations and the HTTP surface.
type Metrics struct {
	ExpensesPosted     prometheus.Counter
	SettlementsPosted  prometheus.Counter
	SimplifyRuns       prometheus.Counter
	EdgesRemoved       prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New registers the collectors with the given registerer. Tests pass a
// fresh prometheus.NewRegistry to stay independent of each other.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExpensesPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_expenses_posted_total",
			Help: "Number of expenses posted across all groups and direct ledgers.",
		}),
		SettlementsPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_settlements_posted_total",
			Help: "Number of settlements recorded.",
		}),
		SimplifyRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_simplify_runs_total",
			Help: "Number of debt-simplification runs.",
		}),
		EdgesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_simplify_edges_removed_total",
			Help: "Settling edges eliminated by debt simplification.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

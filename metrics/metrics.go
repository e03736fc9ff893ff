// Package metrics defines the prometheus collectors for the engine's hot
// paths: appends to the event log and projection activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger holds the engine's prometheus collectors
type Ledger struct {
	EventsAppended  prometheus.Counter
	AppendConflicts prometheus.Counter

	ProjectionApplied  *prometheus.CounterVec
	ProjectionFailures *prometheus.CounterVec
	ProjectionRebuilds *prometheus.CounterVec
}

// New constructs and registers the collectors with the provided registerer
// (pass prometheus.DefaultRegisterer outside of tests)
func New(reg prometheus.Registerer) *Ledger {
	factory := promauto.With(reg)

	return &Ledger{
		EventsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "closebook_events_appended_total",
			Help: "Number of events durably appended to the event log.",
		}),
		AppendConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "closebook_append_conflicts_total",
			Help: "Number of appends rejected by the optimistic concurrency check.",
		}),
		ProjectionApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "closebook_projection_applied_total",
			Help: "Number of events applied per projection.",
		}, []string{"projection"}),
		ProjectionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "closebook_projection_failures_total",
			Help: "Number of projection apply failures (projection marked stale).",
		}, []string{"projection"}),
		ProjectionRebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "closebook_projection_rebuilds_total",
			Help: "Number of full projection rebuilds started.",
		}, []string{"projection"}),
	}
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters for the repair core. Allocation conflicts and
// invalid transitions are expected outcomes, not errors, so they get
// their own series.
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_http_requests_total",
		Help: "HTTP requests by path, method and status.",
	}, []string{"path", "method", "status"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_errors_total",
		Help: "Domain errors returned to callers, by code.",
	}, []string{"code"})

	ReservationConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repair_reservation_conflicts_total",
		Help: "Spare part or loaner reservations lost to a concurrent claim.",
	})

	InvalidTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repair_invalid_transitions_total",
		Help: "Ticket operations rejected by the state machine guard.",
	})

	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repair_reconciliation_runs_total",
		Help: "Reconciliation runs by outcome.",
	}, []string{"outcome"})

	SLAEscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repair_sla_escalations_total",
		Help: "SLA escalation events published for open tickets.",
	})
)

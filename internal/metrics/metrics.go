// Package metrics registers the engine's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsHeld = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_held_total",
		Help: "Reservations successfully held.",
	})
	ReservationsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_committed_total",
		Help: "Reservations committed into concrete unit bindings.",
	})
	ReservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_released_total",
		Help: "Reservations explicitly released.",
	})
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_expired_total",
		Help: "Held reservations reclaimed by the sweeper.",
	})
	AllocationRaces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_allocation_races_total",
		Help: "Commits that lost a concurrent race for a unit.",
	}, []string{"kind"})
	KeysSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_keys_sold_total",
		Help: "Product keys bound to orders.",
	})
	SlotsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_slots_assigned_total",
		Help: "Account slots assigned to customers.",
	})
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sweep_runs_total",
		Help: "Reclaim sweeper passes executed.",
	})
)

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

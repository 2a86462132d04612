package service

import "github.com/prometheus/client_golang/prometheus"

var (
	cartOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart mutations by operation",
		},
		[]string{"operation"},
	)

	checkoutOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_outcomes_total",
			Help: "Total number of checkout submissions by outcome",
		},
		[]string{"outcome"},
	)

	catalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_loads_total",
			Help: "Total number of catalog load attempts by result",
		},
		[]string{"result"},
	)
)

// Checkout outcomes.
const (
	outcomeRejected  = "rejected"
	outcomeAccepted  = "accepted"
	outcomePlaced    = "placed"
	outcomeCancelled = "cancelled"
	outcomeAbandoned = "abandoned"
	outcomeFailed    = "failed"
)

func init() {
	prometheus.MustRegister(cartOperations, checkoutOutcomes, catalogLoads)
}

package bandit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReallocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_reallocations_total",
			Help: "Count of weight recomputations by campaign and phase.",
		},
		[]string{"campaign", "phase"},
	)

	VariantWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bandit_variant_weight",
			Help: "Current traffic weight per campaign variant after the last recomputation.",
		},
		[]string{"campaign", "variant"},
	)
)

func init() {
	prometheus.MustRegister(ReallocationsTotal, VariantWeight)
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of every HTTP route, labelled by route template
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP handlers by route, method and status",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"route", "method", "status"})

	AssignmentDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_decisions_total",
		Help: "Experiment assignment decisions by campaign and reason",
	}, []string{"campaign", "reason"})

	FlagEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flag_evaluations_total",
		Help: "Feature flag evaluations by flag and reason",
	}, []string{"flag", "reason"})

	ExposuresRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exposures_recorded_total",
		Help: "First exposures recorded by campaign and variant",
	}, []string{"campaign", "variant"})

	ConversionsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversions_recorded_total",
		Help: "Conversion events recorded by campaign and metric",
	}, []string{"campaign", "metric"})

	OverridesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overrides_written_total",
		Help: "Override writes by campaign; conflict=true when replacing another override",
	}, []string{"campaign", "conflict"})

	ConfigCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_config_cache_lookups_total",
		Help: "Campaign config cache lookups by result (hit, miss, error)",
	}, []string{"result"})
)

// UnknownKey labels decisions for keys that match no campaign, so arbitrary
// request keys cannot create new series.
const UnknownKey = "unknown"

// Init registers the collectors with the default registry. Calling it more
// than once panics, as with prometheus.MustRegister.
func Init() {
	prometheus.MustRegister(
		HTTPRequestDuration,
		AssignmentDecisions,
		FlagEvaluations,
		ExposuresRecorded,
		ConversionsRecorded,
		OverridesWritten,
		ConfigCacheLookups,
	)
}

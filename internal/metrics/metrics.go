package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_decisions_total",
		Help: "Total number of flow decisions by deciding engine and outcome",
	}, []string{"engine", "outcome"})
	escalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_escalations_total",
		Help: "Total number of flows escalated to Vanguard",
	})
	simulatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_simulated_results_total",
		Help: "Total number of filler results by engine",
	}, []string{"engine"})
	suggestionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_suggestions_created_total",
		Help: "Total number of policy suggestions created",
	})
	markingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_markings_total",
		Help: "Total number of marking notifications by result (applied, dropped, failed)",
	}, []string{"result"})
	trafficBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_traffic_bytes_total",
		Help: "Bytes of classified traffic by priority class",
	}, []string{"priority_class"})
	trafficPacketsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_traffic_packets_total",
		Help: "Packets of classified traffic by priority class",
	}, []string{"priority_class"})
	escalationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_escalation_duration_seconds",
		Help:    "Latency of Vanguard escalations",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		decisionsTotal,
		escalationsTotal,
		simulatedTotal,
		suggestionsTotal,
		markingsTotal,
		trafficBytesTotal,
		trafficPacketsTotal,
		escalationSeconds,
	)
}

// IncDecision counts a decision; outcome is "policy" or "unresolved".
func IncDecision(engine, outcome string) { decisionsTotal.WithLabelValues(engine, outcome).Inc() }

// IncEscalation increments the escalation counter.
func IncEscalation() { escalationsTotal.Inc() }

// IncSimulated counts a filler result.
func IncSimulated(engine string) { simulatedTotal.WithLabelValues(engine).Inc() }

// IncSuggestion increments the created suggestions counter.
func IncSuggestion() { suggestionsTotal.Inc() }

// IncMarking counts a marking notification outcome.
func IncMarking(result string) { markingsTotal.WithLabelValues(result).Inc() }

// AddTraffic adds classified volume to a priority class.
func AddTraffic(class string, bytes, packets int64) {
	trafficBytesTotal.WithLabelValues(class).Add(float64(bytes))
	trafficPacketsTotal.WithLabelValues(class).Add(float64(packets))
}

// ObserveEscalation records how long an escalation took.
func ObserveEscalation(d time.Duration) { escalationSeconds.Observe(d.Seconds()) }
